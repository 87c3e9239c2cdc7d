// Package pipeline defines the ordered stages a report runs through and the
// two pipelines built from them: artifact reports and questionnaire reports.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/phrazzld/scry-reports/internal/domain"
	"github.com/phrazzld/scry-reports/internal/generation"
	"github.com/phrazzld/scry-reports/internal/narrative"
	"github.com/phrazzld/scry-reports/internal/scoring"
	"github.com/phrazzld/scry-reports/internal/unit"
)

// Phase groups stages for listener notifications.
type Phase string

// Listener phases
const (
	PhasePredict  Phase = "predict"
	PhaseEvaluate Phase = "evaluate"
	PhaseScore    Phase = "score"
)

// Input carries the request data a pipeline consumes.
type Input struct {
	ArtifactRef   string
	Questionnaire *domain.Questionnaire
	Options       domain.Options
}

// RunFunc executes one stage. u is nil for local stages. Results are stored
// on the report.
type RunFunc func(ctx context.Context, u *unit.Unit, r *domain.Report, in Input) error

// Stage is one named step of a pipeline.
type Stage struct {
	Name string
	// State is the report state while the stage runs.
	State domain.ReportState
	Phase Phase
	// Capability is the unit capability the stage needs. Empty means the
	// stage runs locally without a unit.
	Capability string
	// DefaultCause is the terminal state for errors no rule classifies.
	DefaultCause domain.ReportState
	Run          RunFunc
}

// StageError is a failure with an explicit terminal cause.
type StageError struct {
	Stage string
	Cause domain.ReportState
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed (%s): %v", e.Stage, e.Cause, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Fail wraps err with an explicit cause.
func Fail(stage string, cause domain.ReportState, err error) error {
	return &StageError{Stage: stage, Cause: cause, Err: err}
}

// Classify maps a stage error to the terminal state of the report.
func Classify(s Stage, err error) domain.ReportState {
	var se *StageError
	switch {
	case err == nil:
		return domain.ReportStateCompleted
	case errors.As(err, &se) && se.Cause.Terminal():
		return se.Cause
	case errors.Is(err, generation.ErrUnreadableArtifact):
		return domain.ReportStateFileError
	case errors.Is(err, generation.ErrInvalidResponse),
		errors.Is(err, scoring.ErrNilInput):
		return domain.ReportStateIllegalOperation
	case errors.Is(err, generation.ErrUnrecognized),
		errors.Is(err, generation.ErrNoData),
		errors.Is(err, generation.ErrContentBlocked),
		errors.Is(err, narrative.ErrNoFeatures):
		return domain.ReportStateInvalidData
	case errors.Is(err, generation.ErrUnitUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return domain.ReportStateUnitError
	}

	if s.DefaultCause.Terminal() {
		return s.DefaultCause
	}
	return domain.ReportStateFailure
}

// Pipeline is the ordered stage list of one report kind.
type Pipeline struct {
	Kind   domain.ReportKind
	Stages []Stage
}

// FirstPhase returns the phase of the first stage.
func (p *Pipeline) FirstPhase() Phase {
	if len(p.Stages) == 0 {
		return ""
	}
	return p.Stages[0].Phase
}

// LastPhase returns the phase of the final stage. Persisting belongs to it.
func (p *Pipeline) LastPhase() Phase {
	if len(p.Stages) == 0 {
		return ""
	}
	return p.Stages[len(p.Stages)-1].Phase
}

// PrimaryCapability is the capability whose live unit count bounds the
// number of workers for this kind.
func (p *Pipeline) PrimaryCapability() string {
	for _, s := range p.Stages {
		if s.Capability != "" {
			return s.Capability
		}
	}
	return ""
}
