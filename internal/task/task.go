package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/phrazzld/scry-reports/internal/domain"
	"github.com/phrazzld/scry-reports/internal/pipeline"
)

// Request is a report submission.
type Request struct {
	OwnerID       string
	Kind          domain.ReportKind
	ArtifactRef   string
	Questionnaire *domain.Questionnaire
	Options       domain.Options
	// Listener receives the stage callbacks of this report. Optional.
	Listener Listener
}

func (r Request) validate() error {
	if strings.TrimSpace(r.OwnerID) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, domain.ErrEmptyOwnerID)
	}

	switch r.Kind {
	case domain.ReportKindArtifact:
		if strings.TrimSpace(r.ArtifactRef) == "" {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, domain.ErrEmptyArtifactRef)
		}
	case domain.ReportKindQuestionnaire:
		if err := r.Questionnaire.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	default:
		return fmt.Errorf("%w: %w %q", ErrInvalidRequest, domain.ErrInvalidReportKind, r.Kind)
	}

	switch r.Options.Detail {
	case "", "brief", "full":
	default:
		return fmt.Errorf("%w: unknown detail level %q", ErrInvalidRequest, r.Options.Detail)
	}
	return nil
}

// Task binds a report to its execution inputs. It is owned by the
// dispatcher and executed by at most one worker.
type Task struct {
	report      *domain.Report
	input       pipeline.Input
	listeners   listeners
	submittedAt time.Time

	once sync.Once
	done chan struct{}
}

func newTask(report *domain.Report, req Request, observers []Listener, logger *slog.Logger, now time.Time) *Task {
	all := make([]Listener, 0, len(observers)+1)
	if req.Listener != nil {
		all = append(all, req.Listener)
	}
	all = append(all, observers...)

	return &Task{
		report: report,
		input: pipeline.Input{
			ArtifactRef:   req.ArtifactRef,
			Questionnaire: req.Questionnaire,
			Options:       req.Options,
		},
		listeners:   newListeners(logger, all...),
		submittedAt: now,
		done:        make(chan struct{}),
	}
}

// Report returns the report the task produces.
func (t *Task) Report() *domain.Report { return t.report }

// SN returns the report identifier.
func (t *Task) SN() string { return t.report.SN() }

// finish sets the terminal state, runs beforeNotify and fires the terminal
// callback of phase. Only the first call has any effect.
func (t *Task) finish(state domain.ReportState, now time.Time, phase pipeline.Phase, beforeNotify func()) bool {
	won := false
	t.once.Do(func() {
		defer close(t.done)

		if !t.report.Finish(state, now) {
			return
		}
		won = true

		if beforeNotify != nil {
			beforeNotify()
		}
		if state.Succeeded() {
			t.listeners.completed(phase, t.report)
		} else {
			t.listeners.failed(phase, t.report, state)
		}
	})
	return won
}

// Future is the handle returned by Submit.
type Future struct {
	task *Task
}

// Report returns the live report. Its state progresses while the task runs.
func (f *Future) Report() *domain.Report { return f.task.report }

// Done is closed once the report is terminal and its callbacks have fired.
func (f *Future) Done() <-chan struct{} { return f.task.done }

// Wait blocks until the report is terminal or ctx is done.
func (f *Future) Wait(ctx context.Context) (*domain.Report, error) {
	select {
	case <-f.task.done:
		return f.task.report, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Common dispatcher errors
var (
	// ErrInvalidRequest wraps every submission validation failure.
	ErrInvalidRequest = errors.New("invalid report request")

	// ErrReportNotFound is returned for an sn the dispatcher and the store do not know.
	ErrReportNotFound = errors.New("report not found")

	// ErrReportRunning is returned when cancelling a report a worker already took.
	ErrReportRunning = errors.New("report is already running and cannot be cancelled")

	// ErrReportFinished is returned when cancelling a report in a terminal state.
	ErrReportFinished = errors.New("report is already finished")

	// ErrDispatcherClosed is returned for submissions after Shutdown.
	ErrDispatcherClosed = errors.New("dispatcher is shut down")
)
