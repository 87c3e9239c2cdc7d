package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-reports/internal/domain"
)

// Type names a report milestone.
type Type string

// Milestones emitted for each report.
const (
	TypeStageStarted   Type = "report.stage_started"
	TypeStageCompleted Type = "report.stage_completed"
	TypeStageFailed    Type = "report.stage_failed"
)

// ReportEvent is one stage milestone of one report.
type ReportEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	Type    Type              `json:"type"`
	SN      string            `json:"sn"`
	OwnerID string            `json:"owner_id"`
	Kind    domain.ReportKind `json:"kind"`

	// Phase is the pipeline phase the milestone belongs to
	Phase string `json:"phase"`

	// State is the report state when the event was raised. For failures it
	// is the terminal cause.
	State domain.ReportState `json:"state"`

	// Terminal is set on the last event of a report
	Terminal bool `json:"terminal"`

	OccurredAt time.Time `json:"occurred_at"`
}

// NewReportEvent creates an event for r.
func NewReportEvent(typ Type, phase string, r *domain.Report, state domain.ReportState, now time.Time) *ReportEvent {
	return &ReportEvent{
		ID:         uuid.New(),
		Type:       typ,
		SN:         r.SN(),
		OwnerID:    r.OwnerID(),
		Kind:       r.Kind(),
		Phase:      phase,
		State:      state,
		Terminal:   typ == TypeStageFailed || (typ == TypeStageCompleted && r.Finished()),
		OccurredAt: now,
	}
}

// Handler defines an interface for components that can handle events.
type Handler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *ReportEvent) error
}

// Emitter defines an interface for components that can emit events.
type Emitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *ReportEvent) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, event *ReportEvent) error

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *ReportEvent) error {
	return f(ctx, event)
}
