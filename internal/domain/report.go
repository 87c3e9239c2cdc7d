package domain

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ReportKind selects the pipeline a report is produced by.
type ReportKind string

// Supported report kinds
const (
	ReportKindArtifact      ReportKind = "artifact"
	ReportKindQuestionnaire ReportKind = "questionnaire"
)

// Valid reports whether k is one of the supported kinds.
func (k ReportKind) Valid() bool {
	return k == ReportKindArtifact || k == ReportKindQuestionnaire
}

// Common validation errors for Report
var (
	ErrEmptyOwnerID      = fmt.Errorf("%w: report owner ID cannot be empty", ErrValidation)
	ErrInvalidReportKind = fmt.Errorf("%w: invalid report kind", ErrValidation)
	ErrEmptyReportSN     = errors.New("report sn cannot be empty")
)

// Report is the lifecycle object of one submitted request. The scheduler
// mutates it from worker goroutines while HTTP handlers read it, so every
// field is guarded by mu. Use Snapshot for a consistent copy.
type Report struct {
	mu sync.RWMutex

	sn        string
	ownerID   string
	kind      ReportKind
	state     ReportState
	createdAt time.Time
	updatedAt time.Time
	finished  bool

	recognition *RecognizedArtifact
	features    *ScoredFeatures
	narrative   string
	content     string
}

// NewReport creates a queued report with a fresh sn.
func NewReport(ownerID string, kind ReportKind, now time.Time) (*Report, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrEmptyOwnerID
	}
	if !kind.Valid() {
		return nil, ErrInvalidReportKind
	}

	now = now.UTC()
	return &Report{
		sn:        uuid.NewString(),
		ownerID:   ownerID,
		kind:      kind,
		state:     ReportStateQueued,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// RestoreReport rebuilds a report from a persisted snapshot.
func RestoreReport(s ReportSnapshot) (*Report, error) {
	if s.SN == "" {
		return nil, ErrEmptyReportSN
	}
	if !s.Kind.Valid() {
		return nil, ErrInvalidReportKind
	}
	if !s.State.Valid() {
		return nil, ErrInvalidReportState
	}

	return &Report{
		sn:          s.SN,
		ownerID:     s.OwnerID,
		kind:        s.Kind,
		state:       s.State,
		createdAt:   s.CreatedAt,
		updatedAt:   s.UpdatedAt,
		finished:    s.Finished,
		recognition: s.Recognition,
		features:    s.Features,
		narrative:   s.Narrative,
		content:     s.Content,
	}, nil
}

// SN returns the report identifier.
func (r *Report) SN() string { return r.sn }

// OwnerID returns the owner of the report.
func (r *Report) OwnerID() string { return r.ownerID }

// Kind returns the report kind.
func (r *Report) Kind() ReportKind { return r.kind }

// CreatedAt returns the submission time used for cache eviction.
func (r *Report) CreatedAt() time.Time { return r.createdAt }

// State returns the current state.
func (r *Report) State() ReportState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Finished reports whether the report reached a terminal state.
func (r *Report) Finished() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.finished
}

// Transition moves a running report into a non-terminal state.
// It returns false once the report is finished or when the move would go
// backwards in the lifecycle.
func (r *Report) Transition(state ReportState, now time.Time) bool {
	if state.Terminal() {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished || state.rank() < r.state.rank() {
		return false
	}
	r.state = state
	r.updatedAt = now.UTC()
	return true
}

// Finish sets a terminal state. Only the first call has any effect.
func (r *Report) Finish(state ReportState, now time.Time) bool {
	if !state.Terminal() {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return false
	}
	r.state = state
	r.finished = true
	r.updatedAt = now.UTC()
	return true
}

// SetRecognition stores the output of the recognition stage.
func (r *Report) SetRecognition(v *RecognizedArtifact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recognition = v
}

// Recognition returns the recognition payload, if any.
func (r *Report) Recognition() *RecognizedArtifact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recognition
}

// SetFeatures stores the scored features.
func (r *Report) SetFeatures(v *ScoredFeatures) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.features = v
}

// Features returns the scored features, if any.
func (r *Report) Features() *ScoredFeatures {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.features
}

// SetNarrative stores the generated narrative and the assembled document.
func (r *Report) SetNarrative(narrative, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.narrative = narrative
	r.content = content
}

// Content returns the assembled Markdown document.
func (r *Report) Content() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.content
}

// Snapshot returns a consistent copy of the report.
func (r *Report) Snapshot() ReportSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return ReportSnapshot{
		SN:          r.sn,
		OwnerID:     r.ownerID,
		Kind:        r.kind,
		State:       r.state,
		Finished:    r.finished,
		CreatedAt:   r.createdAt,
		UpdatedAt:   r.updatedAt,
		Recognition: r.recognition,
		Features:    r.features,
		Narrative:   r.narrative,
		Content:     r.content,
	}
}

// ReportSnapshot is a point-in-time copy of a Report.
type ReportSnapshot struct {
	SN          string              `json:"sn"`
	OwnerID     string              `json:"owner_id"`
	Kind        ReportKind          `json:"kind"`
	State       ReportState         `json:"state"`
	Finished    bool                `json:"finished"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	Recognition *RecognizedArtifact `json:"recognition,omitempty"`
	Features    *ScoredFeatures     `json:"features,omitempty"`
	Narrative   string              `json:"narrative,omitempty"`
	Content     string              `json:"content,omitempty"`
}
