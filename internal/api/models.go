package api

import (
	"time"

	"github.com/phrazzld/scry-reports/internal/domain"
	"github.com/phrazzld/scry-reports/internal/task"
)

// ArtifactReportRequest is the body of POST /api/reports/artifact.
type ArtifactReportRequest struct {
	ArtifactRef string         `json:"artifact_ref" validate:"required,max=2048"`
	Options     domain.Options `json:"options"`
}

// QuestionnaireReportRequest is the body of POST /api/reports/questionnaire.
type QuestionnaireReportRequest struct {
	Questionnaire *domain.Questionnaire `json:"questionnaire" validate:"required"`
	Options       domain.Options        `json:"options"`
}

// RegisterUnitRequest is the body of POST /api/units.
type RegisterUnitRequest struct {
	Capability string `json:"capability" validate:"required,oneof=predictor narrator"`
	Instance   string `json:"instance" validate:"required,max=256"`
}

// ReportResponse is the public view of a report.
type ReportResponse struct {
	SN          string                     `json:"sn"`
	Kind        domain.ReportKind          `json:"kind"`
	State       domain.ReportState         `json:"state"`
	Finished    bool                       `json:"finished"`
	CreatedAt   time.Time                  `json:"created_at"`
	UpdatedAt   time.Time                  `json:"updated_at"`
	Recognition *domain.RecognizedArtifact `json:"recognition,omitempty"`
	Features    *domain.ScoredFeatures     `json:"features,omitempty"`
	Narrative   string                     `json:"narrative,omitempty"`
	Content     string                     `json:"content,omitempty"`

	// Position is the 1-based queue position while the report is pending.
	Position int `json:"position,omitempty"`
}

// PositionResponse is the body of GET /api/reports/{sn}/position. Position is
// -1 once the report has left the queue.
type PositionResponse struct {
	SN       string `json:"sn"`
	Position int    `json:"position"`
}

// StatsResponse is the body of GET /api/scheduler/stats.
type StatsResponse struct {
	task.Stats
	LiveUnits map[string]int `json:"live_units"`
}

func reportToResponse(r *domain.Report, position int) ReportResponse {
	s := r.Snapshot()
	resp := ReportResponse{
		SN:          s.SN,
		Kind:        s.Kind,
		State:       s.State,
		Finished:    s.Finished,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
		Recognition: s.Recognition,
		Features:    s.Features,
		Narrative:   s.Narrative,
		Content:     s.Content,
	}
	if position > 0 {
		resp.Position = position
	}
	return resp
}
