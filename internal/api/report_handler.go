package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/scry-reports/internal/api/shared"
	"github.com/phrazzld/scry-reports/internal/domain"
	"github.com/phrazzld/scry-reports/internal/platform/logger"
	"github.com/phrazzld/scry-reports/internal/task"
)

// Scheduler is the part of the dispatcher the report handlers use.
// *task.Dispatcher satisfies it.
type Scheduler interface {
	Submit(ctx context.Context, req task.Request) (*task.Future, error)
	GetQueuePosition(sn string) int
	Cancel(ctx context.Context, sn string) (*domain.Report, error)
	Get(ctx context.Context, sn string) (*domain.Report, error)
	Stats() task.Stats
}

var _ Scheduler = (*task.Dispatcher)(nil)

// ReportHandler handles report submission and lookup.
type ReportHandler struct {
	scheduler Scheduler
	logger    *slog.Logger
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(scheduler Scheduler, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{
		scheduler: scheduler,
		logger:    logger.With("component", "report_handler"),
	}
}

// SubmitArtifact handles POST /api/reports/artifact.
func (h *ReportHandler) SubmitArtifact(w http.ResponseWriter, r *http.Request) {
	var req ArtifactReportRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.submit(w, r, task.Request{
		Kind:        domain.ReportKindArtifact,
		ArtifactRef: req.ArtifactRef,
		Options:     req.Options,
	})
}

// SubmitQuestionnaire handles POST /api/reports/questionnaire.
func (h *ReportHandler) SubmitQuestionnaire(w http.ResponseWriter, r *http.Request) {
	var req QuestionnaireReportRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.submit(w, r, task.Request{
		Kind:          domain.ReportKindQuestionnaire,
		Questionnaire: req.Questionnaire,
		Options:       req.Options,
	})
}

func (h *ReportHandler) submit(w http.ResponseWriter, r *http.Request, req task.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}
	req.OwnerID = ownerID

	future, err := h.scheduler.Submit(r.Context(), req)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	report := future.Report()
	logger.FromContextOrDefault(r.Context(), h.logger).Info("report accepted",
		"sn", report.SN(),
		"kind", report.Kind(),
		"owner_id", ownerID)

	w.Header().Set("Location", "/api/reports/"+report.SN())
	shared.RespondWithJSON(w, r, http.StatusAccepted,
		reportToResponse(report, h.scheduler.GetQueuePosition(report.SN())))
}

// GetReport handles GET /api/reports/{sn}.
func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.ownedReport(w, r)
	if !ok {
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK,
		reportToResponse(report, h.scheduler.GetQueuePosition(report.SN())))
}

// GetPosition handles GET /api/reports/{sn}/position.
func (h *ReportHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	report, ok := h.ownedReport(w, r)
	if !ok {
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, PositionResponse{
		SN:       report.SN(),
		Position: h.scheduler.GetQueuePosition(report.SN()),
	})
}

// CancelReport handles DELETE /api/reports/{sn}. Only pending reports can
// be cancelled.
func (h *ReportHandler) CancelReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.ownedReport(w, r)
	if !ok {
		return
	}

	cancelled, err := h.scheduler.Cancel(r.Context(), report.SN())
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("report cancelled",
		"sn", cancelled.SN(),
		"state", cancelled.State())
	shared.RespondWithJSON(w, r, http.StatusOK, reportToResponse(cancelled, 0))
}

// ownedReport loads the report named in the path. Reports of other owners
// are reported as not found.
func (h *ReportHandler) ownedReport(w http.ResponseWriter, r *http.Request) (*domain.Report, bool) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return nil, false
	}

	sn := chi.URLParam(r, "sn")
	if sn == "" {
		HandleAPIError(w, r, task.ErrReportNotFound)
		return nil, false
	}

	report, err := h.scheduler.Get(r.Context(), sn)
	if err != nil {
		HandleAPIError(w, r, err)
		return nil, false
	}
	if report.OwnerID() != ownerID {
		HandleAPIError(w, r, task.ErrReportNotFound)
		return nil, false
	}
	return report, true
}

// requireOwner extracts the owner ID placed in the context by the auth
// middleware.
func requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	ownerID, ok := shared.GetOwnerID(r.Context())
	if !ok {
		HandleAPIError(w, r, domain.ErrUnauthorized)
		return "", false
	}
	return ownerID, true
}

// decodeAndValidate reads the JSON body into v and validates it, writing a
// 400 response on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := shared.DecodeJSON(w, r, v); err != nil {
		if errors.Is(err, shared.ErrEmptyBody) {
			HandleAPIError(w, r, err)
			return false
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return false
	}
	if err := shared.ValidateRequest(v); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return false
	}
	return true
}
