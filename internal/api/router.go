package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/scry-reports/internal/api/middleware"
	"github.com/phrazzld/scry-reports/internal/api/shared"
	"github.com/phrazzld/scry-reports/internal/service/auth"
	"github.com/phrazzld/scry-reports/internal/unit"
)

// RouterDeps are the collaborators of the HTTP API.
type RouterDeps struct {
	Scheduler Scheduler
	Units     UnitRegistry
	Tokens    auth.TokenService
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

// NewRouter builds the chi router with every API route.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Trace(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	reports := NewReportHandler(deps.Scheduler, deps.Logger)
	units := NewUnitHandler(deps.Units, deps.Logger)
	authMiddleware := middleware.NewAuthMiddleware(deps.Tokens)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Route("/reports", func(r chi.Router) {
			r.Post("/artifact", reports.SubmitArtifact)
			r.Post("/questionnaire", reports.SubmitQuestionnaire)
			r.Get("/{sn}", reports.GetReport)
			r.Get("/{sn}/position", reports.GetPosition)
			r.Delete("/{sn}", reports.CancelReport)
		})

		r.Route("/units", func(r chi.Router) {
			r.Get("/", units.ListUnits)
			r.Post("/", units.RegisterUnit)
			r.Delete("/{capability}/{instance}", units.DeregisterUnit)
		})

		r.Get("/scheduler/stats", func(w http.ResponseWriter, r *http.Request) {
			shared.RespondWithJSON(w, r, http.StatusOK, StatsResponse{
				Stats: deps.Scheduler.Stats(),
				LiveUnits: map[string]int{
					unit.CapabilityPredictor: deps.Units.LiveCount(unit.CapabilityPredictor),
					unit.CapabilityNarrator:  deps.Units.LiveCount(unit.CapabilityNarrator),
				},
			})
		})
	})

	return r
}
