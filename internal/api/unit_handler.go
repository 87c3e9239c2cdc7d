package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/scry-reports/internal/api/shared"
	"github.com/phrazzld/scry-reports/internal/platform/logger"
	"github.com/phrazzld/scry-reports/internal/unit"
)

// UnitRegistry is the part of the unit registry the handlers use.
type UnitRegistry interface {
	Register(capability, instance string) (*unit.Unit, error)
	Deregister(capability, instance string) error
	LiveCount(capability string) int
	List() []unit.Info
}

var _ UnitRegistry = (*unit.Registry)(nil)

// UnitHandler manages backend units at runtime.
type UnitHandler struct {
	registry UnitRegistry
	logger   *slog.Logger
}

// NewUnitHandler creates a new UnitHandler.
func NewUnitHandler(registry UnitRegistry, logger *slog.Logger) *UnitHandler {
	return &UnitHandler{
		registry: registry,
		logger:   logger.With("component", "unit_handler"),
	}
}

// ListUnits handles GET /api/units.
func (h *UnitHandler) ListUnits(w http.ResponseWriter, r *http.Request) {
	units := h.registry.List()
	if units == nil {
		units = []unit.Info{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, units)
}

// RegisterUnit handles POST /api/units.
func (h *UnitHandler) RegisterUnit(w http.ResponseWriter, r *http.Request) {
	var req RegisterUnitRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	u, err := h.registry.Register(req.Capability, req.Instance)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("unit registered",
		"capability", u.Capability(),
		"instance", u.Instance())
	shared.RespondWithJSON(w, r, http.StatusCreated, unit.Info{
		Capability: u.Capability(),
		Instance:   u.Instance(),
	})
}

// DeregisterUnit handles DELETE /api/units/{capability}/{instance}.
func (h *UnitHandler) DeregisterUnit(w http.ResponseWriter, r *http.Request) {
	capability := chi.URLParam(r, "capability")
	instance := chi.URLParam(r, "instance")

	if err := h.registry.Deregister(capability, instance); err != nil {
		HandleAPIError(w, r, err)
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("unit deregistered",
		"capability", capability,
		"instance", instance)
	w.WriteHeader(http.StatusNoContent)
}
