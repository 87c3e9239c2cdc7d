package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/scry-reports/internal/domain"
	"github.com/phrazzld/scry-reports/internal/store"
	"github.com/phrazzld/scry-reports/internal/task"
	"github.com/phrazzld/scry-reports/internal/unit"
	"github.com/stretchr/testify/assert"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unauthorized", domain.ErrUnauthorized, http.StatusUnauthorized},
		{"report not found", task.ErrReportNotFound, http.StatusNotFound},
		{"unit not found", fmt.Errorf("%w: predictor/x", unit.ErrUnitNotFound), http.StatusNotFound},
		{"running", task.ErrReportRunning, http.StatusConflict},
		{"finished", task.ErrReportFinished, http.StatusConflict},
		{"duplicate unit", fmt.Errorf("%w: predictor/x", unit.ErrDuplicateUnit), http.StatusConflict},
		{"invalid request", fmt.Errorf("%w: %w", task.ErrInvalidRequest, domain.ErrEmptyArtifactRef), http.StatusBadRequest},
		{"bare validation", domain.ErrDuplicateAnswer, http.StatusBadRequest},
		{"corrupt stored report", fmt.Errorf("%w: %w", store.ErrInvalidEntity, domain.ErrInvalidReportKind), http.StatusInternalServerError},
		{"closed", task.ErrDispatcherClosed, http.StatusServiceUnavailable},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, MapErrorToStatusCode(tt.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))
	assert.Equal(t, "Report not found", GetSafeErrorMessage(task.ErrReportNotFound))
	assert.Equal(t, "Invalid questionnaire: duplicate answer",
		GetSafeErrorMessage(fmt.Errorf("%w: %w", task.ErrInvalidRequest, domain.ErrDuplicateAnswer)))

	secret := errors.New("dial tcp 10.0.0.5:5432: password=hunter2")
	assert.NotContains(t, GetSafeErrorMessage(secret), "hunter2")
}

func TestSanitizeValidationError(t *testing.T) {
	t.Parallel()

	err := validator.New().Struct(RegisterUnitRequest{Capability: "painter", Instance: "x"})
	assert.Equal(t, "Invalid Capability: invalid value", SanitizeValidationError(err))

	err = validator.New().Struct(ArtifactReportRequest{})
	assert.Equal(t, "Invalid ArtifactRef: required field", SanitizeValidationError(err))

	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("plain")))
}
