package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/scry-reports/internal/api/shared"
	"github.com/phrazzld/scry-reports/internal/domain"
	"github.com/phrazzld/scry-reports/internal/store"
	"github.com/phrazzld/scry-reports/internal/task"
	"github.com/phrazzld/scry-reports/internal/unit"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes. This
// prevents leaking internal error types or messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalidEntity):
		// a stored report failed to decode; never the caller's fault
		return http.StatusInternalServerError

	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized

	case errors.Is(err, task.ErrReportNotFound),
		errors.Is(err, unit.ErrUnitNotFound):
		return http.StatusNotFound

	case errors.Is(err, task.ErrReportRunning),
		errors.Is(err, task.ErrReportFinished),
		errors.Is(err, unit.ErrDuplicateUnit):
		return http.StatusConflict

	case errors.Is(err, task.ErrInvalidRequest),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, unit.ErrEmptyCapability),
		errors.Is(err, unit.ErrEmptyInstance),
		errors.Is(err, shared.ErrEmptyBody):
		return http.StatusBadRequest

	case errors.Is(err, task.ErrDispatcherClosed):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a user-facing message for err.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return "An unexpected error occurred"
	case errors.Is(err, domain.ErrUnauthorized):
		return "Authentication required"
	case errors.Is(err, task.ErrReportNotFound):
		return "Report not found"
	case errors.Is(err, unit.ErrUnitNotFound):
		return "Unit not found"
	case errors.Is(err, task.ErrReportRunning):
		return "Report is already running"
	case errors.Is(err, task.ErrReportFinished):
		return "Report is already finished"
	case errors.Is(err, unit.ErrDuplicateUnit):
		return "Unit already registered"
	case errors.Is(err, domain.ErrEmptyArtifactRef):
		return "Invalid artifact_ref: required field"
	case errors.Is(err, domain.ErrEmptyQuestionnaire),
		errors.Is(err, domain.ErrEmptyQuestionID):
		return "Invalid questionnaire: answers required"
	case errors.Is(err, domain.ErrDuplicateAnswer):
		return "Invalid questionnaire: duplicate answer"
	case errors.Is(err, task.ErrInvalidRequest):
		return "Invalid report request"
	case errors.Is(err, task.ErrDispatcherClosed):
		return "Scheduler is shutting down"
	case errors.Is(err, shared.ErrEmptyBody):
		return "Request body required"
	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns a validator error into a message naming the
// first failing field.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Validation error"
	}
	fe := verrs[0]
	return fmt.Sprintf("Invalid %s: %s", fe.Field(), validationTagMessage(fe.Tag()))
}

func validationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the status and safe message for err and logs the
// redacted cause.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error) {
	shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
}
