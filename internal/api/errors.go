package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/postpilot/internal/api/shared"
	"github.com/phrazzld/postpilot/internal/domain"
	"github.com/phrazzld/postpilot/internal/relay"
	"github.com/phrazzld/postpilot/internal/store"
	"github.com/phrazzld/postpilot/internal/task"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, relay.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, relay.ErrTaskNotOwned):
		return http.StatusForbidden
	case errors.Is(err, relay.ErrUnknownDevice),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, relay.ErrInvalidCommand),
		errors.Is(err, shared.ErrInvalidBody):
		return http.StatusBadRequest
	case errors.Is(err, task.ErrEngineStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, relay.ErrRateLimited):
		return "Too many commands, slow down"
	case errors.Is(err, relay.ErrTaskNotOwned):
		return "Task was not issued by this device"
	case errors.Is(err, relay.ErrUnknownDevice):
		return "Device is not registered"
	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, store.ErrContentNotFound):
		return "Content not found"
	case errors.Is(err, store.ErrAccountNotFound):
		return "Account not found"
	case errors.Is(err, store.ErrConflict):
		return "Task was modified concurrently, retry the request"
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, relay.ErrInvalidCommand):
		// domain validation messages name the rule, never internal state
		return err.Error()
	case errors.Is(err, shared.ErrInvalidBody):
		return "Invalid request format"
	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"
	case errors.Is(err, task.ErrEngineStopped):
		return "Service is shutting down"
	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns validator output into a short message
// naming the first failing field.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		return fmt.Sprintf("Invalid %s: %s", field, validationTagMessage(fe.Tag()))
	}
	return "Validation error"
}

func validationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min", "gte":
		return "too small"
	case "max", "lte":
		return "too large"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the mapped status and safe message for err.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error) {
	shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
}
