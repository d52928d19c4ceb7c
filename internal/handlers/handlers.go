package handlers

import (
	"errors"

	"concert-ticketing/internal/status"

	"github.com/pocketbase/pocketbase/apis"
)

// toAPIError maps the service error taxonomy onto HTTP responses. Unmatched
// errors become 500s and are logged with full context by the caller.
func toAPIError(err error) error {
	switch {
	case errors.Is(err, status.ErrInvalidInput):
		return apis.NewBadRequestError(err.Error(), nil)
	case errors.Is(err, status.ErrInvalidState):
		return apis.NewBadRequestError(err.Error(), nil)
	case errors.Is(err, status.ErrNotFound):
		return apis.NewNotFoundError(err.Error(), nil)
	case errors.Is(err, status.ErrUnauthorized):
		return apis.NewUnauthorizedError(err.Error(), nil)
	case errors.Is(err, status.ErrGatewayUnavailable):
		return apis.NewApiError(503, "payment gateway unavailable, try again later", nil)
	default:
		return apis.NewInternalServerError("internal error", err)
	}
}
