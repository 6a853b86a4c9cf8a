package httputil

import (
	"errors"
	"net/http"

	"biocloud/internal/domain"
)

// StatusFromError maps a domain error to the HTTP status it is reported with.
// Typed errors carry their own status; bare sentinels are mapped here.
func StatusFromError(err error) int {
	var httpErr domain.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode()
	}

	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrRender):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrStorage):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the detail shown to clients. Server-side failures are not
// described beyond their status.
func PublicMessage(status int, err error) string {
	switch status {
	case http.StatusInternalServerError:
		return "internal server error"
	case http.StatusBadGateway:
		return "file storage unavailable"
	default:
		return err.Error()
	}
}
