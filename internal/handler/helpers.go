package handler

import (
	"errors"
	"net/http"

	"biocloud/internal/domain"
	"biocloud/internal/httputil"

	"github.com/google/uuid"
)

// handleError converts domain errors to HTTP responses
func handleError(w http.ResponseWriter, err error) {
	status := httputil.StatusFromError(err)
	detail := httputil.PublicMessage(status, err)

	var validationErr *domain.ValidationError
	var renderErr *domain.RenderError

	switch {
	case errors.As(err, &validationErr):
		httputil.RespondErrorWithExtras(w, status, detail, map[string]interface{}{
			"reason": validationErr.Reason,
		})
	case errors.As(err, &renderErr) && renderErr.Status != 0:
		httputil.RespondErrorWithExtras(w, status, detail, map[string]interface{}{
			"upstream_status": renderErr.Status,
		})
	default:
		httputil.RespondError(w, status, detail)
	}
}

// PathParam extracts a uuid path value, writing a 400 response when it is
// missing or malformed.
func PathParam(w http.ResponseWriter, r *http.Request, name, label string) (string, bool) {
	value := r.PathValue(name)
	if value == "" {
		httputil.RespondError(w, http.StatusBadRequest, label+" is required")
		return "", false
	}
	if _, err := uuid.Parse(value); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid "+label)
		return "", false
	}
	return value, true
}
