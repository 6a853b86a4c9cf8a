package httputil

import (
	"context"
	"net/http"

	"biocloud/internal/domain/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	identityKey contextKey = "identity"
)

// WithIdentity adds the caller's identity to the request context
func WithIdentity(r *http.Request, id models.Identity) *http.Request {
	ctx := context.WithValue(r.Context(), identityKey, id)
	return r.WithContext(ctx)
}

// GetIdentity retrieves the identity from context. Requests that never went
// through the auth middleware are anonymous.
func GetIdentity(r *http.Request) models.Identity {
	id, _ := r.Context().Value(identityKey).(models.Identity)
	return id
}
