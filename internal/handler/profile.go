package handler

import (
	"log/slog"
	"net/http"

	"biocloud/internal/domain/services"
	"biocloud/internal/httputil"
)

// ProfileHandler serves the caller's own profile
type ProfileHandler struct {
	profileService services.ProfileService
	logger         *slog.Logger
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(profileService services.ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{
		profileService: profileService,
		logger:         logger,
	}
}

// GetMe syncs the profile from the token claims and returns it
// GET /api/users/me
func (h *ProfileHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profileService.EnsureProfile(r.Context(), httputil.GetIdentity(r))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, profile)
}
