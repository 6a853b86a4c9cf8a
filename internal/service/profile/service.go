// Package profile keeps user profiles in step with auth identities.
package profile

import (
	"context"
	"log/slog"

	"biocloud/internal/domain"
	"biocloud/internal/domain/models"
	"biocloud/internal/domain/repositories"
	"biocloud/internal/domain/services"
)

// service implements the ProfileService interface
type service struct {
	profileRepo repositories.ProfileRepository
	logger      *slog.Logger
}

// NewService creates a new profile service
func NewService(profileRepo repositories.ProfileRepository, logger *slog.Logger) services.ProfileService {
	return &service{
		profileRepo: profileRepo,
		logger:      logger,
	}
}

// EnsureProfile upserts the profile from the token claims and reads it back
func (s *service) EnsureProfile(ctx context.Context, actor models.Identity) (*models.Profile, error) {
	if actor.IsAnonymous() {
		return nil, domain.NewValidationError(domain.ReasonUnauthenticated, "must be signed in to view a profile")
	}

	if err := s.profileRepo.Upsert(ctx, models.ProfileFromIdentity(actor)); err != nil {
		return nil, &domain.MetadataError{Op: "upsert profile", Err: err}
	}

	profile, err := s.profileRepo.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("profile ensured", "user_id", actor.UserID)
	return profile, nil
}
