package services

import (
	"context"

	"biocloud/internal/domain/models"
)

// ProfileService keeps the profiles table in step with auth identities
type ProfileService interface {
	// EnsureProfile upserts the actor's profile from token claims and returns it
	EnsureProfile(ctx context.Context, actor models.Identity) (*models.Profile, error)
}
