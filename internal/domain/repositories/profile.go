package repositories

import (
	"context"

	"biocloud/internal/domain/models"
)

// ProfileRepository defines data access operations for user profiles
type ProfileRepository interface {
	// Upsert inserts the profile or refreshes email, name and avatar.
	// Empty fields never overwrite stored values.
	Upsert(ctx context.Context, profile *models.Profile) error

	// GetByID retrieves a profile by user ID
	GetByID(ctx context.Context, id string) (*models.Profile, error)
}
