package postgres

import (
	"context"
	"fmt"

	"biocloud/internal/domain"
	"biocloud/internal/domain/models"
	"biocloud/internal/domain/repositories"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresProfileRepository implements the ProfileRepository interface
type PostgresProfileRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(config *RepositoryConfig) repositories.ProfileRepository {
	return &PostgresProfileRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// Upsert inserts or refreshes a profile. NULLIF keeps stored values when the
// token carries no data for a field.
func (r *PostgresProfileRepository) Upsert(ctx context.Context, profile *models.Profile) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, email, full_name, avatar_url)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT (id) DO UPDATE SET
			email = COALESCE(EXCLUDED.email, %s.email),
			full_name = COALESCE(EXCLUDED.full_name, %s.full_name),
			avatar_url = COALESCE(EXCLUDED.avatar_url, %s.avatar_url)
		RETURNING created_at
	`, r.tables.Profiles, r.tables.Profiles, r.tables.Profiles, r.tables.Profiles)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		profile.ID,
		profile.Email,
		profile.FullName,
		profile.AvatarURL,
	).Scan(&profile.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}

	return nil
}

// GetByID retrieves a profile by user ID
func (r *PostgresProfileRepository) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	query := fmt.Sprintf(`
		SELECT id, COALESCE(email, ''), COALESCE(full_name, ''), COALESCE(avatar_url, ''), created_at
		FROM %s
		WHERE id = $1
	`, r.tables.Profiles)

	var profile models.Profile
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, id).Scan(
		&profile.ID,
		&profile.Email,
		&profile.FullName,
		&profile.AvatarURL,
		&profile.CreatedAt,
	)
	if err != nil {
		if IsPgNoRowsError(err) || IsPgInvalidInputError(err) {
			return nil, fmt.Errorf("profile %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}

	return &profile, nil
}
