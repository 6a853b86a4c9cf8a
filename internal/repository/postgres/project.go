package postgres

import (
	"context"
	"fmt"
	"time"

	"biocloud/internal/domain"
	"biocloud/internal/domain/models"
	"biocloud/internal/domain/repositories"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// projectColumns is the select list shared by project reads. The view count
// subquery expects the projects table aliased as p.
const projectColumns = `
	p.id, p.owner_id, p.title, p.file_url, p.file_path, p.file_extension,
	p.is_public, p.notes, p.created_at, p.updated_at`

// PostgresProjectRepository implements the ProjectRepository interface
type PostgresProjectRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(config *RepositoryConfig) repositories.ProjectRepository {
	return &PostgresProjectRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// Create inserts a new project row
func (r *PostgresProjectRepository) Create(ctx context.Context, project *models.Project) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (owner_id, title, file_url, file_path, file_extension, is_public)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, notes, created_at, updated_at
	`, r.tables.Projects)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		project.OwnerID,
		project.Title,
		project.FileURL,
		project.FilePath,
		project.FileExtension,
		project.IsPublic,
	).Scan(&project.ID, &project.Notes, &project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}

	return nil
}

// GetVisible retrieves a project if it is public or owned by the viewer
func (r *PostgresProjectRepository) GetVisible(ctx context.Context, id string, viewer models.Identity) (*models.Project, error) {
	query := fmt.Sprintf(`
		SELECT %s,
			(SELECT count(*) FROM %s v WHERE v.project_id = p.id)
		FROM %s p
		WHERE p.id = $1 AND (p.is_public OR p.owner_id = $2)
	`, projectColumns, r.tables.ProjectViews, r.tables.Projects)

	executor := GetExecutor(ctx, r.pool)
	project, err := scanProject(executor.QueryRow(ctx, query, id, identityParam(viewer.UserID)))
	if err != nil {
		if IsPgNoRowsError(err) || IsPgInvalidInputError(err) {
			return nil, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get project: %w", err)
	}

	return project, nil
}

// ListByOwner retrieves all projects for an owner, newest first, with view counts
func (r *PostgresProjectRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Project, error) {
	query := fmt.Sprintf(`
		SELECT %s, COALESCE(v.view_count, 0)
		FROM %s p
		LEFT JOIN (
			SELECT project_id, count(*) AS view_count
			FROM %s
			GROUP BY project_id
		) v ON v.project_id = p.id
		WHERE p.owner_id = $1
		ORDER BY p.created_at DESC, p.id DESC
	`, projectColumns, r.tables.Projects, r.tables.ProjectViews)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := []models.Project{}
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, *project)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}

	return projects, nil
}

// UpdateVisibility sets is_public on an owned project
func (r *PostgresProjectRepository) UpdateVisibility(ctx context.Context, id, ownerID string, isPublic bool) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET is_public = $1, updated_at = NOW()
		WHERE id = $2 AND owner_id = $3
	`, r.tables.Projects)

	return r.execOwned(ctx, "update visibility", id, query, isPublic, id, ownerID)
}

// UpdateNotes overwrites notes on an owned project
func (r *PostgresProjectRepository) UpdateNotes(ctx context.Context, id, ownerID, notes string) (time.Time, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET notes = $1, updated_at = NOW()
		WHERE id = $2 AND owner_id = $3
		RETURNING updated_at
	`, r.tables.Projects)

	var updatedAt time.Time
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, notes, id, ownerID).Scan(&updatedAt)
	if err != nil {
		if IsPgNoRowsError(err) || IsPgInvalidInputError(err) {
			return time.Time{}, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
		}
		return time.Time{}, fmt.Errorf("update notes: %w", err)
	}

	return updatedAt, nil
}

// Delete removes an owned project
func (r *PostgresProjectRepository) Delete(ctx context.Context, id, ownerID string) error {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE id = $1 AND owner_id = $2
	`, r.tables.Projects)

	return r.execOwned(ctx, "delete project", id, query, id, ownerID)
}

// RecordView appends a project view
func (r *PostgresProjectRepository) RecordView(ctx context.Context, projectID string, viewer models.Identity) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (project_id, viewer_id)
		VALUES ($1, $2)
	`, r.tables.ProjectViews)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, projectID, identityParam(viewer.UserID)); err != nil {
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("project %s: %w", projectID, domain.ErrNotFound)
		}
		return fmt.Errorf("record view: %w", err)
	}

	return nil
}

// execOwned runs an owner-guarded statement; zero affected rows means the
// project is gone or not owned.
func (r *PostgresProjectRepository) execOwned(ctx context.Context, op, id, query string, args ...any) error {
	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, args...)
	if err != nil {
		if IsPgInvalidInputError(err) {
			return fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
	}

	return nil
}

func scanProject(row pgx.Row) (*models.Project, error) {
	var project models.Project
	err := row.Scan(
		&project.ID,
		&project.OwnerID,
		&project.Title,
		&project.FileURL,
		&project.FilePath,
		&project.FileExtension,
		&project.IsPublic,
		&project.Notes,
		&project.CreatedAt,
		&project.UpdatedAt,
		&project.ViewCount,
	)
	if err != nil {
		return nil, err
	}
	return &project, nil
}
