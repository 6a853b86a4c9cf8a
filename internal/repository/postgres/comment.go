package postgres

import (
	"context"
	"fmt"

	"biocloud/internal/domain"
	"biocloud/internal/domain/models"
	"biocloud/internal/domain/repositories"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCommentRepository implements the CommentRepository interface
type PostgresCommentRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewCommentRepository creates a new comment repository
func NewCommentRepository(config *RepositoryConfig) repositories.CommentRepository {
	return &PostgresCommentRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// ListVisible returns comments of a visible project, oldest first, with the
// author's profile merged into display data
func (r *PostgresCommentRepository) ListVisible(ctx context.Context, projectID string, viewer models.Identity) ([]models.Comment, error) {
	query := fmt.Sprintf(`
		SELECT c.id, c.project_id, c.user_id, c.content, c.created_at,
			pr.id IS NOT NULL,
			COALESCE(pr.email, ''), COALESCE(pr.full_name, ''), COALESCE(pr.avatar_url, '')
		FROM %s c
		JOIN %s p ON p.id = c.project_id
		LEFT JOIN %s pr ON pr.id = c.user_id
		WHERE c.project_id = $1 AND (p.is_public OR p.owner_id = $2)
		ORDER BY c.created_at ASC, c.id ASC
	`, r.tables.Comments, r.tables.Projects, r.tables.Profiles)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, projectID, identityParam(viewer.UserID))
	if err != nil {
		if IsPgInvalidInputError(err) {
			return nil, fmt.Errorf("project %s: %w", projectID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		var (
			comment    models.Comment
			hasProfile bool
			profile    models.Profile
		)
		err := rows.Scan(
			&comment.ID,
			&comment.ProjectID,
			&comment.UserID,
			&comment.Content,
			&comment.CreatedAt,
			&hasProfile,
			&profile.Email,
			&profile.FullName,
			&profile.AvatarURL,
		)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}

		if hasProfile {
			comment.Author = models.NewCommentAuthor(comment.UserID, &profile)
		} else {
			comment.Author = models.NewCommentAuthor(comment.UserID, nil)
		}
		comments = append(comments, comment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}

	return comments, nil
}

// Create inserts a comment only when its project is visible to the author
func (r *PostgresCommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (project_id, user_id, content)
		SELECT $1, $2, $3
		WHERE EXISTS (
			SELECT 1 FROM %s p
			WHERE p.id = $1 AND (p.is_public OR p.owner_id = $2)
		)
		RETURNING id, created_at
	`, r.tables.Comments, r.tables.Projects)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		comment.ProjectID,
		comment.UserID,
		comment.Content,
	).Scan(&comment.ID, &comment.CreatedAt)
	if err != nil {
		// No row: project hidden or absent. FK: deleted between check and insert.
		if IsPgNoRowsError(err) || IsPgForeignKeyError(err) || IsPgInvalidInputError(err) {
			return fmt.Errorf("project %s: %w", comment.ProjectID, domain.ErrNotFound)
		}
		return fmt.Errorf("create comment: %w", err)
	}

	return nil
}

// GetRef loads a visible comment with its project's owner
func (r *PostgresCommentRepository) GetRef(ctx context.Context, id string, viewer models.Identity) (*repositories.CommentRef, error) {
	query := fmt.Sprintf(`
		SELECT c.id, c.project_id, c.user_id, p.owner_id
		FROM %s c
		JOIN %s p ON p.id = c.project_id
		WHERE c.id = $1 AND (p.is_public OR p.owner_id = $2)
	`, r.tables.Comments, r.tables.Projects)

	var ref repositories.CommentRef
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, id, identityParam(viewer.UserID)).Scan(
		&ref.ID,
		&ref.ProjectID,
		&ref.AuthorID,
		&ref.ProjectOwnerID,
	)
	if err != nil {
		if IsPgNoRowsError(err) || IsPgInvalidInputError(err) {
			return nil, fmt.Errorf("comment %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get comment: %w", err)
	}

	return &ref, nil
}

// Delete removes a comment authored by the actor or on a project the actor
// owns, provided the project is still visible to the actor
func (r *PostgresCommentRepository) Delete(ctx context.Context, id string, actor models.Identity) error {
	query := fmt.Sprintf(`
		DELETE FROM %s c
		USING %s p
		WHERE c.id = $1
			AND p.id = c.project_id
			AND (p.is_public OR p.owner_id = $2)
			AND (c.user_id = $2 OR p.owner_id = $2)
	`, r.tables.Comments, r.tables.Projects)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, id, identityParam(actor.UserID))
	if err != nil {
		if IsPgInvalidInputError(err) {
			return fmt.Errorf("comment %s: %w", id, domain.ErrNotFound)
		}
		return fmt.Errorf("delete comment: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("comment %s: %w", id, domain.ErrNotFound)
	}

	return nil
}
