package repositories

import (
	"context"

	"biocloud/internal/domain/models"
)

// CommentRef identifies a comment together with who may delete it.
type CommentRef struct {
	ID             string
	ProjectID      string
	AuthorID       string
	ProjectOwnerID string
}

// CommentRepository defines data access operations for comments.
// All statements are scoped to projects visible to the acting identity.
type CommentRepository interface {
	// ListVisible returns a project's comments oldest first with author
	// profiles merged in
	ListVisible(ctx context.Context, projectID string, viewer models.Identity) ([]models.Comment, error)

	// Create inserts a comment if the project is visible to its author.
	// Returns ErrNotFound when the project is hidden or absent.
	Create(ctx context.Context, comment *models.Comment) error

	// GetRef loads the ownership data needed to authorize a delete
	GetRef(ctx context.Context, id string, viewer models.Identity) (*CommentRef, error)

	// Delete removes a comment if the actor is its author or the project owner
	Delete(ctx context.Context, id string, actor models.Identity) error
}
