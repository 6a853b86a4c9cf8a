package services

import (
	"context"

	"biocloud/internal/domain/models"
	"biocloud/internal/domain/repositories"
)

// ResourceAuthorizer checks whether an identity may mutate a resource.
// Services call it before any side effect. Read access is not decided here:
// the store's visibility predicate is the only read gate.
type ResourceAuthorizer interface {
	// AuthorizeOwner loads the project and requires the actor to own it
	AuthorizeOwner(ctx context.Context, actor models.Identity, projectID, action string) (*models.Project, error)

	// AuthorizeCommentDelete requires the actor to be the comment's author
	// or the owner of its project
	AuthorizeCommentDelete(ctx context.Context, actor models.Identity, commentID string) (*repositories.CommentRef, error)
}
