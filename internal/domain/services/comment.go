package services

import (
	"context"

	"biocloud/internal/domain/models"
)

// PostCommentRequest is the body of a new comment
type PostCommentRequest struct {
	Content string `json:"content"`
}

// CommentService defines business logic operations for the comment feed
type CommentService interface {
	// ListComments returns the feed oldest first
	ListComments(ctx context.Context, viewer models.Identity, projectID string) ([]models.Comment, error)

	// PostComment appends a comment authored by the actor
	PostComment(ctx context.Context, actor models.Identity, projectID, content string) (*models.Comment, error)

	// DeleteComment removes a comment; allowed for its author and the project owner
	DeleteComment(ctx context.Context, actor models.Identity, id string) error
}
