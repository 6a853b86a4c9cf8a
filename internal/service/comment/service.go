// Package comment implements the append-only comment feed of a project.
package comment

import (
	"context"
	"errors"
	"html"
	"log/slog"
	"strings"

	"biocloud/internal/config"
	"biocloud/internal/domain"
	"biocloud/internal/domain/models"
	"biocloud/internal/domain/repositories"
	"biocloud/internal/domain/services"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/microcosm-cc/bluemonday"
)

// service implements the CommentService interface
type service struct {
	commentRepo repositories.CommentRepository
	projectRepo repositories.ProjectRepository
	profileRepo repositories.ProfileRepository
	authorizer  services.ResourceAuthorizer
	policy      *bluemonday.Policy
	logger      *slog.Logger
}

// NewService creates a new comment service
func NewService(
	commentRepo repositories.CommentRepository,
	projectRepo repositories.ProjectRepository,
	profileRepo repositories.ProfileRepository,
	authorizer services.ResourceAuthorizer,
	logger *slog.Logger,
) services.CommentService {
	return &service{
		commentRepo: commentRepo,
		projectRepo: projectRepo,
		profileRepo: profileRepo,
		authorizer:  authorizer,
		policy:      bluemonday.StrictPolicy(),
		logger:      logger,
	}
}

// ListComments returns the feed of a visible project, oldest first
func (s *service) ListComments(ctx context.Context, viewer models.Identity, projectID string) ([]models.Comment, error) {
	// Distinguish a hidden project from an empty feed
	if _, err := s.projectRepo.GetVisible(ctx, projectID, viewer); err != nil {
		return nil, err
	}

	return s.commentRepo.ListVisible(ctx, projectID, viewer)
}

// PostComment appends a comment by the actor
func (s *service) PostComment(ctx context.Context, actor models.Identity, projectID, content string) (*models.Comment, error) {
	if actor.IsAnonymous() {
		return nil, domain.NewValidationError(domain.ReasonUnauthenticated, "must be signed in to comment")
	}

	content = s.clean(content)
	err := validation.Validate(content,
		validation.Required.Error("comment cannot be empty"),
		validation.RuneLength(1, config.MaxCommentLength),
	)
	if err != nil {
		return nil, domain.NewValidationError(domain.ReasonInvalid, "%v", err)
	}

	comment := &models.Comment{
		ProjectID: projectID,
		UserID:    actor.UserID,
		Content:   content,
	}
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, &domain.MetadataError{Op: "insert comment", Err: err}
	}

	profile, err := s.profileRepo.GetByID(ctx, actor.UserID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("failed to load comment author profile", "user_id", actor.UserID, "error", err)
		}
		profile = nil
	}
	comment.Author = models.NewCommentAuthor(actor.UserID, profile)

	s.logger.Info("comment posted",
		"id", comment.ID,
		"project_id", projectID,
		"user_id", actor.UserID,
	)

	return comment, nil
}

// DeleteComment removes a comment. Allowed for its author and the project owner.
func (s *service) DeleteComment(ctx context.Context, actor models.Identity, id string) error {
	ref, err := s.authorizer.AuthorizeCommentDelete(ctx, actor, id)
	if err != nil {
		return err
	}

	if err := s.commentRepo.Delete(ctx, id, actor); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return &domain.MetadataError{Op: "delete comment", Err: err}
	}

	s.logger.Info("comment deleted",
		"id", id,
		"project_id", ref.ProjectID,
		"user_id", actor.UserID,
	)

	return nil
}

// clean strips markup and surrounding whitespace. Comments are stored as
// plain text, so entities escaped by the policy are decoded again.
func (s *service) clean(content string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(content)))
}
