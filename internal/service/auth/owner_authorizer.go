package auth

import (
	"context"
	"errors"
	"fmt"

	"biocloud/internal/domain"
	"biocloud/internal/domain/models"
	"biocloud/internal/domain/repositories"
)

// OwnerBasedAuthorizer implements ResourceAuthorizer using ownership checks.
// A project is mutated only by its owner; a comment is deleted by its author
// or by the owner of the project it was posted on.
//
// Lookups go through the visibility predicate, so a resource the actor cannot
// see is reported as not found rather than forbidden.
type OwnerBasedAuthorizer struct {
	projectRepo repositories.ProjectRepository
	commentRepo repositories.CommentRepository
}

// NewOwnerBasedAuthorizer creates a new ownership-based authorizer
func NewOwnerBasedAuthorizer(
	projectRepo repositories.ProjectRepository,
	commentRepo repositories.CommentRepository,
) *OwnerBasedAuthorizer {
	return &OwnerBasedAuthorizer{
		projectRepo: projectRepo,
		commentRepo: commentRepo,
	}
}

// AuthorizeOwner loads the project and requires the actor to own it
func (a *OwnerBasedAuthorizer) AuthorizeOwner(ctx context.Context, actor models.Identity, projectID, action string) (*models.Project, error) {
	if actor.IsAnonymous() {
		return nil, domain.NewValidationError(domain.ReasonUnauthenticated, "must be signed in to %s a project", action)
	}

	project, err := a.projectRepo.GetVisible(ctx, projectID, actor)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load project for auth: %w", err)
	}

	if !project.IsOwnedBy(actor) {
		return nil, &domain.PermissionError{Action: action, Resource: "project", ID: projectID}
	}

	return project, nil
}

// AuthorizeCommentDelete requires the actor to be the comment's author or the
// project owner
func (a *OwnerBasedAuthorizer) AuthorizeCommentDelete(ctx context.Context, actor models.Identity, commentID string) (*repositories.CommentRef, error) {
	if actor.IsAnonymous() {
		return nil, domain.NewValidationError(domain.ReasonUnauthenticated, "must be signed in to delete a comment")
	}

	ref, err := a.commentRepo.GetRef(ctx, commentID, actor)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load comment for auth: %w", err)
	}

	if ref.AuthorID != actor.UserID && ref.ProjectOwnerID != actor.UserID {
		return nil, &domain.PermissionError{Action: "delete", Resource: "comment", ID: commentID}
	}

	return ref, nil
}
