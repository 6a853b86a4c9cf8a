// Package project implements reads, visibility, notes and deletion of projects.
package project

import (
	"context"
	"errors"
	"log/slog"

	"biocloud/internal/config"
	"biocloud/internal/domain"
	"biocloud/internal/domain/models"
	"biocloud/internal/domain/repositories"
	"biocloud/internal/domain/services"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// service implements the ProjectService interface
type service struct {
	projectRepo repositories.ProjectRepository
	txManager   repositories.TransactionManager
	authorizer  services.ResourceAuthorizer
	objects     services.ObjectStore
	logger      *slog.Logger
}

// NewService creates a new project service
func NewService(
	projectRepo repositories.ProjectRepository,
	txManager repositories.TransactionManager,
	authorizer services.ResourceAuthorizer,
	objects services.ObjectStore,
	logger *slog.Logger,
) services.ProjectService {
	return &service{
		projectRepo: projectRepo,
		txManager:   txManager,
		authorizer:  authorizer,
		objects:     objects,
		logger:      logger,
	}
}

// GetProject reads through the visibility gate and counts a view when the
// reader is not the owner
func (s *service) GetProject(ctx context.Context, viewer models.Identity, id string) (*models.Project, error) {
	var project *models.Project
	err := s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		var err error
		project, err = s.projectRepo.GetVisible(ctx, id, viewer)
		if err != nil {
			return err
		}
		if project.IsOwnedBy(viewer) {
			return nil
		}
		if err := s.projectRepo.RecordView(ctx, id, viewer); err != nil {
			return err
		}
		project.ViewCount++
		return nil
	})
	if err != nil {
		return nil, err
	}

	return project, nil
}

// PeekProject reads through the visibility gate without recording a view
func (s *service) PeekProject(ctx context.Context, viewer models.Identity, id string) (*models.Project, error) {
	return s.projectRepo.GetVisible(ctx, id, viewer)
}

// ListProjects returns the actor's projects newest first
func (s *service) ListProjects(ctx context.Context, actor models.Identity) ([]models.Project, error) {
	if actor.IsAnonymous() {
		return nil, domain.NewValidationError(domain.ReasonUnauthenticated, "must be signed in to list projects")
	}

	return s.projectRepo.ListByOwner(ctx, actor.UserID)
}

// SetVisibility flips is_public. Setting the current value writes nothing.
func (s *service) SetVisibility(ctx context.Context, actor models.Identity, id string, isPublic bool) (*models.Project, error) {
	project, err := s.authorizer.AuthorizeOwner(ctx, actor, id, "change visibility of")
	if err != nil {
		return nil, err
	}

	if project.IsPublic == isPublic {
		return project, nil
	}

	if err := s.projectRepo.UpdateVisibility(ctx, id, actor.UserID, isPublic); err != nil {
		return nil, wrapWrite("update visibility", err)
	}
	project.IsPublic = isPublic

	s.logger.Info("project visibility changed",
		"id", id,
		"is_public", isPublic,
		"user_id", actor.UserID,
	)

	return project, nil
}

// SaveNotes overwrites the notes. Concurrent saves are last write wins.
func (s *service) SaveNotes(ctx context.Context, actor models.Identity, id string, notes string) (*models.Project, error) {
	if err := validation.Validate(notes, validation.Length(0, config.MaxNotesLength)); err != nil {
		return nil, domain.NewValidationError(domain.ReasonInvalid, "notes %v", err)
	}

	project, err := s.authorizer.AuthorizeOwner(ctx, actor, id, "edit notes of")
	if err != nil {
		return nil, err
	}

	updatedAt, err := s.projectRepo.UpdateNotes(ctx, id, actor.UserID, notes)
	if err != nil {
		return nil, wrapWrite("update notes", err)
	}
	project.Notes = notes
	project.UpdatedAt = updatedAt

	s.logger.Debug("project notes saved",
		"id", id,
		"length", len(notes),
		"user_id", actor.UserID,
	)

	return project, nil
}

// DeleteProject removes the stored file, then the row. A failed file delete
// is logged and does not stop the row delete.
func (s *service) DeleteProject(ctx context.Context, actor models.Identity, id string) error {
	project, err := s.authorizer.AuthorizeOwner(ctx, actor, id, "delete")
	if err != nil {
		return err
	}

	if project.FilePath != "" {
		if err := s.objects.Delete(ctx, project.FilePath); err != nil {
			s.logger.Warn("failed to delete stored file, continuing with row delete",
				"id", id,
				"path", project.FilePath,
				"error", err,
			)
		}
	}

	if err := s.projectRepo.Delete(ctx, id, actor.UserID); err != nil {
		return wrapWrite("delete project", err)
	}

	s.logger.Info("project deleted",
		"id", id,
		"user_id", actor.UserID,
	)

	return nil
}

// wrapWrite keeps not-found errors (the row vanished after the ownership
// check) and reports everything else as a metadata failure
func wrapWrite(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return &domain.MetadataError{Op: op, Err: err}
}
