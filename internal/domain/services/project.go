package services

import (
	"context"

	"biocloud/internal/domain/models"
)

// UpdateVisibilityRequest toggles a project between public and private
type UpdateVisibilityRequest struct {
	IsPublic *bool `json:"is_public"`
}

// SaveNotesRequest overwrites the owner's notes
type SaveNotesRequest struct {
	Notes string `json:"notes"`
}

// ProjectService defines business logic operations for projects
type ProjectService interface {
	// GetProject reads a project through the visibility gate and records a
	// view for non-owners
	GetProject(ctx context.Context, viewer models.Identity, id string) (*models.Project, error)

	// PeekProject reads through the visibility gate without recording a view
	PeekProject(ctx context.Context, viewer models.Identity, id string) (*models.Project, error)

	// ListProjects returns the actor's own projects, newest first
	ListProjects(ctx context.Context, actor models.Identity) ([]models.Project, error)

	// SetVisibility changes is_public; a no-op when unchanged
	SetVisibility(ctx context.Context, actor models.Identity, id string, isPublic bool) (*models.Project, error)

	// SaveNotes overwrites notes (last write wins)
	SaveNotes(ctx context.Context, actor models.Identity, id string, notes string) (*models.Project, error)

	// DeleteProject removes the blob (best effort) and then the row
	DeleteProject(ctx context.Context, actor models.Identity, id string) error
}
