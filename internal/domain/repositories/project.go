package repositories

import (
	"context"
	"time"

	"biocloud/internal/domain/models"
)

// ProjectRepository defines data access operations for projects.
// Every read applies the visibility predicate (is_public OR owner = viewer);
// every write is guarded by owner_id.
type ProjectRepository interface {
	// Create inserts a project and fills in ID and timestamps
	Create(ctx context.Context, project *models.Project) error

	// GetVisible returns the project if the viewer may read it.
	// Hidden and absent rows both yield ErrNotFound.
	GetVisible(ctx context.Context, id string, viewer models.Identity) (*models.Project, error)

	// ListByOwner returns the owner's projects newest first, with view counts
	ListByOwner(ctx context.Context, ownerID string) ([]models.Project, error)

	// UpdateVisibility sets is_public on an owned project
	UpdateVisibility(ctx context.Context, id, ownerID string, isPublic bool) error

	// UpdateNotes overwrites the notes of an owned project and returns the
	// new updated_at
	UpdateNotes(ctx context.Context, id, ownerID, notes string) (time.Time, error)

	// Delete removes an owned project; comments and views cascade
	Delete(ctx context.Context, id, ownerID string) error

	// RecordView appends a view row. Anonymous viewers are stored as NULL.
	RecordView(ctx context.Context, projectID string, viewer models.Identity) error
}
