package services

import (
	"context"

	"biocloud/internal/domain/models"
)

// UploadRequest is one structure file submitted by a signed-in user
type UploadRequest struct {
	Identity    models.Identity
	FileName    string
	ContentType string
	Content     []byte
}

// IngestService turns an uploaded file into a stored blob plus project row
type IngestService interface {
	Upload(ctx context.Context, req *UploadRequest) (*models.Project, error)
}
