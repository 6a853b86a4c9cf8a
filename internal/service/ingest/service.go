// Package ingest stores uploaded structure files and records them as projects.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"biocloud/internal/config"
	"biocloud/internal/domain"
	"biocloud/internal/domain/models"
	"biocloud/internal/domain/repositories"
	"biocloud/internal/domain/services"
	"biocloud/internal/formats"

	"github.com/oklog/ulid/v2"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// service implements the IngestService interface
type service struct {
	projectRepo repositories.ProjectRepository
	objects     services.ObjectStore
	catalog     *formats.Catalog
	logger      *slog.Logger
}

// NewService creates a new ingestion service
func NewService(
	projectRepo repositories.ProjectRepository,
	objects services.ObjectStore,
	catalog *formats.Catalog,
	logger *slog.Logger,
) services.IngestService {
	return &service{
		projectRepo: projectRepo,
		objects:     objects,
		catalog:     catalog,
		logger:      logger,
	}
}

// Upload validates the file, writes it to the object store and inserts the
// project row. Nothing is written when validation fails, and no row is
// inserted when the store write fails.
func (s *service) Upload(ctx context.Context, req *services.UploadRequest) (*models.Project, error) {
	if err := validateUpload(req); err != nil {
		return nil, err
	}

	ext := Extension(req.FileName)
	path := ObjectPath(req.Identity.UserID, req.FileName)

	contentType := s.catalog.MediaType(ext)
	url, err := s.objects.Put(ctx, path, req.Content, contentType)
	if err != nil {
		return nil, &domain.StorageError{Op: "put", Path: path, Err: err}
	}

	project := &models.Project{
		OwnerID:       req.Identity.UserID,
		Title:         req.FileName,
		FileURL:       url,
		FilePath:      path,
		FileExtension: ext,
		IsPublic:      true,
	}

	if err := s.projectRepo.Create(ctx, project); err != nil {
		// The blob stays behind; there is no sweeper for it yet.
		s.logger.Error("project insert failed after upload, blob orphaned",
			"path", path,
			"user_id", req.Identity.UserID,
			"error", err,
		)
		return nil, &domain.MetadataError{Op: "insert project", Err: err}
	}

	s.logger.Info("project uploaded",
		"id", project.ID,
		"path", path,
		"extension", ext,
		"size", len(req.Content),
		"known_format", s.catalog.IsAccepted(ext),
		"user_id", req.Identity.UserID,
	)

	return project, nil
}

func validateUpload(req *services.UploadRequest) error {
	if req.Identity.IsAnonymous() {
		return domain.NewValidationError(domain.ReasonUnauthenticated, "must be signed in to upload")
	}
	if len(req.Content) > config.MaxUploadBytes {
		return domain.NewValidationError(domain.ReasonSizeExceeded,
			"file is %d bytes; the limit is %d MB", len(req.Content), config.MaxUploadBytes>>20)
	}
	name := strings.TrimSpace(req.FileName)
	if name == "" {
		return domain.NewValidationError(domain.ReasonInvalid, "file name is required")
	}
	if len(name) > config.MaxTitleLength {
		return domain.NewValidationError(domain.ReasonInvalid,
			"file name must be at most %d characters", config.MaxTitleLength)
	}
	return nil
}

// Extension returns the lower-cased text after the last dot. A name without
// a dot is its own extension.
func Extension(fileName string) string {
	if i := strings.LastIndexByte(fileName, '.'); i >= 0 {
		return strings.ToLower(fileName[i+1:])
	}
	return strings.ToLower(fileName)
}

// ObjectPath builds the storage key <user>/<ulid>_<sanitized name>.
func ObjectPath(userID, fileName string) string {
	return fmt.Sprintf("%s/%s_%s", userID, ulid.Make(), SanitizeName(fileName))
}

// SanitizeName replaces every character outside [a-zA-Z0-9.-] with '_'.
func SanitizeName(fileName string) string {
	return unsafeNameChars.ReplaceAllString(fileName, "_")
}
