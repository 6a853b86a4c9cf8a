package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"biocloud/internal/config"
	"biocloud/internal/domain"
	"biocloud/internal/domain/services"
	"biocloud/internal/httputil"
)

// multipartOverhead is allowed on top of the file limit for form framing.
const multipartOverhead = 1 << 20

// ProjectHandler handles project HTTP requests
type ProjectHandler struct {
	projectService services.ProjectService
	ingestService  services.IngestService
	logger         *slog.Logger
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(projectService services.ProjectService, ingestService services.IngestService, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{
		projectService: projectService,
		ingestService:  ingestService,
		logger:         logger,
	}
}

// ListProjects retrieves the caller's projects, newest first
// GET /api/projects
func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projectService.ListProjects(r.Context(), httputil.GetIdentity(r))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, projects)
}

// Upload stores a structure file and creates its project
// POST /api/projects (multipart field "file")
func (h *ProjectHandler) Upload(w http.ResponseWriter, r *http.Request) {
	identity := httputil.GetIdentity(r)
	if identity.IsAnonymous() {
		handleError(w, domain.NewValidationError(domain.ReasonUnauthenticated, "must be signed in to upload"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, config.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handleError(w, domain.NewValidationError(domain.ReasonSizeExceeded, "file exceeds the %d MB limit", config.MaxUploadBytes>>20))
			return
		}
		httputil.RespondError(w, http.StatusBadRequest, "Failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	project, err := h.ingestService.Upload(r.Context(), &services.UploadRequest{
		Identity:    identity,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, project)
}

// GetProject reads a project the caller may see and counts the view
// GET /api/projects/{id}
func (h *ProjectHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParam(w, r, "id", "Project ID")
	if !ok {
		return
	}

	project, err := h.projectService.GetProject(r.Context(), httputil.GetIdentity(r), id)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, project)
}

// SetVisibility toggles public/private
// PUT /api/projects/{id}/visibility
func (h *ProjectHandler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParam(w, r, "id", "Project ID")
	if !ok {
		return
	}

	var req services.UpdateVisibilityRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.IsPublic == nil {
		httputil.RespondError(w, http.StatusBadRequest, "is_public is required")
		return
	}

	project, err := h.projectService.SetVisibility(r.Context(), httputil.GetIdentity(r), id, *req.IsPublic)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, project)
}

// SaveNotes overwrites the owner's notes
// PUT /api/projects/{id}/notes
func (h *ProjectHandler) SaveNotes(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParam(w, r, "id", "Project ID")
	if !ok {
		return
	}

	var req services.SaveNotesRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	project, err := h.projectService.SaveNotes(r.Context(), httputil.GetIdentity(r), id, req.Notes)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, project)
}

// DeleteProject removes the file and the project
// DELETE /api/projects/{id}
func (h *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParam(w, r, "id", "Project ID")
	if !ok {
		return
	}

	if err := h.projectService.DeleteProject(r.Context(), httputil.GetIdentity(r), id); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
