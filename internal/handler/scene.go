package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"biocloud/internal/domain"
	"biocloud/internal/domain/services"
	"biocloud/internal/formats"
	"biocloud/internal/httputil"
	"biocloud/internal/viewer"
)

// renderTimeout bounds a one-shot render, fetch included
const renderTimeout = 30 * time.Second

// SceneHandler renders a project once on the server
type SceneHandler struct {
	projectService services.ProjectService
	engine         viewer.Engine
	fetcher        viewer.Fetcher
	catalog        *formats.Catalog
	logger         *slog.Logger
}

// NewSceneHandler creates a new scene handler
func NewSceneHandler(projectService services.ProjectService, engine viewer.Engine, fetcher viewer.Fetcher, catalog *formats.Catalog, logger *slog.Logger) *SceneHandler {
	return &SceneHandler{
		projectService: projectService,
		engine:         engine,
		fetcher:        fetcher,
		catalog:        catalog,
		logger:         logger,
	}
}

// SceneResponse is a rendered project
type SceneResponse struct {
	ProjectID  string                    `json:"project_id"`
	StyleClass formats.StyleClass        `json:"style_class"`
	Style      map[string]map[string]any `json:"style"`
	Scene      any                       `json:"scene"`
}

// GetScene handles GET /api/projects/{id}/scene
func (h *SceneHandler) GetScene(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParam(w, r, "id", "Project ID")
	if !ok {
		return
	}

	// Peek: rendering is not a view
	project, err := h.projectService.PeekProject(r.Context(), httputil.GetIdentity(r), id)
	if err != nil {
		handleError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
	defer cancel()

	v := viewer.New(h.engine, h.fetcher, h.catalog, h.logger)
	defer v.Close()
	v.SetInput(viewer.Input{URL: project.FileURL, Extension: project.FileExtension})

	st, err := v.Wait(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			httputil.RespondError(w, http.StatusGatewayTimeout, "render timed out")
		}
		return
	}

	if st.State == viewer.StateError {
		handleError(w, st.Err)
		return
	}
	if st.State != viewer.StateRendered {
		handleError(w, &domain.RenderError{Message: "render did not complete"})
		return
	}

	httputil.RespondJSON(w, http.StatusOK, SceneResponse{
		ProjectID:  project.ID,
		StyleClass: st.Style.Class,
		Style:      st.Style.Spec(),
		Scene:      st.Frame,
	})
}
