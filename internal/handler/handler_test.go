package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"biocloud/internal/config"
	"biocloud/internal/domain"
	"biocloud/internal/domain/models"
	"biocloud/internal/formats"
	"biocloud/internal/httputil"
	"biocloud/internal/realtime"
	"biocloud/internal/scene"
	"biocloud/internal/service/auth"
	"biocloud/internal/service/comment"
	"biocloud/internal/service/ingest"
	"biocloud/internal/service/profile"
	"biocloud/internal/service/project"
	"biocloud/internal/service/servicetest"
	"biocloud/internal/viewer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner  = models.Identity{UserID: "owner-1", Email: "rosalind@kcl.ac.uk", FullName: "Rosalind Franklin"}
	reader = models.Identity{UserID: "reader-2", Email: "linus@caltech.edu"}
)

const neonXYZ = "1\nneon\nNe 1 2 3\n"

type env struct {
	db       *servicetest.DB
	objects  *servicetest.Objects
	feed     *realtime.MemoryFeed
	catalog  *formats.Catalog
	projects *ProjectHandler
	comments *CommentHandler
	profiles *ProfileHandler
	scenes   *SceneHandler
}

func setup(t *testing.T) *env {
	t.Helper()
	db := servicetest.NewDB()
	feed := realtime.NewMemoryFeed(servicetest.Logger())
	t.Cleanup(func() { feed.Close() })
	db.Attach(feed)

	objects := servicetest.NewObjects("memory://molecules")
	catalog, err := formats.Default()
	require.NoError(t, err)

	logger := servicetest.Logger()
	authz := auth.NewOwnerBasedAuthorizer(db.Projects(), db.Comments())
	projectService := project.NewService(db.Projects(), servicetest.TxManager{}, authz, objects, logger)

	return &env{
		db:       db,
		objects:  objects,
		feed:     feed,
		catalog:  catalog,
		projects: NewProjectHandler(projectService, ingest.NewService(db.Projects(), objects, catalog, logger), logger),
		comments: NewCommentHandler(comment.NewService(db.Comments(), db.Projects(), db.Profiles(), authz, logger), logger),
		profiles: NewProfileHandler(profile.NewService(db.Profiles(), logger), logger),
		scenes:   NewSceneHandler(projectService, scene.NewEngine(), &viewer.StoreFetcher{Store: objects}, catalog, logger),
	}
}

func (e *env) addProject(t *testing.T, name, content string, public bool) *models.Project {
	t.Helper()
	ctx := context.Background()
	path := owner.UserID + "/" + name
	url, err := e.objects.Put(ctx, path, []byte(content), "")
	require.NoError(t, err)

	p := &models.Project{
		OwnerID:       owner.UserID,
		Title:         name,
		FileURL:       url,
		FilePath:      path,
		FileExtension: ingest.Extension(name),
		IsPublic:      public,
	}
	require.NoError(t, e.db.Projects().Create(ctx, p))
	return p
}

// request builds a request as id, with path values already routed.
func request(method, target string, body []byte, id models.Identity, pathValues ...string) *http.Request {
	r := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(pathValues); i += 2 {
		r.SetPathValue(pathValues[i], pathValues[i+1])
	}
	return httputil.WithIdentity(r, id)
}

func serve(fn http.HandlerFunc, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	fn(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func multipartUpload(t *testing.T, fileName string, content []byte, id models.Identity) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/api/projects", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return httputil.WithIdentity(r, id)
}

func TestUploadCreatesPublicProject(t *testing.T) {
	e := setup(t)

	w := serve(e.projects.Upload, multipartUpload(t, "neon.xyz", []byte(neonXYZ), owner))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var p models.Project
	decode(t, w, &p)
	assert.Equal(t, "neon.xyz", p.Title)
	assert.Equal(t, "xyz", p.FileExtension)
	assert.Equal(t, owner.UserID, p.OwnerID)
	assert.True(t, p.IsPublic)
	assert.True(t, strings.HasPrefix(p.FilePath, owner.UserID+"/"))
	assert.Equal(t, 1, e.objects.Calls("put"))
	assert.Equal(t, 1, e.db.Calls("projects.Create"))
}

func TestUploadRejections(t *testing.T) {
	tests := []struct {
		name     string
		identity models.Identity
		content  []byte
		status   int
		reason   string
	}{
		{
			name:     "anonymous",
			identity: models.Anonymous(),
			content:  []byte(neonXYZ),
			status:   http.StatusUnauthorized,
			reason:   string(domain.ReasonUnauthenticated),
		},
		{
			name:     "over size limit",
			identity: owner,
			content:  bytes.Repeat([]byte("x"), config.MaxUploadBytes+1),
			status:   http.StatusRequestEntityTooLarge,
			reason:   string(domain.ReasonSizeExceeded),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setup(t)

			w := serve(e.projects.Upload, multipartUpload(t, "big.pdb", tt.content, tt.identity))
			assert.Equal(t, tt.status, w.Code)

			var problem map[string]any
			decode(t, w, &problem)
			assert.Equal(t, tt.reason, problem["reason"])
			assert.Zero(t, e.objects.Calls("put"))
			assert.Zero(t, e.db.Writes())
		})
	}
}

func TestUploadWithoutFile(t *testing.T) {
	e := setup(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("title", "no file"))
	require.NoError(t, mw.Close())
	r := httptest.NewRequest(http.MethodPost, "/api/projects", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())

	w := serve(e.projects.Upload, httputil.WithIdentity(r, owner))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, e.objects.Calls("put"))
}

func TestUploadStorageFailure(t *testing.T) {
	e := setup(t)
	e.objects.FailOn("put", errors.New("bucket gone"))

	w := serve(e.projects.Upload, multipartUpload(t, "neon.xyz", []byte(neonXYZ), owner))
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var problem httputil.ProblemDetail
	decode(t, w, &problem)
	assert.Equal(t, "file storage unavailable", problem.Detail)
	assert.Zero(t, e.db.Calls("projects.Create"))
}

func TestGetProjectVisibility(t *testing.T) {
	e := setup(t)
	private := e.addProject(t, "secret.pdb", "ATOM\n", false)
	public := e.addProject(t, "shared.pdb", "ATOM\n", true)

	tests := []struct {
		name     string
		id       string
		identity models.Identity
		status   int
	}{
		{"owner reads private", private.ID, owner, http.StatusOK},
		{"reader denied private", private.ID, reader, http.StatusNotFound},
		{"anonymous denied private", private.ID, models.Anonymous(), http.StatusNotFound},
		{"anonymous reads public", public.ID, models.Anonymous(), http.StatusOK},
		{"malformed id", "not-a-uuid", owner, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := request(http.MethodGet, "/api/projects/"+tt.id, nil, tt.identity, "id", tt.id)
			w := serve(e.projects.GetProject, r)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestGetProjectCountsReaderViews(t *testing.T) {
	e := setup(t)
	p := e.addProject(t, "shared.pdb", "ATOM\n", true)

	w := serve(e.projects.GetProject, request(http.MethodGet, "/", nil, reader, "id", p.ID))
	require.Equal(t, http.StatusOK, w.Code)
	w = serve(e.projects.GetProject, request(http.MethodGet, "/", nil, owner, "id", p.ID))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1, e.db.Views(p.ID))
}

func TestListProjectsNewestFirst(t *testing.T) {
	e := setup(t)
	first := e.addProject(t, "a.pdb", "ATOM\n", true)
	second := e.addProject(t, "b.pdb", "ATOM\n", false)

	w := serve(e.projects.ListProjects, request(http.MethodGet, "/api/projects", nil, owner))
	require.Equal(t, http.StatusOK, w.Code)

	var list []models.Project
	decode(t, w, &list)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestSetVisibility(t *testing.T) {
	e := setup(t)
	p := e.addProject(t, "shared.pdb", "ATOM\n", true)

	w := serve(e.projects.SetVisibility, request(http.MethodPut, "/", []byte(`{}`), owner, "id", p.ID))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(e.projects.SetVisibility, request(http.MethodPut, "/", []byte(`{"is_public":false}`), reader, "id", p.ID))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serve(e.projects.SetVisibility, request(http.MethodPut, "/", []byte(`{"is_public":false}`), owner, "id", p.ID))
	require.Equal(t, http.StatusOK, w.Code)
	var updated models.Project
	decode(t, w, &updated)
	assert.False(t, updated.IsPublic)

	// Now hidden from the reader at the store
	w = serve(e.projects.GetProject, request(http.MethodGet, "/", nil, reader, "id", p.ID))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetVisibilityRejectsUnknownFields(t *testing.T) {
	e := setup(t)
	p := e.addProject(t, "shared.pdb", "ATOM\n", true)

	w := serve(e.projects.SetVisibility, request(http.MethodPut, "/", []byte(`{"is_public":true,"owner_id":"x"}`), owner, "id", p.ID))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSaveNotes(t *testing.T) {
	e := setup(t)
	p := e.addProject(t, "shared.pdb", "ATOM\n", true)

	w := serve(e.projects.SaveNotes, request(http.MethodPut, "/", []byte(`{"notes":"binding pocket at HIS57"}`), reader, "id", p.ID))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serve(e.projects.SaveNotes, request(http.MethodPut, "/", []byte(`{"notes":"binding pocket at HIS57"}`), owner, "id", p.ID))
	require.Equal(t, http.StatusOK, w.Code)
	var updated models.Project
	decode(t, w, &updated)
	assert.Equal(t, "binding pocket at HIS57", updated.Notes)
}

func TestDeleteProject(t *testing.T) {
	e := setup(t)
	p := e.addProject(t, "shared.pdb", "ATOM\n", true)

	w := serve(e.projects.DeleteProject, request(http.MethodDelete, "/", nil, reader, "id", p.ID))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serve(e.projects.DeleteProject, request(http.MethodDelete, "/", nil, owner, "id", p.ID))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, e.objects.Calls("delete"))

	w = serve(e.projects.GetProject, request(http.MethodGet, "/", nil, owner, "id", p.ID))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCommentLifecycle(t *testing.T) {
	e := setup(t)
	p := e.addProject(t, "shared.pdb", "ATOM\n", true)

	w := serve(e.profiles.GetMe, request(http.MethodGet, "/api/users/me", nil, reader))
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(e.comments.PostComment, request(http.MethodPost, "/", []byte(`{"content":"  <b>nice</b> helix  "}`), reader, "id", p.ID))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var posted models.Comment
	decode(t, w, &posted)
	assert.Equal(t, "nice helix", posted.Content)
	assert.Equal(t, "linus", posted.Author.DisplayName)

	w = serve(e.comments.ListComments, request(http.MethodGet, "/", nil, models.Anonymous(), "id", p.ID))
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.Comment
	decode(t, w, &list)
	require.Len(t, list, 1)
	assert.Equal(t, posted.ID, list[0].ID)

	w = serve(e.comments.DeleteComment, request(http.MethodDelete, "/", nil, reader, "id", posted.ID))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestPostCommentRejections(t *testing.T) {
	e := setup(t)
	p := e.addProject(t, "shared.pdb", "ATOM\n", true)
	hidden := e.addProject(t, "secret.pdb", "ATOM\n", false)

	tests := []struct {
		name     string
		project  string
		identity models.Identity
		body     string
		status   int
	}{
		{"anonymous", p.ID, models.Anonymous(), `{"content":"hi"}`, http.StatusUnauthorized},
		{"empty after sanitizing", p.ID, reader, `{"content":"<script></script>"}`, http.StatusBadRequest},
		{"hidden project", hidden.ID, reader, `{"content":"hi"}`, http.StatusNotFound},
		{"malformed body", p.ID, reader, `{"content":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(e.comments.PostComment, request(http.MethodPost, "/", []byte(tt.body), tt.identity, "id", tt.project))
			assert.Equal(t, tt.status, w.Code)
		})
	}
	// Only the post to the hidden project reaches the store, which refuses it
	assert.Equal(t, 1, e.db.Calls("comments.Create"))
}

func TestDeleteCommentByStranger(t *testing.T) {
	e := setup(t)
	p := e.addProject(t, "shared.pdb", "ATOM\n", true)

	w := serve(e.comments.PostComment, request(http.MethodPost, "/", []byte(`{"content":"first"}`), owner, "id", p.ID))
	require.Equal(t, http.StatusCreated, w.Code)
	var posted models.Comment
	decode(t, w, &posted)

	w = serve(e.comments.DeleteComment, request(http.MethodDelete, "/", nil, reader, "id", posted.ID))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetMe(t *testing.T) {
	e := setup(t)

	w := serve(e.profiles.GetMe, request(http.MethodGet, "/api/users/me", nil, models.Anonymous()))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(e.profiles.GetMe, request(http.MethodGet, "/api/users/me", nil, owner))
	require.Equal(t, http.StatusOK, w.Code)
	var p models.Profile
	decode(t, w, &p)
	assert.Equal(t, owner.UserID, p.ID)
	assert.Equal(t, "Rosalind Franklin", p.FullName)
}

func TestGetScene(t *testing.T) {
	e := setup(t)
	p := e.addProject(t, "neon.xyz", neonXYZ, true)

	w := serve(e.scenes.GetScene, request(http.MethodGet, "/", nil, reader, "id", p.ID))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		StyleClass string                    `json:"style_class"`
		Style      map[string]map[string]any `json:"style"`
		Scene      struct {
			AtomCount int `json:"atom_count"`
		} `json:"scene"`
	}
	decode(t, w, &body)
	assert.Equal(t, "small_molecule", body.StyleClass)
	assert.Contains(t, body.Style, "stick")
	assert.Equal(t, 1, body.Scene.AtomCount)

	// Rendering is not a view
	assert.Zero(t, e.db.Views(p.ID))
}

func TestGetSceneRenderErrors(t *testing.T) {
	e := setup(t)
	missing := e.addProject(t, "gone.pdb", "ATOM\n", true)
	require.NoError(t, e.objects.MemoryStore.Delete(context.Background(), missing.FilePath))
	html := e.addProject(t, "page.pdb", "<!DOCTYPE html><html></html>", true)

	w := serve(e.scenes.GetScene, request(http.MethodGet, "/", nil, owner, "id", missing.ID))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var problem map[string]any
	decode(t, w, &problem)
	assert.EqualValues(t, http.StatusNotFound, problem["upstream_status"])

	w = serve(e.scenes.GetScene, request(http.MethodGet, "/", nil, owner, "id", html.ID))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "Received HTML")
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		detail string
	}{
		{"validation", domain.NewValidationError(domain.ReasonInvalid, "bad input"), http.StatusBadRequest, "bad input"},
		{"not found", domain.ErrNotFound, http.StatusNotFound, "not found"},
		{"permission", &domain.PermissionError{Action: "delete", Resource: "project", ID: "p1"}, http.StatusForbidden, "not permitted to delete project p1"},
		{"storage", &domain.StorageError{Op: "put", Path: "a/b", Err: errors.New("timeout")}, http.StatusBadGateway, "file storage unavailable"},
		{"metadata", &domain.MetadataError{Op: "insert", Err: errors.New("connection reset")}, http.StatusInternalServerError, "internal server error"},
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests, "rate limited"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handleError(w, tt.err)
			assert.Equal(t, tt.status, w.Code)

			var problem httputil.ProblemDetail
			decode(t, w, &problem)
			assert.Equal(t, tt.status, problem.Status)
			assert.Equal(t, tt.detail, problem.Detail)
		})
	}
}

func TestHealthCheck(t *testing.T) {
	w := httptest.NewRecorder()
	HealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}
