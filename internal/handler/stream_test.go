package handler

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"biocloud/internal/domain/models"
	"biocloud/internal/handler/sse"
	"biocloud/internal/httputil"
	"biocloud/internal/scene"
	"biocloud/internal/service/servicetest"
	"biocloud/internal/session"
	"biocloud/internal/viewer"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// as serves h with every request authenticated as id.
func as(id models.Identity, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h(w, httputil.WithIdentity(r, id))
	})
}

// nextEvent reads SSE lines until an event line, returning its name and data.
func nextEvent(t *testing.T, lines *bufio.Scanner) (string, string) {
	t.Helper()
	var name string
	for lines.Scan() {
		line := lines.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: ") && name != "":
			return name, strings.TrimPrefix(line, "data: ")
		}
	}
	t.Fatalf("stream ended: %v", lines.Err())
	return "", ""
}

func TestStreamProjectsDeliversOwnerChanges(t *testing.T) {
	e := setup(t)
	streams := NewProjectStreamHandler(e.feed, &sse.Config{KeepAliveInterval: 20 * time.Millisecond}, servicetest.Logger())
	srv := httptest.NewServer(as(owner, streams.StreamProjects))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Headers are flushed after the subscription is live
	p := e.addProject(t, "fresh.pdb", "ATOM\n", true)
	lines := bufio.NewScanner(resp.Body)

	name, data := nextEvent(t, lines)
	assert.Equal(t, EventProjectCreated, name)
	assert.Contains(t, data, p.ID)

	w := serve(e.projects.DeleteProject, request(http.MethodDelete, "/", nil, owner, "id", p.ID))
	require.Equal(t, http.StatusNoContent, w.Code)

	name, data = nextEvent(t, lines)
	assert.Equal(t, EventProjectDeleted, name)
	assert.Contains(t, data, p.ID)
}

func TestStreamProjectsRequiresSignIn(t *testing.T) {
	e := setup(t)
	streams := NewProjectStreamHandler(e.feed, nil, servicetest.Logger())

	w := httptest.NewRecorder()
	streams.StreamProjects(w, httputil.WithIdentity(httptest.NewRequest(http.MethodGet, "/", nil), models.Anonymous()))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func newRealtime(e *env, origins []string) *RealtimeHandler {
	logger := servicetest.Logger()
	deps := session.Deps{
		Projects:   e.projects.projectService,
		Comments:   e.comments.commentService,
		Subscriber: e.feed,
		Engine:     scene.NewEngine(),
		Fetcher:    &viewer.StoreFetcher{Store: e.objects},
		Catalog:    e.catalog,
		Logger:     logger,
	}
	return NewRealtimeHandler(deps, nil, origins, logger)
}

func TestRealtimeConnect(t *testing.T) {
	e := setup(t)
	srv := httptest.NewServer(as(reader, newRealtime(e, []string{"http://localhost:3000"}).Connect))
	defer srv.Close()

	header := http.Header{"Origin": []string{"http://localhost:3000"}}
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	require.NoError(t, err)
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg struct {
		Type string `json:"type"`
		Data struct {
			UserID string `json:"user_id"`
		} `json:"data"`
	}
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, session.MsgReady, msg.Type)
	assert.Equal(t, reader.UserID, msg.Data.UserID)
}

func TestRealtimeRejectsForeignOrigin(t *testing.T) {
	e := setup(t)
	srv := httptest.NewServer(as(reader, newRealtime(e, []string{"http://localhost:3000"}).Connect))
	defer srv.Close()

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
