package sse

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterFramesEvents(t *testing.T) {
	rec := httptest.NewRecorder()

	// Recorders have no deadlines; the writer carries on without one
	stream, err := NewWriter(rec, time.Second)
	require.NoError(t, err)

	require.NoError(t, stream.WriteEvent("01J", "project_created", []byte(`{"id":"p1"}`)))
	require.NoError(t, stream.WriteEvent("", "project_deleted", []byte(`{"id":"p1"}`)))
	require.NoError(t, stream.WriteKeepAlive())

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "id: 01J\nevent: project_created\ndata: {\"id\":\"p1\"}\n\n"+
		"event: project_deleted\ndata: {\"id\":\"p1\"}\n\n"+
		": keepalive\n\n", rec.Body.String())
}

func TestWriterFailsPastDeadline(t *testing.T) {
	result := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stream, err := NewWriter(w, time.Nanosecond)
		if err != nil {
			result <- err
			return
		}
		result <- stream.WriteEvent("", "project_updated", []byte(`{}`))
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	select {
	case err := <-result:
		assert.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("write did not return")
	}
}
