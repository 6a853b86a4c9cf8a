package sse

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Writer serializes events and keep-alives onto one SSE response
type Writer struct {
	mu           sync.Mutex
	w            http.ResponseWriter
	rc           *http.ResponseController
	writeTimeout time.Duration
}

// NewWriter sets the SSE headers and returns a writer for w. Each write must
// complete within writeTimeout (zero disables the deadline), so a client
// that stops reading fails the stream instead of holding it open. It fails
// when the response cannot be flushed incrementally.
func NewWriter(w http.ResponseWriter, writeTimeout time.Duration) (*Writer, error) {
	s := &Writer{w: w, rc: http.NewResponseController(w), writeTimeout: writeTimeout}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)

	if err := s.rc.Flush(); err != nil {
		return nil, fmt.Errorf("response writer does not support flushing: %w", err)
	}
	return s, nil
}

// WriteEvent writes one named event. id may be empty.
func (s *Writer) WriteEvent(id, event string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.extendDeadline(); err != nil {
		return err
	}
	if id != "" {
		if _, err := fmt.Fprintf(s.w, "id: %s\n", id); err != nil {
			return fmt.Errorf("write event id: %w", err)
		}
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return s.rc.Flush()
}

// WriteKeepAlive writes an SSE comment line and flushes
func (s *Writer) WriteKeepAlive() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.extendDeadline(); err != nil {
		return err
	}
	if _, err := fmt.Fprint(s.w, ": keepalive\n\n"); err != nil {
		return fmt.Errorf("write keepalive failed: %w", err)
	}
	return s.rc.Flush()
}

func (s *Writer) extendDeadline() error {
	if s.writeTimeout <= 0 {
		return nil
	}
	err := s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err != nil && !errors.Is(err, http.ErrNotSupported) {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return nil
}
