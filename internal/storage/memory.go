// Package storage holds object store implementations for uploaded files.
package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"biocloud/internal/domain"
)

// MemoryStore keeps objects in process memory. Used when no remote store is
// configured (local development) and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string][]byte
}

// NewMemoryStore creates a store whose URLs start with baseURL.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string][]byte),
	}
}

func (s *MemoryStore) Put(ctx context.Context, path string, content []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = append([]byte(nil), content...)
	return s.baseURL + "/" + path, nil
}

func (s *MemoryStore) Get(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok {
		return nil, fmt.Errorf("url %s is outside this store: %w", url, domain.ErrNotFound)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.objects[path]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", path, domain.ErrNotFound)
	}
	return content, nil
}

func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, path)
	return nil
}

// Len reports how many objects are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
