package servicetest

import (
	"context"
	"sync"

	"biocloud/internal/storage"
)

// Objects wraps a MemoryStore with call counting and failure injection.
type Objects struct {
	*storage.MemoryStore

	mu       sync.Mutex
	calls    map[string]int
	failures map[string]error
	paths    []string
}

// NewObjects creates a store whose URLs start with baseURL.
func NewObjects(baseURL string) *Objects {
	return &Objects{
		MemoryStore: storage.NewMemoryStore(baseURL),
		calls:       make(map[string]int),
		failures:    make(map[string]error),
	}
}

// FailOn makes "put", "get" or "delete" return err.
func (o *Objects) FailOn(op string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures[op] = err
}

// Calls reports how often an operation was invoked.
func (o *Objects) Calls(op string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls[op]
}

// Paths lists every path passed to Put, in call order.
func (o *Objects) Paths() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.paths...)
}

func (o *Objects) enter(op string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls[op]++
	return o.failures[op]
}

func (o *Objects) Put(ctx context.Context, path string, content []byte, contentType string) (string, error) {
	if err := o.enter("put"); err != nil {
		return "", err
	}
	o.mu.Lock()
	o.paths = append(o.paths, path)
	o.mu.Unlock()
	return o.MemoryStore.Put(ctx, path, content, contentType)
}

func (o *Objects) Get(ctx context.Context, url string) ([]byte, error) {
	if err := o.enter("get"); err != nil {
		return nil, err
	}
	return o.MemoryStore.Get(ctx, url)
}

func (o *Objects) Delete(ctx context.Context, path string) error {
	if err := o.enter("delete"); err != nil {
		return err
	}
	return o.MemoryStore.Delete(ctx, path)
}
