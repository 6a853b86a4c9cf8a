package services

import "context"

// ObjectStore is the blob store holding uploaded structure files.
type ObjectStore interface {
	// Put writes content under path and returns its public URL
	Put(ctx context.Context, path string, content []byte, contentType string) (string, error)

	// Get reads an object by its public URL. Missing objects wrap ErrNotFound.
	Get(ctx context.Context, url string) ([]byte, error)

	// Delete removes the object at path
	Delete(ctx context.Context, path string) error
}
