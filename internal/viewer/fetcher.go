package viewer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"biocloud/internal/config"
	"biocloud/internal/domain"
	"biocloud/internal/domain/services"
)

// Fetcher retrieves the content of a structure file by URL.
// Failures are returned as *domain.RenderError.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher GETs the public URL. Bodies over MaxBytes (default
// config.MaxUploadBytes) are rejected rather than truncated.
type HTTPFetcher struct {
	Client   *http.Client
	MaxBytes int64
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &domain.RenderError{Message: fmt.Sprintf("Failed to fetch file: %v", err)}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &domain.RenderError{Message: fmt.Sprintf("Failed to fetch file: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.RenderError{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("Failed to fetch file: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		}
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = config.MaxUploadBytes
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, &domain.RenderError{Status: resp.StatusCode, Message: fmt.Sprintf("Failed to read file: %v", err)}
	}
	if int64(len(data)) > limit {
		return nil, &domain.RenderError{Message: fmt.Sprintf("File exceeds the %d byte render limit", limit)}
	}
	return data, nil
}

// StoreFetcher reads through the object store, skipping the public URL round
// trip when the server renders files it stores itself.
type StoreFetcher struct {
	Store services.ObjectStore
}

func (f *StoreFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	data, err := f.Store.Get(ctx, url)
	if err == nil {
		return data, nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &domain.RenderError{
			Status:  http.StatusNotFound,
			Message: fmt.Sprintf("Failed to fetch file: %d %s", http.StatusNotFound, http.StatusText(http.StatusNotFound)),
		}
	}
	return nil, &domain.RenderError{Status: http.StatusBadGateway, Message: fmt.Sprintf("Failed to fetch file: %v", err)}
}
