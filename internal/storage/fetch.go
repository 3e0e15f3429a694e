package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultFetchLimit = 25 * 1024 * 1024

// Fetcher downloads remote generation outputs so they can be re-hosted on the
// application's own storage.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewFetcher builds a Fetcher with a bounded download size. A nil client gets
// a default with a 60 second timeout.
func NewFetcher(client *http.Client, maxBytes int64) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if maxBytes <= 0 {
		maxBytes = defaultFetchLimit
	}
	return &Fetcher{client: client, maxBytes: maxBytes}
}

// Fetch downloads the asset at url and returns its bytes and content type.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("storage: build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("storage: download asset: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, "", fmt.Errorf("storage: download asset: status %d", resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, f.maxBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, "", fmt.Errorf("storage: read asset: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, "", fmt.Errorf("storage: asset too large (>%d bytes)", f.maxBytes)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
