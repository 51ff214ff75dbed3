// Package httpsource fetches manifest documents over HTTP.
package httpsource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"BucketCatalog/internal/domain"
	"BucketCatalog/internal/ports"
)

const defaultMaxBytes = 16 << 20

// Source implements ports.ManifestSource with a plain GET.
type Source struct {
	http     *http.Client
	maxBytes int64
}

var _ ports.ManifestSource = (*Source)(nil)

// New creates a Source; a non-positive timeout means 30s.
func New(timeout time.Duration) *Source {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Source{
		http:     &http.Client{Timeout: timeout},
		maxBytes: defaultMaxBytes,
	}
}

// Fetch downloads the raw document at url.
func (s *Source) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrManifestFetch, err)
	}
	req.Header.Set("User-Agent", "BucketCatalog/1.0")
	req.Header.Set("Accept", "application/yaml, text/yaml, text/plain, */*")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrManifestFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s returned %s", domain.ErrManifestFetch, url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrManifestFetch, err)
	}
	if int64(len(body)) > s.maxBytes {
		return nil, fmt.Errorf("%w: document exceeds %d bytes", domain.ErrManifestFetch, s.maxBytes)
	}
	return body, nil
}
