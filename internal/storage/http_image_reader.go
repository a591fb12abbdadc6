package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPImageReader downloads images from arbitrary URLs
type HTTPImageReader struct {
	httpClient *http.Client
}

// NewHTTPImageReader creates a new HTTP-based image reader. A nil client
// falls back to a client without a timeout.
func NewHTTPImageReader(httpClient *http.Client) *HTTPImageReader {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPImageReader{
		httpClient: httpClient,
	}
}

// GetReader issues a GET for url and returns the response body. Any status
// outside 2xx is an error wrapping ErrUnexpectedStatus.
func (ir *HTTPImageReader) GetReader(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := ir.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %d %s for url: %s", ErrUnexpectedStatus, resp.StatusCode, http.StatusText(resp.StatusCode), url)
	}

	return resp.Body, nil
}
