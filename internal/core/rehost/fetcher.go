package rehost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Image is a downloaded source image.
type Image struct {
	ContentType string
	Data        []byte
}

// Fetcher defines the interface for downloading source images.
type Fetcher interface {
	// Fetch downloads the image at rawURL.
	// Returns the bytes and the declared Content-Type, or an error if the fetch fails.
	Fetch(ctx context.Context, rawURL string) (*Image, error)
}

// HTTPFetcher downloads images over plain HTTP(S).
type HTTPFetcher struct {
	client       *http.Client
	maxSizeBytes int64
}

// DefaultMaxSourceSizeMB is the default maximum source image size if not configured.
const DefaultMaxSourceSizeMB = 10

// DefaultFetchTimeout bounds a single source image download.
const DefaultFetchTimeout = 30 * time.Second

// NewHTTPFetcher creates a new HTTPFetcher with the specified timeout.
// maxSizeMB specifies the maximum allowed image size in megabytes (0 uses default of 10MB).
func NewHTTPFetcher(timeout time.Duration, maxSizeMB int) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxSourceSizeMB
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		maxSizeBytes: int64(maxSizeMB) * 1024 * 1024,
	}
}

// Fetch retrieves the image at rawURL.
// Returns:
//   - ErrFetchTimeout if the request times out or context is cancelled
//   - ErrImageTooLarge if the body exceeds the size limit
//   - ErrFetchFailed for any other error, including non-2xx responses
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Image, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSource, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrFetchFailed, err)
	}

	// Some CDNs filter requests without a browser-like User-Agent
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; Postgen-Rehost/1.0)")
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrFetchTimeout, ctx.Err())
		}
		if isTimeoutError(err) {
			return nil, fmt.Errorf("%w: request timed out", ErrFetchTimeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: unexpected status code %d", ErrFetchFailed, resp.StatusCode)
	}

	if resp.ContentLength > 0 && resp.ContentLength > f.maxSizeBytes {
		return nil, fmt.Errorf("%w: content length %d exceeds maximum %d bytes",
			ErrImageTooLarge, resp.ContentLength, f.maxSizeBytes)
	}

	// Read one byte past the limit to detect oversized bodies without Content-Length
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSizeBytes+1))
	if err != nil {
		if isTimeoutError(err) || ctx.Err() != nil {
			return nil, fmt.Errorf("%w: body read timed out", ErrFetchTimeout)
		}
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrFetchFailed, err)
	}
	if int64(len(data)) > f.maxSizeBytes {
		return nil, fmt.Errorf("%w: response body exceeds maximum %d bytes",
			ErrImageTooLarge, f.maxSizeBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty response body", ErrFetchFailed)
	}

	return &Image{
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// isTimeoutError checks if the error is a timeout-related error.
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return false
}
