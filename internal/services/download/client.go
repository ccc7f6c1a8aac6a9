package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"brickkit/internal/fileutil"
	"brickkit/internal/logging"
)

const (
	defaultTimeout = 60 * time.Second
	userAgent      = "brickkit/1 (+https://library.ldraw.org/omr)"
)

// Client downloads files over HTTP.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a client with a per-request timeout.
func NewClient(timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch downloads url into dest with a single GET. Any non-2xx response is
// returned as *Error; the caller decides whether to try again.
func (c *Client) Fetch(ctx context.Context, url, dest string) (fileutil.Digest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fileutil.Digest{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fileutil.Digest{}, fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fileutil.Digest{}, &Error{URL: url, StatusCode: resp.StatusCode}
	}
	digest, err := fileutil.WriteAtomic(dest, resp.Body, 0o644)
	if err != nil {
		return fileutil.Digest{}, err
	}
	logging.WithContext(ctx, c.logger).Debug("download complete",
		logging.String("url", url),
		logging.Int64("bytes", digest.Size),
	)
	return digest, nil
}
