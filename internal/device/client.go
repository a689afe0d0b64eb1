// Package device is a client for the U-Boot failsafe recovery web server.
package device

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/smazurov/failsafe/internal/version"
)

const (
	// DefaultURL is the address recovery images listen on.
	DefaultURL = "http://192.168.1.1"
	// DefaultTimeout bounds each non-upload request.
	DefaultTimeout = 10 * time.Second
	maxBodyBytes   = 64 << 10
)

// Config configures a Client.
type Config struct {
	BaseURL string
	// Timeout bounds every request except uploads.
	Timeout time.Duration
	// Retries applies to idempotent reads only.
	Retries int
}

// Client talks to the recovery server. Safe for concurrent use.
type Client struct {
	base   *url.URL
	http   *http.Client
	upload *http.Client
	reads  *retryablehttp.Client
	logger *slog.Logger
}

// field is one multipart form value; order is preserved on the wire.
type field struct {
	name  string
	value string
}

// New creates a Client for the recovery server at cfg.BaseURL.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid device url %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid device url %q: scheme must be http or https", cfg.BaseURL)
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = cfg.Timeout

	// Uploads stream firmware images of tens of megabytes; only the
	// context bounds them.
	uploadClient := cleanhttp.DefaultClient()

	reads := retryablehttp.NewClient()
	reads.HTTPClient = cleanhttp.DefaultPooledClient()
	reads.HTTPClient.Timeout = cfg.Timeout
	reads.RetryMax = cfg.Retries
	reads.RetryWaitMin = 200 * time.Millisecond
	reads.RetryWaitMax = 2 * time.Second
	reads.Logger = logger

	return &Client{
		base:   base,
		http:   httpClient,
		upload: uploadClient,
		reads:  reads,
		logger: logger,
	}, nil
}

// BaseURL returns the recovery server address.
func (c *Client) BaseURL() string {
	return c.base.String()
}

func (c *Client) endpoint(path string) string {
	return c.base.String() + path
}

// get performs an idempotent read through the retrying client.
func (c *Client) get(ctx context.Context, path string) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path), nil)
	if err != nil {
		return "", &TransportError{Endpoint: path, Cause: err}
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.reads.Do(req)
	if err != nil {
		return "", &TransportError{Endpoint: path, Cause: err}
	}
	return readBody(path, resp)
}

// post sends a multipart form. Posts are never retried: /doflash and
// /reboot are not idempotent.
func (c *Client) post(ctx context.Context, path string, fields []field) (string, error) {
	var body io.Reader
	contentType := ""
	if len(fields) > 0 {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		for _, f := range fields {
			if err := mw.WriteField(f.name, f.value); err != nil {
				return "", fmt.Errorf("encode %s: %w", f.name, err)
			}
		}
		if err := mw.Close(); err != nil {
			return "", fmt.Errorf("encode form: %w", err)
		}
		body = &buf
		contentType = mw.FormDataContentType()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), body)
	if err != nil {
		return "", &TransportError{Endpoint: path, Cause: err}
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &TransportError{Endpoint: path, Cause: err}
	}
	return readBody(path, resp)
}

func readBody(path string, resp *http.Response) (string, error) {
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", &TransportError{Endpoint: path, Status: resp.StatusCode, Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &TransportError{Endpoint: path, Status: resp.StatusCode}
	}
	return strings.TrimSpace(string(data)), nil
}
