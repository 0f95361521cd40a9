// Package transport replays queued mutations against the application server
// over HTTP.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultUserAgent = "offlinesync/1.0"
	defaultTimeout   = 15 * time.Second
	maxErrorBody     = 4 << 10
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// ConflictError is returned for 409 responses. Server holds the response body,
// which by convention is the server's current version of the entity.
type ConflictError struct {
	Server []byte
}

func (e *ConflictError) Error() string {
	return "HTTP 409: conflict"
}

// IsConflict reports whether err carries a server conflict.
func IsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Client is the HTTP Doer.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	headers   http.Header
}

var _ Doer = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every request. A timeout counts as a failed replay.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua = strings.TrimSpace(ua); ua != "" {
			c.userAgent = ua
		}
	}
}

// WithHeader adds a header to every request, e.g. an Authorization token.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers.Set(key, value) }
}

// NewClient builds a Client that resolves relative endpoints against baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("parse base url: %q is not absolute", baseURL)
	}
	c := &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: defaultTimeout},
		userAgent: defaultUserAgent,
		headers:   http.Header{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Do sends req and maps the response to an error.
func (c *Client) Do(ctx context.Context, req Request) error {
	target, err := c.resolve(req.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	var body io.Reader
	if len(req.Payload) > 0 && req.Method != http.MethodGet {
		body = bytes.NewReader(req.Payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict:
		return &ConflictError{Server: data}
	default:
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
}

func (c *Client) resolve(endpoint string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return "", err
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	// keep any path prefix on the base, e.g. https://host/api + /notes
	base := *c.baseURL
	base.Path = strings.TrimSuffix(base.Path, "/") + "/" + strings.TrimPrefix(ref.Path, "/")
	base.RawQuery = ref.RawQuery
	return base.String(), nil
}
