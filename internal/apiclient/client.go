// Package apiclient is the single HTTP transport to the remote P-Connect API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 8 << 20

// Config holds the transport settings.
type Config struct {
	// BaseURL is the API root, without a trailing slash.
	BaseURL string

	// Timeout applies to each attempt.
	Timeout time.Duration

	// MaxAttempts is the total number of tries for a request answered with a 5xx.
	MaxAttempts int

	// RetryBackoff is the linear backoff unit: attempt n waits n*RetryBackoff.
	RetryBackoff time.Duration

	// RateLimit caps outbound requests per second. Zero disables limiting.
	RateLimit int

	// LogRequests logs every request at debug level.
	LogRequests bool
}

// TokenSource supplies the bearer token for authenticated calls.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

// Token returns f().
func (f TokenFunc) Token() string { return f() }

type tokenKey struct{}

// WithToken attaches a per-call token source to ctx. It takes precedence
// over the client's default source.
func WithToken(ctx context.Context, ts TokenSource) context.Context {
	return context.WithValue(ctx, tokenKey{}, ts)
}

// TokenOf returns the token attached to ctx by WithToken, or "".
func TokenOf(ctx context.Context) string {
	if ts, ok := tokenFrom(ctx); ok {
		return ts.Token()
	}
	return ""
}

func tokenFrom(ctx context.Context) (TokenSource, bool) {
	ts, ok := ctx.Value(tokenKey{}).(TokenSource)
	return ts, ok && ts != nil
}

// Request describes one API call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any

	// SkipAuth omits the Authorization header (login, public lookups).
	SkipAuth bool
}

// Client talks to the remote API.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	tokens     TokenSource
	logger     *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithDefaultToken sets the token source used when the context carries none.
func WithDefaultToken(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// New creates an API client.
func New(config Config, logger *zap.Logger, opts ...Option) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		config:     config,
		httpClient: &http.Client{},
		logger:     logger.With(zap.String("component", "apiclient")),
	}
	if config.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), config.RateLimit)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Get is shorthand for an authenticated GET.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// Post is shorthand for an authenticated POST.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// Put is shorthand for an authenticated PUT.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

// Delete is shorthand for an authenticated DELETE.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path}, nil)
}

// Do performs req and decodes a JSON response into out (which may be nil).
// Responses with a 5xx status are retried up to MaxAttempts with linear
// backoff; 4xx responses and transport failures are returned immediately.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	var payload []byte
	if req.Body != nil {
		var err error
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	var lastErr *APIError
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return networkError(err)
			}
		}

		status, body, err := c.attempt(ctx, req, payload)
		if err != nil {
			c.logger.Warn("API request failed",
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.Error(err))
			return networkError(err)
		}

		if c.config.LogRequests {
			c.logger.Debug("API request",
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.Int("status", status),
				zap.Int("attempt", attempt))
		}

		if status >= 500 {
			lastErr = decodeError(status, body)
			if attempt < c.config.MaxAttempts {
				c.logger.Warn("API server error, retrying",
					zap.String("path", req.Path),
					zap.Int("status", status),
					zap.Int("attempt", attempt))
				if err := sleep(ctx, time.Duration(attempt)*c.config.RetryBackoff); err != nil {
					return networkError(err)
				}
				continue
			}
			return lastErr
		}

		if status >= 400 {
			return decodeError(status, body)
		}

		if out == nil || status == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding response from %s: %w", req.Path, err)
		}
		return nil
	}

	return lastErr
}

// attempt runs a single HTTP exchange under the per-attempt timeout.
func (c *Client) attempt(ctx context.Context, req Request, payload []byte) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := c.newRequest(ctx, req, body)
	if err != nil {
		return 0, nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, data, nil
}

// newRequest creates an HTTP request with authentication.
func (c *Client) newRequest(ctx context.Context, req Request, body io.Reader) (*http.Request, error) {
	u := c.config.BaseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if !req.SkipAuth {
		if token := c.token(ctx); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	return httpReq, nil
}

func (c *Client) token(ctx context.Context) string {
	if ts, ok := tokenFrom(ctx); ok {
		return ts.Token()
	}
	if c.tokens != nil {
		return c.tokens.Token()
	}
	return ""
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
