// Package backend talks to the design-generation API: the streaming chat
// endpoint and the plain REST helpers that share its HTTP client.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	ChatPath   = "/api/v1/chat"
	HealthPath = "/health"

	DefaultBaseURL               = "http://localhost:8000"
	DefaultResponseHeaderTimeout = 30 * time.Second
)

var ErrUnauthorized = errors.New("authentication failed")

// StatusError reports a non-success response, or a success response that had
// no body to stream.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed (%d)", e.StatusCode)
}

// Unwrap lets callers match a 401 with errors.Is(err, ErrUnauthorized).
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// ChatRequest is the JSON body of a chat send.
type ChatRequest struct {
	ThreadID string `json:"thread_id"`
	Message  string `json:"message"`
	Stream   bool   `json:"stream"`
}

// TokenFunc supplies a bearer token for requests that don't carry one yet.
// Returning "" leaves the request unauthenticated.
type TokenFunc func(ctx context.Context) (string, error)

var (
	sharedOnce          sync.Once
	sharedClient        *http.Client
	sharedHeaderTimeout = DefaultResponseHeaderTimeout
	sharedTokens        struct {
		sync.RWMutex
		fn TokenFunc
	}
)

// SetTokenSource installs the token lookup used by the shared transport.
func SetTokenSource(fn TokenFunc) {
	sharedTokens.Lock()
	sharedTokens.fn = fn
	sharedTokens.Unlock()
}

// SetResponseHeaderTimeout configures the shared transport. It only has an
// effect before the first call to SharedHTTPClient.
func SetResponseHeaderTimeout(d time.Duration) {
	if d > 0 {
		sharedHeaderTimeout = d
	}
}

// SharedHTTPClient returns the process-wide client, building it on first use.
// It has no overall timeout because chat responses are long-lived streams;
// the transport bounds how long we wait for response headers instead.
func SharedHTTPClient() *http.Client {
	sharedOnce.Do(func() {
		sharedClient = &http.Client{Transport: newAuthTransport(nil, sharedHeaderTimeout)}
	})
	return sharedClient
}

// authTransport injects Authorization: Bearer <token> when a request has none.
type authTransport struct {
	base http.RoundTripper
}

func newAuthTransport(base http.RoundTripper, headerTimeout time.Duration) *authTransport {
	if base == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.ResponseHeaderTimeout = headerTimeout
		base = t
	}
	return &authTransport{base: base}
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") != "" {
		return t.base.RoundTrip(req)
	}

	sharedTokens.RLock()
	fn := sharedTokens.fn
	sharedTokens.RUnlock()
	if fn == nil {
		return t.base.RoundTrip(req)
	}

	token, err := fn(req.Context())
	if err != nil {
		log.Printf("backend: token lookup failed: %v", err)
		return t.base.RoundTrip(req)
	}
	if token == "" {
		log.Printf("backend: no token available for %s %s", req.Method, req.URL.Path)
		return t.base.RoundTrip(req)
	}

	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(clone)
}

type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the shared client, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func NewClient(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{baseURL: baseURL}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = SharedHTTPClient()
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// StreamChat posts a chat message and returns the event-stream body. The
// caller owns the body and must close it. Cancelling ctx aborts the request
// and any in-progress body read.
func (c *Client) StreamChat(ctx context.Context, token string, chatReq ChatRequest) (io.ReadCloser, error) {
	payload, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ChatPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
		}
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

// Health calls GET /health and returns the decoded JSON body.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+HealthPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build health request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	out := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode health response: %w", err)
	}
	return out, nil
}

// IsTimeout reports whether err came from a transport-level timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}
