// Package remote is a typed client for the hosted backend: a GoTrue-style auth
// API under /auth/v1 and a PostgREST-style table API under /rest/v1.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/pinenote/internal/apperr"
)

const (
	maxErrorBody = 64 << 10

	mediaObject = "application/vnd.pgrst.object+json"
)

// Client talks to the remote data service. It is safe for concurrent use.
type Client struct {
	base    *url.URL
	anonKey string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the request timeout. It works on a copy of the current
// http.Client, so a client passed to WithHTTPClient is left untouched.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.http
		hc.Timeout = d
		c.http = &hc
	}
}

// NewClient creates a client for the service rooted at baseURL.
func NewClient(baseURL, anonKey string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("remote: base url must be absolute: %q", baseURL)
	}
	c := &Client{
		base:    u,
		anonKey: anonKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Error is a non-2xx answer from the service.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("remote: %d: %s", e.Status, e.Message)
}

// Is reports zero-row answers to single-object requests as apperr.ErrNotFound.
func (e *Error) Is(target error) bool {
	if target != apperr.ErrNotFound {
		return false
	}
	return e.Status == http.StatusNotFound || e.Code == "PGRST116"
}

type request struct {
	method string
	path   string
	query  url.Values
	token  string
	body   any
	accept string
	prefer string
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	u := *c.base
	u.Path = c.base.Path + r.path
	if r.query != nil {
		u.RawQuery = r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("remote: encode body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return fmt.Errorf("remote: build request: %w", err)
	}
	token := r.token
	if token == "" {
		token = c.anonKey
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+token)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.accept != "" {
		req.Header.Set("Accept", r.accept)
	} else {
		req.Header.Set("Accept", "application/json")
	}
	if r.prefer != "" {
		req.Header.Set("Prefer", r.prefer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %v", apperr.ErrInvalidRow, r.method, r.path, err)
	}
	return nil
}

// decodeError understands both PostgREST ({code,message}) and GoTrue
// ({error,error_description} or {code,msg}) error bodies.
func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	e := &Error{Status: resp.StatusCode}

	var payload map[string]any
	if json.Unmarshal(data, &payload) == nil {
		for _, key := range []string{"message", "msg", "error_description", "error"} {
			if s, ok := payload[key].(string); ok && s != "" {
				e.Message = s
				break
			}
		}
		if s, ok := payload["code"].(string); ok {
			e.Code = s
		} else if s, ok := payload["error_code"].(string); ok {
			e.Code = s
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}

// IsUnauthorized reports whether err is a 401 from the service.
func IsUnauthorized(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Status == http.StatusUnauthorized
}

func eq(v string) string { return "eq." + v }
