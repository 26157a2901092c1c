// Package apiclient is a Go client for the spmagent HTTP API. It keeps the token pair in a
// Session and transparently refreshes an expired access token once per request.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrSessionExpired is returned when the refresh token is rejected. The session is cleared.
var ErrSessionExpired = errors.New("apiclient: session expired, log in again")

// APIError is a non-2xx response. Detail is the server's user-facing sentence.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("apiclient: http %d", e.StatusCode)
	}
	return fmt.Sprintf("apiclient: http %d: %s", e.StatusCode, e.Detail)
}

// Session holds the current token pair.
type Session struct {
	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

func (s *Session) Tokens() (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken, s.refreshToken
}

func (s *Session) Set(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken, s.refreshToken = access, refresh
}

func (s *Session) Clear() {
	s.Set("", "")
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *Session
	refreshes  singleflight.Group
}

type Option func(*Client)

// WithHTTPClient replaces the default client. Streaming creation needs a client without a
// short overall timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSession starts the client with an existing token pair.
func WithSession(s *Session) Option {
	return func(c *Client) { c.session = s }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		session:    &Session{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Session() *Session { return c.session }

// Do sends an authenticated JSON request and decodes a 2xx body into out (if non-nil).
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.doAuthed(ctx, method, path, body, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decode(resp, out)
}

// doAuthed sends the request with the bearer token. On 401 it refreshes the session and
// retries exactly once. The caller owns the returned 2xx response body.
func (c *Client) doAuthed(ctx context.Context, method, path string, body any, header http.Header) (*http.Response, error) {
	payload, err := encode(body)
	if err != nil {
		return nil, err
	}

	access, refresh := c.session.Tokens()
	resp, err := c.send(ctx, method, path, payload, access, header)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || refresh == "" {
		return checked(resp)
	}
	drain(resp)

	access, err = c.refresh(ctx, refresh)
	if err != nil {
		return nil, err
	}
	resp, err = c.send(ctx, method, path, payload, access, header)
	if err != nil {
		return nil, err
	}
	return checked(resp)
}

// refresh exchanges the refresh token for a new pair. Concurrent callers holding the same
// refresh token share one request.
func (c *Client) refresh(ctx context.Context, used string) (string, error) {
	v, err, _ := c.refreshes.Do(used, func() (any, error) {
		// Another caller may have rotated the pair already.
		if access, current := c.session.Tokens(); current != used && access != "" {
			return access, nil
		}

		var pair AuthResponse
		err := c.postNoAuth(ctx, "/api/auth/refresh", map[string]string{"refresh_token": used}, &pair)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
				c.session.Clear()
				return "", ErrSessionExpired
			}
			return "", err
		}
		c.session.Set(pair.AccessToken, pair.RefreshToken)
		return pair.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// postNoAuth is used for login and refresh, which are never retried.
func (c *Client) postNoAuth(ctx context.Context, path string, body, out any) error {
	payload, err := encode(body)
	if err != nil {
		return err
	}
	resp, err := c.send(ctx, http.MethodPost, path, payload, "", nil)
	if err != nil {
		return err
	}
	resp, err = checked(resp)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decode(resp, out)
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, access string, header http.Header) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
	return c.httpClient.Do(req)
}

func encode(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("apiclient: encode request: %w", err)
	}
	return b, nil
}

// checked passes 2xx responses through and turns anything else into an *APIError.
func checked(resp *http.Response) (*http.Response, error) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		apiErr.Detail = body.Detail
	}
	return nil, apiErr
}

func decode(resp *http.Response, out any) error {
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("apiclient: decode response: %w", err)
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
