package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/logging"
)

var (
	// ErrUnauthorized indicates the server rejected the bearer credentials even
	// after the refresh-then-retry protocol ran.
	ErrUnauthorized = errors.New("api: unauthorized")
	// ErrNotFound indicates the requested resource does not exist. Never
	// escalates to a logout.
	ErrNotFound = errors.New("api: not found")
	// ErrUnavailable indicates the server could not be reached at all.
	ErrUnavailable = errors.New("api: server unavailable")
)

// Refresher exchanges the current refresh token for a fresh access token. It is
// consulted at most once per request when the server answers 401 or 403.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Client is the authenticated HTTP client shared by every service. The default
// Authorization header is the single piece of credential state; the token store
// updates it synchronously so in-flight callers pick up rotations immediately.
type Client struct {
	baseURL string
	http    *http.Client

	mu        sync.RWMutex
	token     string
	refresher Refresher
}

// New constructs a Client for the given API base URL.
func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		panic("api: base url must not be empty")
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// SetAuthToken replaces the default bearer token. An empty token clears the
// Authorization header entirely.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// AuthToken returns the current default bearer token, if any.
func (c *Client) AuthToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetRefresher installs the single-flight refresher used for the 401-then-retry
// protocol. It is set after construction because the session manager itself
// depends on this client.
func (c *Client) SetRefresher(r Refresher) {
	c.mu.Lock()
	c.refresher = r
	c.mu.Unlock()
}

// Get issues an authenticated GET request and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out, false)
}

// Post issues an authenticated POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out, false)
}

// Put issues an authenticated PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, path, body, out, false)
}

// Delete issues an authenticated DELETE request. Some endpoints expect a JSON
// body on DELETE (invite revocation does), so body is honored when non-nil.
func (c *Client) Delete(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodDelete, path, body, out, false)
}

// PostNoRetry issues a POST that must never trigger the refresh-then-retry
// protocol. The refresh endpoint itself uses it to avoid recursing.
func (c *Client) PostNoRetry(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out, true)
}

// PostWithToken issues a POST authorized with an explicit bearer token instead
// of the default header. Logout uses it: the store is cleared before the
// best-effort server notification, so the default header is already gone.
func (c *Client) PostWithToken(ctx context.Context, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := statusError(resp.StatusCode); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// PostMultipart uploads form fields plus an optional file under the given field
// name. Used by profile completion and chat import.
func (c *Client) PostMultipart(ctx context.Context, path string, fields map[string]string, fileField, fileName string, file []byte, out any) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return fmt.Errorf("write form field %s: %w", key, err)
		}
	}
	if fileField != "" && file != nil {
		part, err := writer.CreateFormFile(fileField, fileName)
		if err != nil {
			return fmt.Errorf("create form file: %w", err)
		}
		if _, err := part.Write(file); err != nil {
			return fmt.Errorf("write form file: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := statusError(resp.StatusCode); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// Download fetches a raw resource (media blobs) and returns the payload with
// the response headers, which carry content type and disposition.
func (c *Client) Download(ctx context.Context, path string) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build download request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := statusError(resp.StatusCode); err != nil {
		return nil, nil, err
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read download body: %w", err)
	}
	return payload, resp.Header, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, skipRetry bool) error {
	err := c.doOnce(ctx, method, path, body, out)
	if err == nil || skipRetry || !errors.Is(err, ErrUnauthorized) {
		return err
	}

	c.mu.RLock()
	refresher := c.refresher
	c.mu.RUnlock()
	if refresher == nil {
		return err
	}

	logging.FromContext(ctx).Debug("retrying request after token refresh", "method", method, "path", path)
	if _, refreshErr := refresher.Refresh(ctx); refreshErr != nil {
		return fmt.Errorf("refresh after %s %s: %w", method, path, refreshErr)
	}

	return c.doOnce(ctx, method, path, body, out)
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := statusError(resp.StatusCode); err != nil {
		return err
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func statusError(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrUnauthorized, code)
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: status %d", ErrNotFound, code)
	case code >= 400:
		return fmt.Errorf("api: unexpected status %d", code)
	}
	return nil
}
