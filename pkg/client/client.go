// Package client is a Go SDK for the bookshelf API. A Client holds the
// caller's session state (Unknown until Init, then Anonymous or
// Authenticated) and notifies listeners on every transition.
package client

import (
	"bookshelf/pkg/entries"
	"bookshelf/pkg/models"
	"bookshelf/pkg/session"
	"bookshelf/pkg/wishlist"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

type Status int

const (
	StatusUnknown Status = iota
	StatusAnonymous
	StatusAuthenticated
)

func (s Status) String() string {
	switch s {
	case StatusAnonymous:
		return "anonymous"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

var (
	// ErrLoginRequired is returned when an operation needs a signed-in user.
	ErrLoginRequired = errors.New("login required")
	// ErrSessionPending is returned by RequireAuth before Init has finished.
	ErrSessionPending = errors.New("session check pending")
)

// APIError is a non-2xx answer from the server. A 401 unwraps to
// ErrLoginRequired.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bookshelf: %d %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrLoginRequired
	}
	return nil
}

type Listener func(status Status, user *session.User)

type Client struct {
	baseURL  string
	http     *http.Client
	language string

	mu        sync.RWMutex
	status    Status
	user      *session.User
	token     string
	listeners map[int]Listener
	nextID    int
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken seeds the client with a previously issued access token; Init
// checks it against the server.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithLanguage sets the Accept-Language sent with every request.
func WithLanguage(lang string) Option {
	return func(c *Client) { c.language = lang }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 30 * time.Second},
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// CurrentUser returns the signed-in user, or nil.
func (c *Client) CurrentUser() *session.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// Token returns the current access token, empty when anonymous.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// RequireAuth returns the current user or the reason there is none.
func (c *Client) RequireAuth() (*session.User, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.status {
	case StatusUnknown:
		return nil, ErrSessionPending
	case StatusAnonymous:
		return nil, ErrLoginRequired
	}
	return c.user, nil
}

// OnChange registers fn for state transitions. The returned func removes it.
func (c *Client) OnChange(fn Listener) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *Client) transition(status Status, user *session.User, token string) {
	c.mu.Lock()
	c.status = status
	c.user = user
	c.token = token
	listeners := make([]Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(status, user)
	}
}

// Init performs the initial session check. Any failure leaves the client
// Anonymous; errors other than an invalid session are also returned.
func (c *Client) Init(ctx context.Context) error {
	if c.Token() == "" {
		c.transition(StatusAnonymous, nil, "")
		return nil
	}

	var resp struct {
		User session.User `json:"user"`
	}
	err := c.do(ctx, http.MethodGet, "/api/auth/session", nil, &resp)
	if err != nil {
		c.transition(StatusAnonymous, nil, "")
		if errors.Is(err, ErrLoginRequired) {
			return nil
		}
		return err
	}
	c.transition(StatusAuthenticated, &resp.User, c.Token())
	return nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*session.User, error) {
	var sess session.Session
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &sess); err != nil {
		return nil, err
	}
	c.transition(StatusAuthenticated, &sess.User, sess.AccessToken)
	return &sess.User, nil
}

// Signup creates an account. When the server logs the new user in right
// away the client becomes Authenticated; otherwise the state is unchanged.
func (c *Client) Signup(ctx context.Context, email, password, name string) (*session.User, error) {
	var sess session.Session
	creds := session.Credentials{Email: email, Password: password, Name: name}
	if err := c.do(ctx, http.MethodPost, "/api/auth/signup", creds, &sess); err != nil {
		return nil, err
	}
	if sess.AccessToken != "" {
		c.transition(StatusAuthenticated, &sess.User, sess.AccessToken)
	}
	return &sess.User, nil
}

// Logout ends the session. The client is Anonymous afterwards even when the
// server call fails.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	c.transition(StatusAnonymous, nil, "")
	return err
}

func (c *Client) ListEntries(ctx context.Context, id string) ([]models.Entry, error) {
	var out []models.Entry
	if err := c.do(ctx, http.MethodGet, withID("/api/entries", id), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateEntry(ctx context.Context, fields entries.Fields) (*models.Entry, error) {
	var out models.Entry
	if err := c.do(ctx, http.MethodPost, "/api/entries", fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteEntry(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/entries", map[string]string{"id": id}, nil)
}

func (c *Client) ListWishlist(ctx context.Context, id string) ([]models.WishlistItem, error) {
	var out []models.WishlistItem
	if err := c.do(ctx, http.MethodGet, withID("/api/wishlist", id), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateWishlistItem(ctx context.Context, fields wishlist.Fields) (*models.WishlistItem, error) {
	var out models.WishlistItem
	if err := c.do(ctx, http.MethodPost, "/api/wishlist", fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteWishlistItem(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/wishlist", map[string]string{"id": id}, nil)
}

func withID(path, id string) string {
	if id == "" {
		return path
	}
	return path + "?id=" + url.QueryEscape(id)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.language != "" {
		req.Header.Set("Accept-Language", c.language)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("bookshelf request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: e.Error}
		// the server no longer accepts our token
		if resp.StatusCode == http.StatusUnauthorized && c.Status() == StatusAuthenticated {
			c.transition(StatusAnonymous, nil, "")
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
