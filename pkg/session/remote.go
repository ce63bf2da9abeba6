package session

import (
	"bookshelf/pkg/apperr"
	"bookshelf/pkg/circuitbreaker"
	"bookshelf/pkg/config"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// RemoteStore talks to a GoTrue-compatible identity service. Every call goes
// through a circuit breaker; client errors (4xx) do not count as failures.
type RemoteStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *log.Logger
}

func NewRemoteStore(cfg config.AuthConfig, logger *log.Logger) *RemoteStore {
	return &RemoteStore{
		baseURL: strings.TrimRight(cfg.RemoteURL, "/"),
		apiKey:  cfg.RemoteAPIKey,
		client:  &http.Client{Timeout: cfg.RemoteTimeout.Duration},
		breaker: circuitbreaker.New(cfg.BreakerMaxFailures, cfg.BreakerCooldown.Duration),
		logger:  logger,
	}
}

type remoteUser struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	UserMetadata struct {
		Name string `json:"name"`
	} `json:"user_metadata"`
}

func (u remoteUser) toUser() User {
	return User{ID: u.ID, Email: u.Email, Name: u.UserMetadata.Name}
}

type remoteSession struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   int64       `json:"expires_in"`
	User        *remoteUser `json:"user"`
}

// statusError is a non-2xx answer from the identity service.
type statusError struct {
	code    int
	errCode string
	msg     string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("identity service returned %d: %s", e.code, e.msg)
}

// emailTaken reports whether a sign-up rejection means the address is
// already registered, as opposed to a password or address policy failure.
func (e *statusError) emailTaken() bool {
	switch e.errCode {
	case "user_already_exists", "email_exists":
		return true
	}
	return strings.Contains(strings.ToLower(e.msg), "already registered")
}

func isClientError(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code < http.StatusInternalServerError
}

func (s *RemoteStore) SignUp(ctx context.Context, creds Credentials) (*Session, error) {
	creds.Email = normalizeEmail(creds.Email)
	creds.Name = strings.TrimSpace(creds.Name)
	if err := checkCredentials(creds); err != nil {
		return nil, err
	}

	body := map[string]any{
		"email":    creds.Email,
		"password": creds.Password,
		"data":     map[string]string{"name": creds.Name},
	}
	// GoTrue answers with a session when autoconfirm is on and with the bare
	// user otherwise.
	var resp struct {
		remoteSession
		remoteUser
	}
	err := s.call(ctx, http.MethodPost, "/auth/v1/signup", "", body, &resp)
	if err != nil {
		var se *statusError
		if !errors.As(err, &se) || !isClientError(err) {
			return nil, err
		}
		if se.emailTaken() {
			return nil, apperr.ErrEmailTaken
		}
		return nil, apperr.Invalid("error.invalidSignup", se.msg, map[string]string{"min": fmt.Sprint(minPasswordLength)})
	}

	if resp.remoteSession.User != nil {
		return s.toSession(resp.remoteSession), nil
	}
	return &Session{User: resp.remoteUser.toUser()}, nil
}

func (s *RemoteStore) SignIn(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": normalizeEmail(email), "password": password}
	var resp remoteSession
	if err := s.call(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", body, &resp); err != nil {
		if isClientError(err) {
			return nil, apperr.ErrInvalidCredentials
		}
		return nil, err
	}
	if resp.User == nil || resp.AccessToken == "" {
		return nil, fmt.Errorf("identity service returned no session")
	}
	return s.toSession(resp), nil
}

func (s *RemoteStore) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	err := s.call(ctx, http.MethodPost, "/auth/v1/logout", token, nil, nil)
	if err != nil && !isClientError(err) {
		return err
	}
	return nil
}

func (s *RemoteStore) Resolve(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, apperr.ErrUnauthorized
	}
	var resp remoteUser
	if err := s.call(ctx, http.MethodGet, "/auth/v1/user", token, nil, &resp); err != nil {
		if isClientError(err) {
			return nil, apperr.ErrUnauthorized
		}
		return nil, err
	}
	user := resp.toUser()
	return &user, nil
}

func (s *RemoteStore) toSession(r remoteSession) *Session {
	return &Session{
		AccessToken: r.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(r.ExpiresIn) * time.Second).UTC(),
		User:        r.User.toUser(),
	}
}

// call performs one request through the breaker. Transport failures, 5xx
// answers and an open breaker are reported as apperr.ErrUnavailable.
func (s *RemoteStore) call(ctx context.Context, method, path, token string, in, out any) error {
	var err error
	breakerErr := s.breaker.Do(func() error {
		err = s.do(ctx, method, path, token, in, out)
		return err
	}, isClientError)

	if errors.Is(breakerErr, circuitbreaker.ErrOpen) {
		s.logger.Warn("identity service breaker open", "path", path)
		return apperr.ErrUnavailable
	}
	if err != nil && !isClientError(err) {
		s.logger.Error("identity service call failed", "path", path, "err", err)
		return fmt.Errorf("%w: %v", apperr.ErrUnavailable, err)
	}
	return err
}

func (s *RemoteStore) do(ctx context.Context, method, path, token string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", s.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		errCode, msg := remoteMessage(raw)
		return &statusError{code: resp.StatusCode, errCode: errCode, msg: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// remoteMessage picks the machine code and the human readable part of a
// GoTrue error body.
func remoteMessage(raw []byte) (string, string) {
	var body struct {
		ErrorCode        string `json:"error_code"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil {
		for _, m := range []string{body.Msg, body.Message, body.ErrorDescription, body.Error} {
			if m != "" {
				return body.ErrorCode, m
			}
		}
	}
	return body.ErrorCode, strings.TrimSpace(string(raw))
}
