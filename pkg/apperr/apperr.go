// Package apperr defines the error kinds shared by the repositories, the
// session store and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized means no user could be resolved for the call.
	ErrUnauthorized = errors.New("unauthorized")

	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUnavailable        = errors.New("authentication service unavailable")

	ErrTitleAuthorRequired = &ValidationError{Key: "error.titleAuthorRequired", Message: "title and author are required"}
	ErrIDRequired          = &ValidationError{Key: "error.idRequired", Message: "id is required"}
)

// ValidationError reports input that was rejected before reaching the store.
// Key names the message in the i18n catalogs; Params fill its placeholders.
type ValidationError struct {
	Key     string
	Message string
	Params  map[string]string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func Invalid(key, message string, params map[string]string) *ValidationError {
	return &ValidationError{Key: key, Message: message, Params: params}
}

// StoreError wraps a Record Store failure. Error returns the underlying
// message unchanged; Op is kept for logging.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Store wraps err as a StoreError. A nil err stays nil.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

func AsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

func AsStore(err error) (*StoreError, bool) {
	var s *StoreError
	if errors.As(err, &s) {
		return s, true
	}
	return nil, false
}

// Describe renders err with its op when it is a StoreError, for log lines.
func Describe(err error) string {
	if s, ok := AsStore(err); ok {
		return fmt.Sprintf("%s: %v", s.Op, s.Err)
	}
	return err.Error()
}
