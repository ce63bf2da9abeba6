// Package session implements the Session Store: sign-up, sign-in, sign-out
// and resolving a token into the current user. Manager keeps users and
// sessions in the Record Store; RemoteStore delegates to a hosted
// GoTrue-compatible identity service.
package session

import (
	"bookshelf/pkg/apperr"
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const minPasswordLength = 6

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Session is an issued access token. AccessToken is empty when the identity
// service created the user but did not log them in (e.g. pending email
// confirmation).
type Session struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	User        User      `json:"user"`
}

type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name" validate:"max=100"`
}

type Store interface {
	SignUp(ctx context.Context, creds Credentials) (*Session, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, token string) error
	// Resolve returns the user owning token, or apperr.ErrUnauthorized.
	Resolve(ctx context.Context, token string) (*User, error)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func checkCredentials(creds Credentials) error {
	if err := validate.Struct(creds); err != nil {
		return apperr.Invalid("error.invalidSignup",
			"a valid email and a password of at least "+strconv.Itoa(minPasswordLength)+" characters are required",
			map[string]string{"min": strconv.Itoa(minPasswordLength)})
	}
	return nil
}
