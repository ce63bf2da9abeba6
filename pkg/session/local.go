package session

import (
	"bookshelf/pkg/apperr"
	"bookshelf/pkg/models"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Manager is the local Session Store. Tokens are HS256 JWTs whose jti is the
// id of a row in the sessions table; deleting the row revokes the token.
type Manager struct {
	db       *gorm.DB
	secret   []byte
	ttl      time.Duration
	hashCost int
	logger   *log.Logger
	now      func() time.Time
}

func NewManager(db *gorm.DB, secret string, ttl time.Duration, logger *log.Logger) *Manager {
	return &Manager{
		db:       db,
		secret:   []byte(secret),
		ttl:      ttl,
		hashCost: bcrypt.DefaultCost,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *Manager) SignUp(ctx context.Context, creds Credentials) (*Session, error) {
	creds.Email = normalizeEmail(creds.Email)
	creds.Name = strings.TrimSpace(creds.Name)
	if err := checkCredentials(creds); err != nil {
		return nil, err
	}

	var count int64
	if err := m.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", creds.Email).Count(&count).Error; err != nil {
		return nil, apperr.Store("select user", err)
	}
	if count > 0 {
		return nil, apperr.ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), m.hashCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		Email:        creds.Email,
		Name:         creds.Name,
		PasswordHash: string(hash),
	}
	if err := m.db.WithContext(ctx).Create(&user).Error; err != nil {
		// lost a race with a concurrent sign-up
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.ErrEmailTaken
		}
		return nil, apperr.Store("insert user", err)
	}

	m.logger.Info("user signed up", "user_id", user.ID)
	return m.issue(ctx, &user)
}

func (m *Manager) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var user models.User
	err := m.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperr.Store("select user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.ErrInvalidCredentials
	}
	return m.issue(ctx, &user)
}

// SignOut deletes the session behind token. Unknown, expired or malformed
// tokens are not an error.
func (m *Manager) SignOut(ctx context.Context, token string) error {
	claims, err := m.parse(token, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil
	}
	if err := m.db.WithContext(ctx).Where("id = ?", claims.ID).Delete(&models.Session{}).Error; err != nil {
		return apperr.Store("delete session", err)
	}
	return nil
}

func (m *Manager) Resolve(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, apperr.ErrUnauthorized
	}
	claims, err := m.parse(token, jwt.WithExpirationRequired())
	if err != nil {
		return nil, apperr.ErrUnauthorized
	}

	var user models.User
	err = m.db.WithContext(ctx).
		Joins("JOIN sessions ON sessions.user_id = users.id").
		Where("sessions.id = ? AND sessions.user_id = ? AND sessions.expires_at > ?", claims.ID, claims.Subject, m.now()).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrUnauthorized
	}
	if err != nil {
		return nil, apperr.Store("select session", err)
	}
	return &User{ID: user.ID, Email: user.Email, Name: user.Name}, nil
}

// PurgeExpired removes session rows past their expiry and returns how many
// were removed.
func (m *Manager) PurgeExpired(ctx context.Context) (int64, error) {
	res := m.db.WithContext(ctx).Where("expires_at <= ?", m.now()).Delete(&models.Session{})
	if res.Error != nil {
		return 0, apperr.Store("purge sessions", res.Error)
	}
	return res.RowsAffected, nil
}

func (m *Manager) issue(ctx context.Context, user *models.User) (*Session, error) {
	now := m.now()
	row := models.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, apperr.Store("insert session", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        row.ID,
		Subject:   user.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(row.ExpiresAt),
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &Session{
		AccessToken: signed,
		ExpiresAt:   row.ExpiresAt,
		User:        User{ID: user.ID, Email: user.Email, Name: user.Name},
	}, nil
}

func (m *Manager) parse(token string, opts ...jwt.ParserOption) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, errors.New("token has no session id")
	}
	return claims, nil
}
