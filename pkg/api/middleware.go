package api

import (
	"bookshelf/pkg/apperr"
	"bookshelf/pkg/i18n"
	"bookshelf/pkg/session"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	userKey   = "user"
	localeKey = "locale"
)

func setUser(c *gin.Context, user *session.User) {
	c.Set(userKey, user)
}

// currentUser returns the user resolved by requireSession, or nil.
func currentUser(c *gin.Context) *session.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*session.User)
	return user
}

// ownerID is the id repositories scope by; empty when no session.
func ownerID(c *gin.Context) string {
	if user := currentUser(c); user != nil {
		return user.ID
	}
	return ""
}

func locale(c *gin.Context) string {
	if l := c.GetString(localeKey); l != "" {
		return l
	}
	return i18n.DefaultLocale
}

func (s *Server) negotiateLocale() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(localeKey, i18n.Negotiate(c.GetHeader("Accept-Language")))
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"user_id", ownerID(c),
		)
	}
}

// sessionToken reads the session cookie, falling back to a bearer token.
func (s *Server) sessionToken(c *gin.Context) string {
	if token, err := c.Cookie(s.cfg.Auth.CookieName); err == nil && token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// requireSession aborts with 401 unless the request carries a live session.
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := s.deps.Sessions.Resolve(c.Request.Context(), s.sessionToken(c))
		if err != nil {
			switch {
			case errors.Is(err, apperr.ErrUnauthorized):
			case errors.Is(err, apperr.ErrUnavailable):
				s.fail(c, err)
				c.Abort()
				return
			default:
				s.logger.Error("session resolve failed", "err", apperr.Describe(err))
			}
			s.fail(c, apperr.ErrUnauthorized)
			c.Abort()
			return
		}
		setUser(c, user)
		c.Next()
	}
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": i18n.Translate(locale(c), "error.tooManyRequests", nil),
			})
			return
		}
		c.Next()
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiter keeps one token bucket per client IP. Buckets idle for longer
// than idleTTL are dropped on the next sweep.
type ipLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newIPLimiter(perSecond float64, burst int) *ipLimiter {
	return &ipLimiter{
		visitors:  make(map[string]*visitor),
		limit:     rate.Limit(perSecond),
		burst:     burst,
		idleTTL:   10 * time.Minute,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > l.idleTTL {
		for key, v := range l.visitors {
			if now.Sub(v.lastSeen) > l.idleTTL {
				delete(l.visitors, key)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}
