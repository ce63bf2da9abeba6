// Package api is the HTTP surface of bookshelf: a gin router exposing the
// owner-scoped entry and wishlist routes, the auth routes, health and
// metrics.
package api

import (
	"bookshelf/pkg/config"
	"bookshelf/pkg/entries"
	"bookshelf/pkg/models"
	"bookshelf/pkg/session"
	"bookshelf/pkg/wishlist"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const serviceName = "bookshelf"

type EntryStore interface {
	List(ctx context.Context, ownerID, idFilter string) ([]models.Entry, error)
	Create(ctx context.Context, ownerID string, fields entries.Fields) (*models.Entry, error)
	Delete(ctx context.Context, ownerID, entryID string) (int64, error)
}

type WishlistStore interface {
	List(ctx context.Context, ownerID, idFilter string) ([]models.WishlistItem, error)
	Create(ctx context.Context, ownerID string, fields wishlist.Fields) (*models.WishlistItem, error)
	Delete(ctx context.Context, ownerID, itemID string) (int64, error)
}

type Deps struct {
	Entries  EntryStore
	Wishlist WishlistStore
	Sessions session.Store
	// Health reports whether the Record Store is reachable.
	Health func(ctx context.Context) error
}

type Server struct {
	cfg     *config.Config
	deps    Deps
	logger  *log.Logger
	metrics *metrics
	limiter *ipLimiter
	router  *gin.Engine
}

func NewServer(cfg *config.Config, deps Deps, logger *log.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		logger:  logger,
		metrics: newMetrics(),
		limiter: newIPLimiter(cfg.Server.AuthRateLimit, cfg.Server.AuthBurst),
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies(s.cfg.Server.TrustedProxies); err != nil {
		s.logger.Error("invalid trusted proxies, trusting none", "err", err)
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(s.metrics.middleware())
	r.Use(s.requestLogger())
	r.Use(s.negotiateLocale())

	r.GET("/manage/health", s.healthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))

	api := r.Group("/api")

	auth := api.Group("/auth", s.rateLimit())
	auth.POST("/signup", s.signUp)
	auth.POST("/login", s.login)
	auth.POST("/logout", s.logout)
	auth.GET("/session", s.currentSession)

	protected := api.Group("", s.requireSession())
	protected.GET("/entries", s.listEntries)
	protected.POST("/entries", s.createEntry)
	protected.DELETE("/entries", s.deleteEntry)
	protected.GET("/wishlist", s.listWishlist)
	protected.POST("/wishlist", s.createWishlistItem)
	protected.DELETE("/wishlist", s.deleteWishlistItem)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("bookshelf server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout.Duration)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func (s *Server) healthCheck(c *gin.Context) {
	if s.deps.Health != nil {
		if err := s.deps.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "DOWN",
				"details": "Database connection failed",
				"error":   err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}
