package main

import (
	"bookshelf/pkg/api"
	"bookshelf/pkg/config"
	"bookshelf/pkg/database"
	"bookshelf/pkg/entries"
	"bookshelf/pkg/session"
	"bookshelf/pkg/wishlist"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gorm.io/gorm"
)

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the bookshelf API server",
		Flags:  serverConfigFlags(),
		Action: r.Serve,
	}
}

func migrateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "migrate",
		Usage:  "Create or update the database schema",
		Flags:  serverConfigFlags(),
		Action: r.Migrate,
	}
}

func configCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration helpers",
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write an example configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Where to write the file",
						Value:   "bookshelf.toml",
					},
				},
				Action: r.ConfigInit,
			},
		},
	}
}

func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	shutdownTracing, err := setupTracing(cfg.Tracing, r.output)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			r.logger.Warn("tracer shutdown failed", "err", err)
		}
	}()

	db, err := database.Open(cfg.Database, r.logger)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions := r.sessionStore(cfg, db)
	if m, ok := sessions.(*session.Manager); ok {
		go r.purgeSessions(ctx, m, cfg.Auth.PurgeInterval.Duration)
	}

	srv := api.NewServer(cfg, api.Deps{
		Entries:  entries.NewRepository(db),
		Wishlist: wishlist.NewRepository(db),
		Sessions: sessions,
		Health:   func(ctx context.Context) error { return database.Ping(ctx, db) },
	}, r.logger)
	return srv.Run(ctx)
}

func (r *Runner) Migrate(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.Database, r.logger)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		return err
	}
	r.logger.Info("database schema is up to date", "driver", cfg.Database.Driver)
	return nil
}

func (r *Runner) ConfigInit(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("output")
	if err := config.WriteExample(path); err != nil {
		return err
	}
	return r.writePlainln("wrote %s", path)
}

func (r *Runner) sessionStore(cfg *config.Config, db *gorm.DB) session.Store {
	if cfg.Auth.Provider == "remote" {
		r.logger.Info("using remote identity service", "url", cfg.Auth.RemoteURL)
		return session.NewRemoteStore(cfg.Auth, r.logger)
	}
	if cfg.Auth.Secret == "change-me" {
		r.logger.Warn("auth.secret is the example value; set BOOKSHELF_AUTH_SECRET")
	}
	return session.NewManager(db, cfg.Auth.Secret, cfg.Auth.TokenTTL.Duration, r.logger)
}

// purgeSessions deletes expired session rows every interval until ctx ends.
func (r *Runner) purgeSessions(ctx context.Context, m *session.Manager, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := m.PurgeExpired(ctx)
			if err != nil {
				r.logger.Error("session purge failed", "err", err)
				continue
			}
			if removed > 0 {
				r.logger.Info("purged expired sessions", "count", removed)
			}
		}
	}
}

// setupTracing installs a stdout span exporter when enabled. The returned
// func flushes and stops it.
func setupTracing(cfg config.TracingConfig, w io.Writer) (func(context.Context) error, error) {
	if !cfg.Stdout {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", "bookshelf"))),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
