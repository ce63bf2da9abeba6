package main

import (
	"bookshelf/pkg/config"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
)

// Runner holds the dependencies shared by the CLI commands.
type Runner struct {
	logger     *log.Logger
	output     io.Writer
	httpClient *http.Client
}

type RunnerOpts struct {
	Logger     *log.Logger
	Output     io.Writer
	HTTPClient *http.Client
}

func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = newLogger(os.Stderr)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Runner{
		logger:     opts.Logger,
		output:     opts.Output,
		httpClient: opts.HTTPClient,
	}
}

func newLogger(w io.Writer) *log.Logger {
	return log.NewWithOptions(w, log.Options{ReportTimestamp: true})
}

func (r *Runner) App() *cli.Command {
	return &cli.Command{
		Name:    "bookshelf",
		Usage:   "Track the books you have read and the ones you want to read",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Usage:   "Base URL of the bookshelf API (client commands)",
				Value:   "http://localhost:8080",
				Sources: cli.EnvVars("BOOKSHELF_SERVER"),
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Access token printed by the login command (client commands)",
				Sources: cli.EnvVars("BOOKSHELF_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "lang",
				Usage:   "Language for server messages (en or es)",
				Sources: cli.EnvVars("BOOKSHELF_LANG"),
			},
		},
		Commands: r.register(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, migrateCommand, configCommand,
		signupCommand, loginCommand, logoutCommand,
		entriesCommand, wishlistCommand,
	} {
		commands = append(commands, fn(r))
	}
	return commands
}

func serverConfigFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "bookshelf.toml",
			Sources: cli.EnvVars("BOOKSHELF_CONFIG"),
		},
		&cli.StringFlag{
			Name:  "addr",
			Usage: "Listen address",
		},
		&cli.StringFlag{
			Name:  "db-driver",
			Usage: "Database driver (postgres or sqlite)",
		},
		&cli.StringFlag{
			Name:  "sqlite-path",
			Usage: "Database file for the sqlite driver",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level (debug, info, warn, error)",
		},
	}
}

// loadConfig reads the config file (optional unless --config was given),
// applies flag overrides and sets the log level.
func (r *Runner) loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")
	if !cmd.IsSet("config") {
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if cmd.IsSet("addr") {
		cfg.Server.Addr = cmd.String("addr")
	}
	if cmd.IsSet("db-driver") {
		cfg.Database.Driver = cmd.String("db-driver")
	}
	if cmd.IsSet("sqlite-path") {
		cfg.Database.Path = cmd.String("sqlite-path")
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	r.logger.SetLevel(level)
	return cfg, nil
}

func (r *Runner) writeJSON(data any) error {
	output, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if _, err := r.output.Write(append(output, '\n')); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
