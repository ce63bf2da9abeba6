// Package config loads the bookshelf server settings: embedded defaults,
// then an optional TOML file, then environment variables. Command-line
// flags are applied on top by cmd/bookshelf.
package config

import (
	_ "embed"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Auth     AuthConfig     `toml:"auth"`
	Log      LogConfig      `toml:"log"`
	Tracing  TracingConfig  `toml:"tracing"`
}

type ServerConfig struct {
	Addr            string   `toml:"addr"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
	// AuthRateLimit is requests per second per client IP on /api/auth.
	AuthRateLimit float64 `toml:"auth_rate_limit"`
	AuthBurst     int     `toml:"auth_burst"`
	// TrustedProxies lists the IPs or CIDRs whose X-Forwarded-For is
	// believed. Empty means the peer address is the client IP.
	TrustedProxies []string `toml:"trusted_proxies"`
}

// DatabaseConfig selects the Record Store. Driver is "postgres" or "sqlite";
// the host/port/user fields are only read for postgres and Path only for sqlite.
type DatabaseConfig struct {
	Driver          string   `toml:"driver"`
	Host            string   `toml:"host"`
	Port            string   `toml:"port"`
	User            string   `toml:"user"`
	Password        string   `toml:"password"`
	Name            string   `toml:"name"`
	SSLMode         string   `toml:"sslmode"`
	Path            string   `toml:"path"`
	MaxOpenConns    int      `toml:"max_open_conns"`
	MaxIdleConns    int      `toml:"max_idle_conns"`
	ConnMaxLifetime Duration `toml:"conn_max_lifetime"`
	ConnectRetries  int      `toml:"connect_retries"`
	RetryDelay      Duration `toml:"retry_delay"`
	AutoMigrate     bool     `toml:"auto_migrate"`
}

// DSN renders the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode)
}

// AuthConfig selects the Session Store. Provider "local" keeps users and
// sessions in the Record Store; "remote" delegates to a hosted identity
// service at RemoteURL.
type AuthConfig struct {
	Provider           string   `toml:"provider"`
	Secret             string   `toml:"secret"`
	TokenTTL           Duration `toml:"token_ttl"`
	CookieName         string   `toml:"cookie_name"`
	CookieSecure       bool     `toml:"cookie_secure"`
	RemoteURL          string   `toml:"remote_url"`
	RemoteAPIKey       string   `toml:"remote_api_key"`
	RemoteTimeout      Duration `toml:"remote_timeout"`
	BreakerMaxFailures int      `toml:"breaker_max_failures"`
	BreakerCooldown    Duration `toml:"breaker_cooldown"`
	PurgeInterval      Duration `toml:"purge_interval"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type TracingConfig struct {
	Stdout bool `toml:"stdout"`
}

// Duration is a time.Duration that decodes from strings such as "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration described by the embedded example file.
func Default() *Config {
	var cfg Config
	if err := toml.Unmarshal(exampleConf, &cfg); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &cfg
}

// Load builds a Config from defaults, the TOML file at path (skipped when
// path is empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteExample writes the embedded example config to path, refusing to
// overwrite an existing file.
func WriteExample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.WriteFile(path, exampleConf, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	switch c.Auth.Provider {
	case "local":
		if c.Auth.Secret == "" {
			return fmt.Errorf("auth.secret is required for the local provider")
		}
	case "remote":
		if c.Auth.RemoteURL == "" {
			return fmt.Errorf("auth.remote_url is required for the remote provider")
		}
	default:
		return fmt.Errorf("auth.provider must be local or remote, got %q", c.Auth.Provider)
	}
	if c.Auth.TokenTTL.Duration <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.Server.AuthRateLimit <= 0 || c.Server.AuthBurst <= 0 {
		return fmt.Errorf("server.auth_rate_limit and server.auth_burst must be positive")
	}
	for _, p := range c.Server.TrustedProxies {
		if net.ParseIP(p) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(p); err != nil {
			return fmt.Errorf("server.trusted_proxies: %q is not an IP or CIDR", p)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Addr, "BOOKSHELF_ADDR")
	setString(&c.Database.Driver, "BOOKSHELF_DB_DRIVER")
	setString(&c.Database.Host, "DB_HOST")
	setString(&c.Database.Port, "DB_PORT")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Name, "DB_NAME")
	setString(&c.Database.Path, "BOOKSHELF_SQLITE_PATH")
	setString(&c.Auth.Provider, "BOOKSHELF_AUTH_PROVIDER")
	setString(&c.Auth.Secret, "BOOKSHELF_AUTH_SECRET")
	setString(&c.Auth.RemoteURL, "BOOKSHELF_AUTH_URL")
	setString(&c.Auth.RemoteAPIKey, "BOOKSHELF_AUTH_API_KEY")
	setString(&c.Log.Level, "BOOKSHELF_LOG_LEVEL")

	if v := getEnv("BOOKSHELF_TRUSTED_PROXIES", ""); v != "" {
		c.Server.TrustedProxies = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.Server.TrustedProxies = append(c.Server.TrustedProxies, p)
			}
		}
	}

	if v := getEnv("BOOKSHELF_COOKIE_SECURE", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BOOKSHELF_COOKIE_SECURE: %w", err)
		}
		c.Auth.CookieSecure = b
	}
	return nil
}

func setString(dst *string, key string) {
	*dst = getEnv(key, *dst)
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
