// Package config loads the service configuration from the environment.
//
// Variables are bound with struct tags (github.com/caarlos0/env). Outside
// production a .env file in the working directory is loaded first
// (github.com/joho/godotenv); variables already set in the process
// environment win over the file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/sakif/miniapp-auth/internal/auth"
)

type Config struct {
	Environment   string `env:"ENVIRONMENT,required"`
	Port          int    `env:"PORT" envDefault:"8080"`
	AllowedOrigin string `env:"ALLOWED_ORIGIN"`

	// TrustedProxy makes the client address come from X-Forwarded-For and
	// friends. Leave it off unless a proxy that overwrites them sits in front.
	TrustedProxy bool `env:"TRUSTED_PROXY"`

	// DatabaseURL, when set, takes precedence over Database.
	DatabaseURL string `env:"DATABASE_URL"`

	// HealthDBTimeout bounds the database probe of GET /health.
	HealthDBTimeout time.Duration `env:"HEALTH_DB_TIMEOUT" envDefault:"5s"`

	Telegram  TelegramConfig
	JWT       JWTConfig       `envPrefix:"JWT_"`
	Database  DatabaseConfig  `envPrefix:"DB_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	Log       LogConfig       `envPrefix:"LOG_"`
}

type TelegramConfig struct {
	BotToken    string        `env:"BOT_TOKEN"`
	InitDataTTL time.Duration `env:"INIT_DATA_MAX_AGE" envDefault:"24h"`
}

type JWTConfig struct {
	Secret     string `env:"SECRET,required"`
	Algorithm  string `env:"ALGORITHM" envDefault:"HS256"`
	Issuer     string `env:"ISSUER" envDefault:"miniapp-backend"`
	ExpiryDays int    `env:"EXPIRY_DAYS" envDefault:"7"`
}

// TTL is the token lifetime. It is configured in whole days.
func (c JWTConfig) TTL() time.Duration {
	return time.Duration(c.ExpiryDays) * 24 * time.Hour
}

// DatabaseConfig describes either a PostgreSQL server (Host set) or a
// SQLite file (Path).
type DatabaseConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"5432"`
	User     string `env:"USER"`
	Password string `env:"PASSWORD"`
	Name     string `env:"NAME"`
	UseSSL   bool   `env:"SSL"`

	Path string `env:"PATH" envDefault:"data/miniapp.db"`

	MaxOpenConns int           `env:"MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	QueryTimeout time.Duration `env:"QUERY_TIMEOUT" envDefault:"0s"`
}

type RateLimitConfig struct {
	RPS   float64 `env:"RPS" envDefault:"1"`
	Burst int     `env:"BURST" envDefault:"1"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"INFO"`
	Format string `env:"FORMAT" envDefault:"text"`
}

// Load reads .env (outside production), parses the process environment and
// validates the result.
func Load() (Config, error) {
	if os.Getenv("ENVIRONMENT") != auth.EnvProduction {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: loading .env: %w", err)
		}
	}
	return parse(env.Options{})
}

// FromMap parses and validates configuration from an explicit variable
// set instead of the process environment.
func FromMap(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("config: "+format, args...))
	}

	switch c.Environment {
	case auth.EnvProduction, auth.EnvDevelopment:
	default:
		add("ENVIRONMENT must be %q or %q, got %q", auth.EnvProduction, auth.EnvDevelopment, c.Environment)
	}
	if c.Port < 1 || c.Port > 65535 {
		add("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.Environment == auth.EnvProduction && c.Telegram.BotToken == "" {
		add("BOT_TOKEN is required in production")
	}
	if c.Telegram.InitDataTTL < 0 {
		add("INIT_DATA_MAX_AGE must not be negative")
	}

	if len(c.JWT.Secret) < auth.MinSecretLength {
		add("JWT_SECRET must be at least %d characters", auth.MinSecretLength)
	}
	switch c.JWT.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		add("JWT_ALGORITHM must be HS256, HS384 or HS512, got %q", c.JWT.Algorithm)
	}
	if c.JWT.ExpiryDays < 1 {
		add("JWT_EXPIRY_DAYS must be at least 1, got %d", c.JWT.ExpiryDays)
	}

	if c.Database.MaxOpenConns < 1 {
		add("DB_MAX_OPEN_CONNS must be at least 1")
	}
	if c.Database.MaxIdleConns < 0 {
		add("DB_MAX_IDLE_CONNS must not be negative")
	}
	if c.Database.QueryTimeout < 0 || c.HealthDBTimeout < 0 {
		add("timeouts must not be negative")
	}

	if c.RateLimit.RPS <= 0 {
		add("RATE_LIMIT_RPS must be positive")
	}
	if c.RateLimit.Burst < 1 {
		add("RATE_LIMIT_BURST must be at least 1")
	}

	if _, err := c.Log.level(); err != nil {
		add("LOG_LEVEL: %v", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		add("LOG_FORMAT must be text or json, got %q", c.Log.Format)
	}

	return errors.Join(errs...)
}

// IsProduction reports whether the service runs in production mode.
func (c Config) IsProduction() bool { return c.Environment == auth.EnvProduction }

// DatabaseDSN resolves the connection string: DATABASE_URL if set, else a
// PostgreSQL URL built from DB_HOST and friends, else the SQLite DB_PATH.
func (c Config) DatabaseDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	if c.Database.Host != "" {
		return c.Database.postgresURL()
	}
	return c.Database.Path
}

func (d DatabaseConfig) postgresURL() string {
	sslmode := "disable"
	if d.UseSSL {
		sslmode = "require"
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   d.Host + ":" + strconv.Itoa(d.Port),
		User:   url.UserPassword(d.User, d.Password),
		Path:   d.Name,
	}
	q := u.Query()
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()
	return u.String()
}

func (l LogConfig) level() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(l.Level))
	return level, err
}

// NewLogger builds the process logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := l.level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
