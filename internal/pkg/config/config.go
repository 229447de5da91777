// Package config loads the process configuration from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

const (
	ModePoll    = "poll"
	ModeWebhook = "webhook"

	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Port         string `env:"PORT,           default=8080"`
	Env          string `env:"ENV,            default=development"`
	LogLevel     string `env:"LOG_LEVEL,      default=info"`
	OpsJWTSecret string `env:"OPS_JWT_SECRET"`
	Workers      int    `env:"WORKERS,        default=8" validate:"min=1,max=256"`

	Telegram TelegramConfig
	Postgres PostgresConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	Provider ProviderConfig
	Security SecurityConfig
}

type TelegramConfig struct {
	Token         string `env:"TELEGRAM_TOKEN, required" validate:"required"`
	Mode          string `env:"TELEGRAM_MODE,  default=poll" validate:"oneof=poll webhook"`
	WebhookURL    string `env:"WEBHOOK_URL" validate:"required_if=Mode webhook"`
	WebhookSecret string `env:"WEBHOOK_SECRET" validate:"required_if=Mode webhook,max=256"`
}

type PostgresConfig struct {
	DSN     string        `env:"POSTGRES_DSN, required" validate:"required"`
	Timeout time.Duration `env:"DB_TIMEOUT,   default=5s"`
}

type MongoConfig struct {
	URI      string        `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string        `env:"MONGO_DB,  default=fleetbot"`
	Timeout  time.Duration `env:"MONGO_TIMEOUT, default=5s"`
}

// RedisConfig is optional: with no address update deduplication is off and
// lockout counters must live in memory.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB, default=0"`
}

type ProviderConfig struct {
	BaseURL string        `env:"PROVIDER_BASE_URL, default=https://api.hetzner.cloud/v1" validate:"url"`
	Timeout time.Duration `env:"PROVIDER_TIMEOUT,  default=15s"`
}

type SecurityConfig struct {
	// SecretKey is a base64 32-byte key sealing TOTP secrets at rest.
	SecretKey            string        `env:"SECRET_KEY"`
	BootstrapModeratorID string        `env:"BOOTSTRAP_MODERATOR_ID" validate:"omitempty,number"`
	LockoutMaxAttempts   int           `env:"LOCKOUT_MAX_ATTEMPTS,  default=5" validate:"min=1"`
	LockoutWindow        time.Duration `env:"LOCKOUT_WINDOW,        default=0s"`
	LockoutBackend       string        `env:"LOCKOUT_BACKEND,       default=memory" validate:"oneof=memory redis"`
	DialogIdleTimeout    time.Duration `env:"DIALOG_IDLE_TIMEOUT,   default=10m"`
	EnrollmentReprompt   bool          `env:"ENROLLMENT_REPROMPT,   default=true"`
	ConfirmationReprompt bool          `env:"CONFIRMATION_REPROMPT, default=false"`
	UserIssuer           string        `env:"TOTP_ISSUER,           default=hetzner_bot_control"`
	ModeratorIssuer      string        `env:"TOTP_MODERATOR_ISSUER, default=hetzner_bot_control_admin"`
}

// IsDevelopment enables pretty console logging.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads configuration through l and validates it.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Security.LockoutBackend == BackendRedis && c.Redis.Addr == "" {
		return errors.New("LOCKOUT_BACKEND=redis requires REDIS_ADDR")
	}
	if c.Security.LockoutWindow < 0 || c.Security.DialogIdleTimeout < 0 {
		return errors.New("durations must not be negative")
	}
	return nil
}
