package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func baseEnv() map[string]string {
	return map[string]string{
		"TELEGRAM_TOKEN": "123:abc",
		"POSTGRES_DSN":   "postgres://bot@localhost/fleetbot",
	}
}

func load(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	return LoadWith(context.Background(), envconfig.MapLookuper(env))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(t, baseEnv())
	if err != nil {
		t.Fatalf("LoadWith: %v", err)
	}
	if cfg.Telegram.Mode != ModePoll || cfg.Workers != 8 || cfg.Port != "8080" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	s := cfg.Security
	if s.LockoutMaxAttempts != 5 || s.LockoutWindow != 0 || s.LockoutBackend != BackendMemory {
		t.Fatalf("lockout defaults: %+v", s)
	}
	if s.DialogIdleTimeout != 10*time.Minute || !s.EnrollmentReprompt || s.ConfirmationReprompt {
		t.Fatalf("dialog defaults: %+v", s)
	}
	if s.UserIssuer != "hetzner_bot_control" || s.ModeratorIssuer != "hetzner_bot_control_admin" {
		t.Fatalf("issuers: %q %q", s.UserIssuer, s.ModeratorIssuer)
	}
	if cfg.Provider.BaseURL != "https://api.hetzner.cloud/v1" {
		t.Fatalf("provider url %q", cfg.Provider.BaseURL)
	}
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]map[string]string{
		"missing token":          {"POSTGRES_DSN": "x"},
		"bad mode":               {"TELEGRAM_MODE": "carrier-pigeon"},
		"webhook without url":    {"TELEGRAM_MODE": "webhook", "WEBHOOK_SECRET": "s3cret"},
		"webhook without secret": {"TELEGRAM_MODE": "webhook", "WEBHOOK_URL": "https://bot.example.com/telegram/webhook"},
		"redis backend no addr":  {"LOCKOUT_BACKEND": "redis"},
		"non-numeric bootstrap":  {"BOOTSTRAP_MODERATOR_ID": "alice"},
		"zero attempts":          {"LOCKOUT_MAX_ATTEMPTS": "0"},
	}
	for name, extra := range cases {
		env := baseEnv()
		if name == "missing token" {
			env = map[string]string{}
		}
		for k, v := range extra {
			env[k] = v
		}
		if _, err := load(t, env); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoad_Webhook(t *testing.T) {
	env := baseEnv()
	env["TELEGRAM_MODE"] = "webhook"
	env["WEBHOOK_URL"] = "https://bot.example.com/telegram/webhook"
	env["WEBHOOK_SECRET"] = "s3cret"
	env["LOCKOUT_BACKEND"] = "redis"
	env["REDIS_ADDR"] = "localhost:6379"

	cfg, err := load(t, env)
	if err != nil {
		t.Fatalf("LoadWith: %v", err)
	}
	if !strings.HasSuffix(cfg.Telegram.WebhookURL, "/telegram/webhook") || cfg.Telegram.WebhookSecret != "s3cret" {
		t.Fatalf("telegram: %+v", cfg.Telegram)
	}
}
