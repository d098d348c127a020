package config

import (
	"os"
	"strings"
)

const (
	EnvDatabaseDSN     = "POSTSCHED_DATABASE_DSN"
	EnvJWTSecret       = "POSTSCHED_JWT_SECRET"
	EnvAlertWebhookURL = "POSTSCHED_ALERT_WEBHOOK_URL"
)

// ApplyEnv overrides secrets from the environment. Empty variables are ignored.
func ApplyEnv(cfg *Config) {
	applyEnv(cfg, os.Getenv)
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if cfg == nil {
		return
	}
	if v := strings.TrimSpace(getenv(EnvDatabaseDSN)); v != "" {
		cfg.Storage.DSN = v
	}
	if v := strings.TrimSpace(getenv(EnvJWTSecret)); v != "" {
		cfg.HTTP.JWTSecret = v
	}
	if v := strings.TrimSpace(getenv(EnvAlertWebhookURL)); v != "" {
		cfg.Logging.Alert.WebhookURL = v
	}
}
