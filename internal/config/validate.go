package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks values that cannot be defaulted. Cross-package checks (log
// levels, storage drivers, publisher modes) are done by the app validator.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	s := cfg.Scheduler
	if s.PollIntervalSeconds < 0 {
		errs = append(errs, errors.New("scheduler.poll_interval_seconds must be >= 0"))
	}
	if s.PerPublishTimeoutSeconds < 0 {
		errs = append(errs, errors.New("scheduler.per_publish_timeout_seconds must be >= 0"))
	}
	if s.DispatchConcurrencyLimit < 0 {
		errs = append(errs, errors.New("scheduler.dispatch_concurrency_limit must be >= 0"))
	}
	if s.BatchLimit < 0 {
		errs = append(errs, errors.New("scheduler.batch_limit must be >= 0"))
	}

	if _, err := cfg.Timeouts(); err != nil {
		errs = append(errs, err)
	}

	if cfg.Logging.Alert.Enabled && strings.TrimSpace(cfg.Logging.Alert.WebhookURL) == "" {
		errs = append(errs, fmt.Errorf("logging.alert.webhook_url is required when alerts are enabled (or set %s)", EnvAlertWebhookURL))
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		errs = append(errs, errors.New("logging.file.path is required when file logging is enabled"))
	}
	if cfg.HTTP.Enabled {
		if strings.TrimSpace(cfg.HTTP.Addr) == "" {
			errs = append(errs, errors.New("http.addr is required when http is enabled"))
		}
		if len(cfg.HTTP.JWTSecret) < 16 {
			errs = append(errs, fmt.Errorf("http.jwt_secret must be at least 16 bytes (or set %s)", EnvJWTSecret))
		}
	}
	return errors.Join(errs...)
}
