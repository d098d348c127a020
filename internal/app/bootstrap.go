package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"postsched/internal/config"
	"postsched/internal/httpapi"
	"postsched/internal/publisher"
	"postsched/internal/scheduler"
	"postsched/internal/storage"
	logx "postsched/pkg/logx"
)

// ---- Config ----

type Config = config.Config

type ConfigManager = config.ConfigManager

var NewConfigManager = config.NewConfigManager

var SummarizeConfigChange = config.SummarizeConfigChange

// LoadConfig reads, validates and commits the config at path. An empty path
// yields the defaults plus env overrides.
func LoadConfig(path string) (*ConfigManager, *Config, error) {
	cfgm := NewConfigManager(path)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, nil, err
	}
	return cfgm, cfg, nil
}

// validateConfig adds the checks that need other packages (log levels,
// storage drivers, publisher modes) on top of config.Validate.
func validateConfig(cfg *Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	var errs []error
	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", lvl))
	}
	if lvl := strings.TrimSpace(cfg.Logging.Alert.MinLevel); lvl != "" && !logx.ValidLevel(lvl) {
		errs = append(errs, fmt.Errorf("logging.alert.min_level: unknown level %q", lvl))
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if pc, err := mapPublisherConfig(cfg); err != nil {
		errs = append(errs, err)
	} else if err := pc.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("publishers: %w", err))
	}
	if _, err := mapHTTPConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func mapLoggingConfig(cfg *Config) logx.Config {
	lc := cfg.Logging
	// Reloads are validated first; a bad value still resolves to the default.
	timeouts, _ := cfg.Timeouts()
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Alert: logx.AlertConfig{
			Enabled:    lc.Alert.Enabled,
			WebhookURL: lc.Alert.WebhookURL,
			MinLevel:   lc.Alert.MinLevel,
			RatePerSec: lc.Alert.RatePerSec,
			Timeout:    timeouts.Alert,
		},
	}
}

func mapStorageConfig(cfg *Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := storage.NormalizeDriver(sc.Driver)
	out := storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), DSN: strings.TrimSpace(sc.DSN), MaxOpenConns: sc.MaxOpenConns}
	switch driver {
	case "memory":
	case "sqlite":
		if out.Path == "" {
			return storage.Config{}, errors.New("storage.path is required when storage.driver=sqlite")
		}
		timeouts, err := cfg.Timeouts()
		if err != nil {
			return storage.Config{}, err
		}
		out.BusyTimeout = timeouts.SQLiteBusy
	case "postgres":
		if out.DSN == "" {
			return storage.Config{}, fmt.Errorf("storage.dsn is required when storage.driver=postgres (or set %s)", config.EnvDatabaseDSN)
		}
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
	return out, nil
}

func mapPublisherConfig(cfg *Config) (publisher.Config, error) {
	pc := cfg.Publishers
	timeouts, err := cfg.Timeouts()
	if err != nil {
		return publisher.Config{}, err
	}
	out := publisher.Config{
		Mode:        pc.Mode,
		HTTPTimeout: timeouts.PublisherHTTP,
		Platforms:   make(map[string]publisher.PlatformConfig, len(pc.Platforms)),
	}
	for name, p := range pc.Platforms {
		out.Platforms[strings.TrimSpace(name)] = publisher.PlatformConfig{
			Mode:       p.Mode,
			BaseURL:    p.BaseURL,
			RatePerSec: p.RatePerSec,
			Burst:      p.Burst,
		}
	}
	return out, nil
}

func mapSchedulerConfig(cfg *Config) scheduler.Config {
	sc := cfg.Scheduler
	return scheduler.Config{
		PollInterval:   time.Duration(sc.PollIntervalSeconds) * time.Second,
		PublishTimeout: time.Duration(sc.PerPublishTimeoutSeconds) * time.Second,
		Concurrency:    sc.DispatchConcurrencyLimit,
		BatchLimit:     sc.BatchLimit,
		HistorySize:    sc.HistorySize,
	}
}

func mapHTTPConfig(cfg *Config) (httpapi.Config, error) {
	hc := cfg.HTTP
	timeouts, err := cfg.Timeouts()
	if err != nil {
		return httpapi.Config{}, err
	}
	return httpapi.Config{
		Addr:            hc.Addr,
		JWTSecret:       hc.JWTSecret,
		ReadTimeout:     timeouts.HTTPRead,
		WriteTimeout:    timeouts.HTTPWrite,
		ShutdownTimeout: timeouts.HTTPShutdown,
	}, nil
}

// TokenTTL returns http.token_ttl, defaulting to 24h.
func TokenTTL(cfg *Config) (time.Duration, error) {
	timeouts, err := cfg.Timeouts()
	return timeouts.TokenTTL, err
}

// OpenStore opens and migrates the configured store.
func OpenStore(ctx context.Context, cfg *Config, log logx.Logger) (storage.Store, error) {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	return storage.Open(ctx, sc, log.With(logx.String("comp", "storage")))
}

type PlatformPublisherConfig = config.PlatformPublisherConfig

var defaultConfig = config.Default
