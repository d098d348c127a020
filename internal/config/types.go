package config

// Config is the on-disk configuration (JSON or YAML).
//
// Durations are Go duration strings ("500ms", "10s", "1m") except for the
// scheduler block, which keeps whole-second integer options.
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Storage    StorageConfig    `json:"storage"`
	Publishers PublishersConfig `json:"publishers"`
	HTTP       HTTPConfig       `json:"http"`
}

type LoggingConfig struct {
	Level   string       `json:"level"`
	Console bool         `json:"console"`
	File    LoggingFile  `json:"file"`
	Alert   LoggingAlert `json:"alert"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingAlert forwards high-severity log events to an operator webhook.
type LoggingAlert struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"` // overridable via POSTSCHED_ALERT_WEBHOOK_URL
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
	Timeout    string `json:"timeout,omitempty"`
}

// SchedulerConfig controls the polling loop.
//
// Defaults (when fields are omitted/zero):
//   - enabled: true
//   - poll_interval_seconds: 60
//   - per_publish_timeout_seconds: 10
//   - dispatch_concurrency_limit: 4
//   - batch_limit: 0 (unlimited)
//   - history_size: 50
type SchedulerConfig struct {
	Enabled                  *bool `json:"enabled,omitempty"`
	PollIntervalSeconds      int   `json:"poll_interval_seconds"`
	PerPublishTimeoutSeconds int   `json:"per_publish_timeout_seconds"`
	DispatchConcurrencyLimit int   `json:"dispatch_concurrency_limit"`
	BatchLimit               int   `json:"batch_limit,omitempty"`
	HistorySize              int   `json:"history_size,omitempty"`
}

// IsEnabled treats an omitted flag as enabled.
func (s SchedulerConfig) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/postsched.db" }
type StorageConfig struct {
	Driver       string `json:"driver"`
	Path         string `json:"path,omitempty"`
	DSN          string `json:"dsn,omitempty"`          // postgres; overridable via POSTSCHED_DATABASE_DSN
	BusyTimeout  string `json:"busy_timeout,omitempty"` // sqlite
	MaxOpenConns int    `json:"max_open_conns,omitempty"`
}

type PublishersConfig struct {
	// Mode is the default delivery mode: log | http | disabled.
	Mode        string                             `json:"mode"`
	HTTPTimeout string                             `json:"http_timeout,omitempty"`
	Platforms   map[string]PlatformPublisherConfig `json:"platforms,omitempty"`
}

type PlatformPublisherConfig struct {
	Mode       string  `json:"mode,omitempty"`
	BaseURL    string  `json:"base_url,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`
}

type HTTPConfig struct {
	Enabled         bool   `json:"enabled"`
	Addr            string `json:"addr"`
	JWTSecret       string `json:"jwt_secret,omitempty"` // overridable via POSTSCHED_JWT_SECRET
	TokenTTL        string `json:"token_ttl,omitempty"`
	ReadTimeout     string `json:"read_timeout,omitempty"`
	WriteTimeout    string `json:"write_timeout,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Scheduler: SchedulerConfig{
			PollIntervalSeconds:      60,
			PerPublishTimeoutSeconds: 10,
			DispatchConcurrencyLimit: 4,
		},
		Storage:    StorageConfig{Driver: "memory"},
		Publishers: PublishersConfig{Mode: "log"},
		HTTP:       HTTPConfig{Addr: "127.0.0.1:8080"},
	}
}
