package config

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	logx "postsched/pkg/logx"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func newTestManager(path string, env map[string]string) *ConfigManager {
	m := NewConfigManager(path)
	m.getenv = func(k string) string { return env[k] }
	return m
}

func TestParseYAMLKeepsDefaults(t *testing.T) {
	p := writeFile(t, t.TempDir(), "postsched.yaml", `
scheduler:
  poll_interval_seconds: 5
storage:
  driver: sqlite
  path: ./data/test.db
publishers:
  mode: log
  platforms:
    twitter:
      mode: disabled
`)
	cfg, err := newTestManager(p, nil).Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Scheduler.PollIntervalSeconds != 5 {
		t.Fatalf("poll interval = %d", cfg.Scheduler.PollIntervalSeconds)
	}
	if cfg.Scheduler.PerPublishTimeoutSeconds != 10 || cfg.Scheduler.DispatchConcurrencyLimit != 4 {
		t.Fatalf("defaults lost: %+v", cfg.Scheduler)
	}
	if !cfg.Scheduler.IsEnabled() {
		t.Fatalf("scheduler should default to enabled")
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != "./data/test.db" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if got := cfg.Publishers.Platforms["twitter"].Mode; got != "disabled" {
		t.Fatalf("twitter mode = %q", got)
	}
}

func TestParseJSONRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"unknown.json":  `{"scheduler":{"poll_interval_seconds":5,"polling":true}}`,
		"trailing.json": `{"scheduler":{}} {"http":{}}`,
		"unknown.yaml":  "notifier:\n  token: x\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			p := writeFile(t, dir, name, body)
			if _, err := newTestManager(p, nil).Parse(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestParseEmptyPathUsesDefaultsAndEnv(t *testing.T) {
	m := newTestManager("", map[string]string{
		EnvJWTSecret:   "  0123456789abcdef0123  ",
		EnvDatabaseDSN: "postgres://u:p@db/postsched",
	})
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.HTTP.JWTSecret != "0123456789abcdef0123" {
		t.Fatalf("jwt secret = %q", cfg.HTTP.JWTSecret)
	}
	if cfg.Storage.DSN != "postgres://u:p@db/postsched" {
		t.Fatalf("dsn = %q", cfg.Storage.DSN)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("driver = %q", cfg.Storage.Driver)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	p := writeFile(t, t.TempDir(), "c.json", `{"logging":{"alert":{"enabled":true,"webhook_url":"http://file"}}}`)
	cfg, err := newTestManager(p, map[string]string{EnvAlertWebhookURL: "http://env"}).Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Logging.Alert.WebhookURL != "http://env" {
		t.Fatalf("webhook = %q", cfg.Logging.Alert.WebhookURL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{
			name:   "negative poll interval",
			mutate: func(c *Config) { c.Scheduler.PollIntervalSeconds = -1 },
			want:   "poll_interval_seconds",
		},
		{
			name:   "negative concurrency",
			mutate: func(c *Config) { c.Scheduler.DispatchConcurrencyLimit = -2 },
			want:   "dispatch_concurrency_limit",
		},
		{
			name:   "bad duration",
			mutate: func(c *Config) { c.Publishers.HTTPTimeout = "soon" },
			want:   "publishers.http_timeout",
		},
		{
			name:   "alert without webhook",
			mutate: func(c *Config) { c.Logging.Alert.Enabled = true },
			want:   "webhook_url",
		},
		{
			name:   "file log without path",
			mutate: func(c *Config) { c.Logging.File.Enabled = true },
			want:   "logging.file.path",
		},
		{
			name:   "http short secret",
			mutate: func(c *Config) { c.HTTP.Enabled = true; c.HTTP.JWTSecret = "short" },
			want:   "jwt_secret",
		},
		{
			name: "http ok",
			mutate: func(c *Config) {
				c.HTTP.Enabled = true
				c.HTTP.JWTSecret = strings.Repeat("k", 32)
				c.HTTP.TokenTTL = "24h"
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	oldCfg := Default()
	oldCfg.HTTP.JWTSecret = strings.Repeat("a", 32)

	newCfg := Default()
	newCfg.HTTP.JWTSecret = strings.Repeat("b", 32)
	newCfg.Scheduler.PollIntervalSeconds = 15
	newCfg.Storage.Driver = "sqlite"

	changed, attrs, restart := SummarizeConfigChange(oldCfg, newCfg)
	for _, want := range []string{"scheduler", "storage", "http"} {
		if !slices.Contains(changed, want) {
			t.Fatalf("changed = %v, missing %q", changed, want)
		}
	}
	if slices.Contains(changed, "logging") {
		t.Fatalf("logging reported as changed: %v", changed)
	}
	// a rotated secret alone is applied live
	if !slices.Equal(restart, []string{"storage"}) {
		t.Fatalf("restart = %v", restart)
	}
	var buf bytes.Buffer
	logx.NewWriter(&buf, "debug").Info("config changed", attrs...)
	if strings.Contains(buf.String(), "aaaa") || strings.Contains(buf.String(), "bbbb") {
		t.Fatalf("secret leaked in attrs: %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"http.secret_rotated":true`) {
		t.Fatalf("rotation not reported: %s", buf.String())
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	p := writeFile(t, t.TempDir(), "c.yaml", "scheduler:\n  batch_limit: -1\n")
	m := newTestManager(p, nil)
	if _, err := m.Load(); err == nil {
		t.Fatalf("expected validation error")
	}
	if m.Get() != nil {
		t.Fatalf("invalid config must not be committed")
	}
}

func TestWatchPublishesReload(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "c.yaml", "scheduler:\n  poll_interval_seconds: 30\n")
	m := newTestManager(p, nil)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	m.SetValidator(func(ctx context.Context, cfg *Config) error {
		if cfg.Scheduler.PollIntervalSeconds == 99 {
			return errors.New("rejected")
		}
		return nil
	})
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(testContext(t))
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(300 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-ch:
			if cfg.Scheduler.PollIntervalSeconds != 7 {
				t.Fatalf("poll interval = %d", cfg.Scheduler.PollIntervalSeconds)
			}
			if got := m.Get().Scheduler.PollIntervalSeconds; got != 7 {
				t.Fatalf("committed poll interval = %d", got)
			}
			return
		case <-tick.C:
			// rewrite until the watcher is up and sees the change
			writeFile(t, dir, "c.yaml", "scheduler:\n  poll_interval_seconds: 7\n")
		case <-deadline:
			t.Fatalf("no reload published")
		}
	}
}

func TestParseYAMLEdgeCases(t *testing.T) {
	dir := t.TempDir()

	empty := writeFile(t, dir, "empty.yml", "")
	cfg, err := newTestManager(empty, nil).Parse()
	if err != nil {
		t.Fatalf("parse empty: %v", err)
	}
	if cfg.Scheduler.PollIntervalSeconds != 60 {
		t.Fatalf("empty file lost defaults: %+v", cfg.Scheduler)
	}

	intKey := writeFile(t, dir, "intkey.yaml", "publishers:\n  platforms:\n    1: {mode: log}\n")
	_, err = newTestManager(intKey, nil).Parse()
	if err == nil || !strings.Contains(err.Error(), "publishers.platforms") {
		t.Fatalf("error = %v, want key path publishers.platforms", err)
	}

	unknown := writeFile(t, dir, "unknown.yaml", "scheduler:\n  poll_every: 5\n")
	if _, err := newTestManager(unknown, nil).Parse(); err == nil || !strings.Contains(err.Error(), "poll_every") {
		t.Fatalf("error = %v, want unknown field poll_every", err)
	}
}

func TestTimeouts(t *testing.T) {
	cfg := Default()
	got, err := cfg.Timeouts()
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if got.TokenTTL != DefaultTokenTTL || got.PublisherHTTP != DefaultPublisherTimeout || got.HTTPShutdown != DefaultHTTPShutdown {
		t.Fatalf("defaults = %+v", got)
	}

	cfg.Storage.BusyTimeout = "250ms"
	cfg.HTTP.ReadTimeout = "30"
	cfg.HTTP.WriteTimeout = "0"
	got, err = cfg.Timeouts()
	if err != nil {
		t.Fatalf("timeouts: %v", err)
	}
	if got.SQLiteBusy != 250*time.Millisecond {
		t.Fatalf("busy = %v", got.SQLiteBusy)
	}
	if got.HTTPRead != 30*time.Second {
		t.Fatalf("bare integer read as %v, want 30s", got.HTTPRead)
	}
	if got.HTTPWrite != DefaultHTTPWriteTimeout {
		t.Fatalf("zero write timeout = %v, want default", got.HTTPWrite)
	}

	cfg.Publishers.HTTPTimeout = "soon"
	cfg.HTTP.TokenTTL = "-1h"
	got, err = cfg.Timeouts()
	if err == nil {
		t.Fatalf("want error")
	}
	for _, want := range []string{"publishers.http_timeout", "http.token_ttl", "negative"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
	if got.PublisherHTTP != DefaultPublisherTimeout || got.TokenTTL != DefaultTokenTTL {
		t.Fatalf("invalid keys should keep defaults: %+v", got)
	}
}
