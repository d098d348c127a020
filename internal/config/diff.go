package config

import (
	"reflect"
	"strings"

	logx "postsched/pkg/logx"
)

// SummarizeConfigChange returns the changed sections, safe structured attrs
// for logging (never secrets), and the changed sections that only take effect
// after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	restart := make([]string, 0, 3)
	attrs := make([]logx.Field, 0, 16)

	ol, nl := oldCfg.Logging, newCfg.Logging
	if ol.Level != nl.Level || ol.Console != nl.Console || ol.File != nl.File ||
		ol.Alert.Enabled != nl.Alert.Enabled || ol.Alert.MinLevel != nl.Alert.MinLevel ||
		ol.Alert.RatePerSec != nl.Alert.RatePerSec || ol.Alert.Timeout != nl.Alert.Timeout ||
		ol.Alert.WebhookURL != nl.Alert.WebhookURL {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", nl.Level),
			logx.Bool("logging.console", nl.Console),
			logx.Bool("logging.file_enabled", nl.File.Enabled),
			logx.Bool("logging.alert_enabled", nl.Alert.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		s := newCfg.Scheduler
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", s.IsEnabled()),
			logx.Int("scheduler.poll_interval_seconds", s.PollIntervalSeconds),
			logx.Int("scheduler.per_publish_timeout_seconds", s.PerPublishTimeoutSeconds),
			logx.Int("scheduler.dispatch_concurrency_limit", s.DispatchConcurrencyLimit),
			logx.Int("scheduler.batch_limit", s.BatchLimit),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		restart = append(restart, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.dsn_set", strings.TrimSpace(newCfg.Storage.DSN) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Publishers, newCfg.Publishers) {
		changed = append(changed, "publishers")
		restart = append(restart, "publishers")
		attrs = append(attrs,
			logx.String("publishers.mode", newCfg.Publishers.Mode),
			logx.Int("publishers.overrides", len(newCfg.Publishers.Platforms)),
		)
	}

	oh, nh := oldCfg.HTTP, newCfg.HTTP
	if oh != nh {
		changed = append(changed, "http")
		onlySecret := oh.JWTSecret != nh.JWTSecret
		oh.JWTSecret, nh.JWTSecret = "", ""
		if oh != nh {
			restart = append(restart, "http")
		}
		attrs = append(attrs,
			logx.Bool("http.enabled", nh.Enabled),
			logx.String("http.addr", nh.Addr),
			logx.Bool("http.secret_rotated", onlySecret),
		)
	}

	return changed, attrs, restart
}
