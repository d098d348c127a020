package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Defaults for the duration-valued keys. An empty or zero value selects them.
const (
	DefaultAlertTimeout      = 5 * time.Second
	DefaultSQLiteBusyTimeout = 5 * time.Second
	DefaultPublisherTimeout  = 15 * time.Second
	DefaultTokenTTL          = 24 * time.Hour
	DefaultHTTPReadTimeout   = 15 * time.Second
	DefaultHTTPWriteTimeout  = 15 * time.Second
	DefaultHTTPShutdown      = 5 * time.Second
)

// Timeouts holds every duration-valued key resolved against its default.
type Timeouts struct {
	Alert         time.Duration // logging.alert.timeout
	SQLiteBusy    time.Duration // storage.busy_timeout
	PublisherHTTP time.Duration // publishers.http_timeout
	TokenTTL      time.Duration // http.token_ttl
	HTTPRead      time.Duration // http.read_timeout
	HTTPWrite     time.Duration // http.write_timeout
	HTTPShutdown  time.Duration // http.shutdown_timeout
}

// Timeouts resolves the duration keys of c. Keys that fail to parse keep
// their default in the result and are reported together in the error.
func (c *Config) Timeouts() (Timeouts, error) {
	var (
		t    Timeouts
		errs []error
	)
	set := func(dst *time.Duration, key, raw string, def time.Duration) {
		*dst = def
		d, err := parseTimeout(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		if d > 0 {
			*dst = d
		}
	}
	set(&t.Alert, "logging.alert.timeout", c.Logging.Alert.Timeout, DefaultAlertTimeout)
	set(&t.SQLiteBusy, "storage.busy_timeout", c.Storage.BusyTimeout, DefaultSQLiteBusyTimeout)
	set(&t.PublisherHTTP, "publishers.http_timeout", c.Publishers.HTTPTimeout, DefaultPublisherTimeout)
	set(&t.TokenTTL, "http.token_ttl", c.HTTP.TokenTTL, DefaultTokenTTL)
	set(&t.HTTPRead, "http.read_timeout", c.HTTP.ReadTimeout, DefaultHTTPReadTimeout)
	set(&t.HTTPWrite, "http.write_timeout", c.HTTP.WriteTimeout, DefaultHTTPWriteTimeout)
	set(&t.HTTPShutdown, "http.shutdown_timeout", c.HTTP.ShutdownTimeout, DefaultHTTPShutdown)
	return t, errors.Join(errs...)
}

// parseTimeout accepts Go duration strings ("90s", "1h30m"). A bare integer
// is read as seconds, matching the *_seconds keys of the scheduler section.
func parseTimeout(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		secs, serr := strconv.ParseInt(s, 10, 32)
		if serr != nil {
			return 0, fmt.Errorf("want a duration such as \"15s\", got %q", raw)
		}
		d = time.Duration(secs) * time.Second
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative, got %q", raw)
	}
	return d, nil
}
