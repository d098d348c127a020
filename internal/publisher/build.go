package publisher

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "postsched/pkg/logx"
)

const (
	ModeLog      = "log"
	ModeHTTP     = "http"
	ModeDisabled = "disabled"
)

// Config selects how each platform is delivered.
type Config struct {
	// Mode is the default for platforms without an override: log | http | disabled.
	Mode        string
	HTTPTimeout time.Duration
	Platforms   map[string]PlatformConfig
}

type PlatformConfig struct {
	Mode       string
	BaseURL    string
	RatePerSec float64
	Burst      int
}

// NormalizeMode maps empty to ModeLog and lowercases the rest.
func NormalizeMode(m string) string {
	m = strings.ToLower(strings.TrimSpace(m))
	if m == "" {
		return ModeLog
	}
	return m
}

// Validate checks modes and platform keys.
func (c Config) Validate() error {
	if err := validMode(c.Mode); err != nil {
		return err
	}
	for name, pc := range c.Platforms {
		p := ParsePlatform(name)
		if p == Unknown {
			return fmt.Errorf("publishers: unknown platform %q", name)
		}
		mode := c.modeFor(pc)
		if err := validMode(mode); err != nil {
			return fmt.Errorf("publishers.%s: %w", name, err)
		}
		if mode == ModeHTTP && strings.TrimSpace(pc.BaseURL) == "" {
			return fmt.Errorf("publishers.%s: base_url is required in http mode", name)
		}
		if pc.RatePerSec < 0 || pc.Burst < 0 {
			return fmt.Errorf("publishers.%s: rate and burst must be >= 0", name)
		}
	}
	if NormalizeMode(c.Mode) == ModeHTTP {
		for _, p := range Platforms() {
			if _, ok := c.Platforms[p.String()]; !ok {
				return fmt.Errorf("publishers.%s: base_url is required in http mode", p)
			}
		}
	}
	return nil
}

func (c Config) modeFor(pc PlatformConfig) string {
	if strings.TrimSpace(pc.Mode) != "" {
		return NormalizeMode(pc.Mode)
	}
	return NormalizeMode(c.Mode)
}

func validMode(m string) error {
	switch NormalizeMode(m) {
	case ModeLog, ModeHTTP, ModeDisabled:
		return nil
	default:
		return fmt.Errorf("unknown publisher mode %q", m)
	}
}

// Build constructs the registry once at startup. Disabled platforms are left
// out, so their posts fail with "no publisher".
func Build(cfg Config, accounts AccountSource, log logx.Logger) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := NewClient(cfg.HTTPTimeout)
	m := make(map[Platform]Publisher, len(platformNames))
	for _, p := range Platforms() {
		pc := cfg.Platforms[p.String()]
		switch cfg.modeFor(pc) {
		case ModeDisabled:
			continue
		case ModeHTTP:
			var lim *rate.Limiter
			if pc.RatePerSec > 0 {
				burst := pc.Burst
				if burst <= 0 {
					burst = 1
				}
				lim = rate.NewLimiter(rate.Limit(pc.RatePerSec), burst)
			}
			m[p] = NewHTTPPublisher(p, pc.BaseURL, client, lim, accounts, log)
		default:
			m[p] = LogPublisher{Platform: p, Log: log}
		}
	}
	reg := NewRegistry(m)
	log.Info("publisher registry built", logx.Int("platforms", reg.Len()))
	return reg, nil
}
