package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// alertSink forwards high-severity log lines to an operator webhook.
//
// Contract:
//   - WriteLevel never blocks the caller (full queue drops the alert).
//   - Delivery is best-effort, rate limited, and happens on one worker goroutine.
type alertSink struct {
	mu       sync.Mutex
	url      string
	minLevel zerolog.Level
	limiter  *rate.Limiter
	client   *http.Client

	queue  chan []byte
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// alertPayload is the JSON body POSTed to the webhook.
type alertPayload struct {
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Time    string         `json:"time,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

func newAlertSink() *alertSink {
	ctx, cancel := context.WithCancel(context.Background())
	a := &alertSink{
		queue:  make(chan []byte, 128),
		cancel: cancel,
		client: &http.Client{Timeout: 5 * time.Second},
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.worker(ctx)
	}()
	return a
}

func (a *alertSink) apply(cfg AlertConfig) {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	a.mu.Lock()
	a.url = strings.TrimSpace(cfg.WebhookURL)
	a.minLevel = parseLevel(cfg.MinLevel, zerolog.ErrorLevel)
	a.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	a.client = &http.Client{Timeout: timeout}
	a.mu.Unlock()
}

func (a *alertSink) close() {
	a.cancel()
	a.wg.Wait()
}

func (a *alertSink) Write(p []byte) (int, error) {
	return a.WriteLevel(zerolog.InfoLevel, p)
}

func (a *alertSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	a.mu.Lock()
	url := a.url
	minLevel := a.minLevel
	lim := a.limiter
	a.mu.Unlock()

	if url == "" || lim == nil || level < minLevel {
		return len(p), nil
	}
	if !lim.Allow() {
		return len(p), nil
	}
	body := formatAlert(p)
	if body == nil {
		return len(p), nil
	}
	select {
	case a.queue <- body:
	default:
		// drop
	}
	return len(p), nil
}

func (a *alertSink) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case body := <-a.queue:
			a.mu.Lock()
			url := a.url
			client := a.client
			a.mu.Unlock()
			if url == "" {
				continue
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				continue
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := client.Do(req)
			if err != nil {
				continue
			}
			_ = resp.Body.Close()
		}
	}
}

// formatAlert turns one zerolog JSON line into an alert payload.
func formatAlert(p []byte) []byte {
	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(p), &m); err != nil {
		s := strings.TrimSpace(string(p))
		if s == "" {
			return nil
		}
		b, _ := json.Marshal(alertPayload{Message: truncate(s, 3500)})
		return b
	}

	out := alertPayload{Fields: map[string]any{}}
	out.Level, _ = m["level"].(string)
	out.Message, _ = m["message"].(string)
	out.Time, _ = m["time"].(string)
	for k, v := range m {
		switch k {
		case "level", "message", "time":
			continue
		}
		if s, ok := v.(string); ok {
			v = truncate(s, 600)
		}
		out.Fields[k] = v
	}
	if len(out.Fields) == 0 {
		out.Fields = nil
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil
	}
	return b
}
