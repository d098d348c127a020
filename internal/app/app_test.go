package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"postsched/internal/model"
	"postsched/internal/storage"
	logx "postsched/pkg/logx"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "postsched.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

type recordingNotifier struct {
	mu     sync.Mutex
	states []string
}

func (n *recordingNotifier) notify(_ bool, state string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.states = append(n.states, state)
	return true, nil
}

func (n *recordingNotifier) seen() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.states...)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, want: "logging.level"},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "mongo" }, want: "storage.driver"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Storage.Driver = "sqlite3" }, want: "storage.path"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Storage.Driver = "pg" }, want: "storage.dsn"},
		{name: "unknown publisher mode", mutate: func(c *Config) { c.Publishers.Mode = "smoke" }, want: "publisher"},
		{
			name:   "http mode without base url",
			mutate: func(c *Config) { c.Publishers.Mode = "http" },
			want:   "base_url",
		},
		{
			name:   "unknown platform override",
			mutate: func(c *Config) { c.Publishers.Platforms = map[string]PlatformPublisherConfig{"myspace": {}} },
			want:   "myspace",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := validateConfig(cfg)
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

func TestMapSchedulerConfig(t *testing.T) {
	cfg := defaultConfig()
	cfg.Scheduler.PollIntervalSeconds = 15
	cfg.Scheduler.PerPublishTimeoutSeconds = 3
	cfg.Scheduler.BatchLimit = 20
	sc := mapSchedulerConfig(cfg)
	if sc.PollInterval != 15*time.Second || sc.PublishTimeout != 3*time.Second {
		t.Fatalf("durations = %v / %v", sc.PollInterval, sc.PublishTimeout)
	}
	if sc.Concurrency != 4 || sc.BatchLimit != 20 {
		t.Fatalf("limits = %d / %d", sc.Concurrency, sc.BatchLimit)
	}
}

func TestStartStopNotifiesSystemd(t *testing.T) {
	p := writeConfig(t, "logging:\n  level: warn\nstorage:\n  driver: memory\n")
	n := &recordingNotifier{}
	a, err := New(testContext(t), p, WithNotifier(n.notify))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := a.Start(testContext(t)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !a.Scheduler().Running() {
		t.Fatalf("scheduler should be running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Stop(ctx, StopAppStop); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if a.Scheduler().Running() {
		t.Fatalf("scheduler still running after stop")
	}
	select {
	case <-a.Done():
	default:
		t.Fatalf("run context not cancelled")
	}
	got := n.seen()
	if len(got) != 2 || got[0] != "READY=1" || got[1] != "STOPPING=1" {
		t.Fatalf("sd_notify states = %v", got)
	}
}

func TestTickOncePublishesDuePost(t *testing.T) {
	p := writeConfig(t, "logging:\n  level: error\nscheduler:\n  enabled: false\n")
	a, err := New(testContext(t), p, WithNotifier(nil))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Stop(context.Background(), StopAppStop)

	ctx := testContext(t)
	now := time.Now().UTC()
	acc := model.SocialAccount{ID: "acc-1", OwnerID: 7, Platform: "facebook", AccessToken: "tok", CreatedAt: now}
	if err := a.Store().CreateSocialAccount(ctx, acc); err != nil {
		t.Fatalf("create account: %v", err)
	}
	post := model.ScheduledPost{
		ID: "post-1", OwnerID: 7, SocialAccountID: acc.ID, Platform: "facebook",
		Content: "hello", ScheduledAt: now.Add(-time.Minute), Status: model.StatusScheduled, CreatedAt: now.Add(-time.Hour),
	}
	if err := a.Store().CreatePost(ctx, post); err != nil {
		t.Fatalf("create post: %v", err)
	}

	rep, err := a.TickOnce(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if rep.Due != 1 || rep.Published != 1 {
		t.Fatalf("report = %+v", rep)
	}
	got, err := a.Store().GetPost(ctx, post.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusPublished || got.ErrorMessage != "" {
		t.Fatalf("post = %s %q", got.Status, got.ErrorMessage)
	}
}

func TestApplyConfigReconfiguresScheduler(t *testing.T) {
	p := writeConfig(t, "logging:\n  level: error\n")
	a, err := New(testContext(t), p, WithNotifier(nil))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := a.Start(testContext(t)); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer a.Stop(context.Background(), StopAppStop)

	oldCfg := a.cfgm.Get()
	newCfg := *oldCfg
	newCfg.Scheduler.PollIntervalSeconds = 5
	a.applyConfig(testContext(t), oldCfg, &newCfg)
	if got := a.Scheduler().Snapshot().PollInterval; got != 5*time.Second {
		t.Fatalf("poll interval = %v", got)
	}

	off := false
	disabled := newCfg
	disabled.Scheduler.Enabled = &off
	a.applyConfig(testContext(t), &newCfg, &disabled)
	if a.Scheduler().Running() {
		t.Fatalf("scheduler should be stopped when disabled")
	}

	a.applyConfig(testContext(t), &disabled, &newCfg)
	if !a.Scheduler().Running() {
		t.Fatalf("scheduler should restart when re-enabled")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	p := writeConfig(t, "storage:\n  driver: sqlite\n")
	if _, err := New(testContext(t), p); err == nil {
		t.Fatalf("expected error for sqlite without path")
	}
}

func TestStopWaitsForSlowPublish(t *testing.T) {
	if testing.Short() {
		t.Skip("slow publisher takes several seconds")
	}
	const publishTook = 6 * time.Second
	hit := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case hit <- struct{}{}:
		default:
		}
		select {
		case <-time.After(publishTook):
		case <-r.Context().Done():
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	db := filepath.Join(t.TempDir(), "postsched.db")
	p := writeConfig(t, fmt.Sprintf(`logging:
  level: error
scheduler:
  poll_interval_seconds: 1
  per_publish_timeout_seconds: 10
storage:
  driver: sqlite
  path: %s
publishers:
  mode: log
  platforms:
    facebook:
      mode: http
      base_url: %s
`, db, srv.URL))

	a, err := New(testContext(t), p, WithNotifier(nil))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := testContext(t)
	now := time.Now().UTC()
	acc := model.SocialAccount{ID: "acc-1", OwnerID: 1, Platform: "facebook", AccessToken: "tok", CreatedAt: now}
	if err := a.Store().CreateSocialAccount(ctx, acc); err != nil {
		t.Fatalf("create account: %v", err)
	}
	post := model.ScheduledPost{
		ID: "p1", OwnerID: 1, SocialAccountID: acc.ID, Platform: "facebook",
		Content: "slow", ScheduledAt: now.Add(-time.Second), Status: model.StatusScheduled, CreatedAt: now.Add(-time.Minute),
	}
	if err := a.Store().CreatePost(ctx, post); err != nil {
		t.Fatalf("create post: %v", err)
	}

	if err := a.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-hit:
	case <-time.After(10 * time.Second):
		_ = a.Stop(context.Background(), StopAppStop)
		t.Fatalf("publisher never called")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := a.Stop(stopCtx, StopSIGTERM); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if a.Scheduler().Snapshot().TickInFlight {
		t.Fatalf("tick still in flight after stop")
	}

	st, err := storage.Open(context.Background(), storage.Config{Driver: "sqlite", Path: db}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	got, err := st.GetPost(context.Background(), post.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusPublished {
		t.Fatalf("status = %s (%q), want published", got.Status, got.ErrorMessage)
	}
}

func TestStopTimeoutCoversDrain(t *testing.T) {
	p := writeConfig(t, "logging:\n  level: error\nscheduler:\n  per_publish_timeout_seconds: 30\n")
	a, err := New(testContext(t), p, WithNotifier(nil))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Stop(context.Background(), StopAppStop)
	if got, want := a.drainTimeout(), 30*time.Second+a.disp.PersistTimeout()+drainMargin; got != want {
		t.Fatalf("drain timeout = %v, want %v", got, want)
	}
	if a.StopTimeout() <= a.drainTimeout() {
		t.Fatalf("stop timeout %v does not cover drain %v", a.StopTimeout(), a.drainTimeout())
	}
}
