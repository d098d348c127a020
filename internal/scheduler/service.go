package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"postsched/internal/eventbus"
	"postsched/internal/storage"
	logx "postsched/pkg/logx"
)

func New(cfg Config, store storage.PostStore, disp Dispatcher, opts ...Option) *Service {
	s := &Service{
		cfg:   cfg.withDefaults(),
		store: store,
		disp:  disp,
		log:   logx.Nop(),
		bus:   eventbus.Nop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.log = s.log.With(logx.String("comp", "scheduler"))
	if ts, ok := disp.(timeoutSetter); ok {
		ts.SetPublishTimeout(s.cfg.PublishTimeout)
	}
	return s
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Apply swaps the configuration. A changed poll interval re-registers the
// cron entry; the running tick is unaffected.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()

	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	if s.c != nil && old.PollInterval != cfg.PollInterval {
		s.c.Remove(s.entryID)
		s.entryID = s.c.Schedule(cron.Every(cfg.PollInterval), cron.FuncJob(s.fire))
	}
	s.mu.Unlock()

	if ts, ok := s.disp.(timeoutSetter); ok {
		ts.SetPublishTimeout(cfg.PublishTimeout)
	}
	s.log.Info("config applied",
		logx.Duration("poll_interval", cfg.PollInterval),
		logx.Duration("publish_timeout", cfg.PublishTimeout),
		logx.Int("concurrency", cfg.Concurrency),
		logx.Int("batch_limit", cfg.BatchLimit),
	)
}

// Start registers the polling entry and starts the cron runner.
// Calling Start on a running service does nothing.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	// Ticks outlive the caller's context; Stop cancels base explicitly.
	s.base, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.c = cron.New(cron.WithLocation(time.UTC))
	s.entryID = s.c.Schedule(cron.Every(s.cfg.PollInterval), cron.FuncJob(s.fire))
	s.c.Start()
	s.log.Info("service started",
		logx.Duration("poll_interval", s.cfg.PollInterval),
		logx.Int("concurrency", s.cfg.Concurrency),
	)
}

// Stop halts triggering and waits, bounded by ctx, for the running tick to
// finish. Due posts not yet initiated stay scheduled for the next run.
// Calling Stop on a stopped service does nothing.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	done := s.tickDone
	s.c = nil
	s.cancel = nil
	s.mu.Unlock()

	if c == nil && done == nil {
		return
	}
	start := time.Now()
	s.log.Info("stop requested")

	if cancel != nil {
		cancel()
	}
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			s.log.Warn("stop deadline reached with a tick in flight")
		}
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c != nil
}

func (s *Service) fire() {
	s.mu.Lock()
	ctx := s.base
	s.mu.Unlock()
	if ctx == nil {
		return
	}
	_, _ = s.Tick(ctx)
}
