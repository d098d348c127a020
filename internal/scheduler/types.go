package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"postsched/internal/dispatch"
	"postsched/internal/eventbus"
	"postsched/internal/model"
	"postsched/internal/storage"
	logx "postsched/pkg/logx"
)

const (
	DefaultPollInterval   = 60 * time.Second
	DefaultPublishTimeout = 10 * time.Second
	DefaultConcurrency    = 4
	DefaultHistorySize    = 50
)

// ErrTickInProgress is returned by Tick when the previous tick has not finished.
var ErrTickInProgress = errors.New("tick already in progress")

// Config controls the polling loop.
type Config struct {
	PollInterval   time.Duration
	PublishTimeout time.Duration
	Concurrency    int
	// BatchLimit caps the posts handled per tick; 0 means no cap.
	BatchLimit  int
	HistorySize int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = DefaultPublishTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.BatchLimit < 0 {
		c.BatchLimit = 0
	}
	if c.HistorySize <= 0 {
		c.HistorySize = DefaultHistorySize
	}
	return c
}

// Dispatcher handles one due post. Implementations call dispatch.Started(ctx)
// once the attempt has begun; until then no later post is handed out.
type Dispatcher interface {
	Dispatch(ctx context.Context, post model.ScheduledPost) dispatch.Result
}

type timeoutSetter interface {
	SetPublishTimeout(time.Duration)
}

// TickReport summarizes one tick.
type TickReport struct {
	Started       time.Time     `json:"started"`
	Took          time.Duration `json:"took"`
	Due           int           `json:"due"`
	Published     int           `json:"published"`
	Failed        int           `json:"failed"`
	PersistFailed int           `json:"persist_failed"`
	Superseded    int           `json:"superseded"`
	// Deferred counts due posts left for a later tick because the tick was
	// cancelled before initiating them.
	Deferred int    `json:"deferred"`
	Error    string `json:"error,omitempty"`
}

func (r *TickReport) add(res dispatch.Result) {
	switch res.Outcome {
	case dispatch.OutcomePublished:
		r.Published++
	case dispatch.OutcomeFailed:
		r.Failed++
	case dispatch.OutcomePersistFailed:
		r.PersistFailed++
	case dispatch.OutcomeSuperseded:
		r.Superseded++
	}
}

// Snapshot is a point-in-time view for status endpoints.
type Snapshot struct {
	Running        bool          `json:"running"`
	TickInFlight   bool          `json:"tick_in_flight"`
	PollInterval   time.Duration `json:"poll_interval"`
	PublishTimeout time.Duration `json:"publish_timeout"`
	Concurrency    int           `json:"concurrency"`
	BatchLimit     int           `json:"batch_limit"`
	Next           time.Time     `json:"next,omitempty"`
	Prev           time.Time     `json:"prev,omitempty"`

	Ticks         uint64 `json:"ticks"`
	Skipped       uint64 `json:"skipped"`
	TickFailures  uint64 `json:"tick_failures"`
	Published     uint64 `json:"published"`
	Failed        uint64 `json:"failed"`
	PersistFailed uint64 `json:"persist_failed"`

	LastTick *TickReport  `json:"last_tick,omitempty"`
	History  []TickReport `json:"history"`
}

type Option func(*Service)

// WithClock replaces time.Now for due evaluation.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithBus(bus eventbus.Bus) Option {
	return func(s *Service) {
		if bus != nil {
			s.bus = bus
		}
	}
}

type Service struct {
	mu sync.Mutex

	cfg   Config
	store storage.PostStore
	disp  Dispatcher
	log   logx.Logger
	bus   eventbus.Bus
	now   func() time.Time

	c       *cron.Cron
	entryID cron.EntryID
	base    context.Context
	cancel  context.CancelFunc

	// tickDone is non-nil while a tick runs and closed when it ends.
	tickDone chan struct{}

	ticks         atomic.Uint64
	skipped       atomic.Uint64
	tickFailures  atomic.Uint64
	published     atomic.Uint64
	failed        atomic.Uint64
	persistFailed atomic.Uint64

	hmu     sync.Mutex
	history []TickReport
}
