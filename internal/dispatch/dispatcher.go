package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"postsched/internal/eventbus"
	"postsched/internal/model"
	"postsched/internal/publisher"
	"postsched/internal/storage"
	logx "postsched/pkg/logx"
)

const (
	DefaultPublishTimeout = 10 * time.Second
	DefaultPersistTimeout = 5 * time.Second
)

// Outcome classifies a single dispatch attempt.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomePublished
	OutcomeFailed
	OutcomePersistFailed
	OutcomeSuperseded
)

func (o Outcome) String() string {
	switch o {
	case OutcomePublished:
		return "published"
	case OutcomeFailed:
		return "failed"
	case OutcomePersistFailed:
		return "persist_failed"
	case OutcomeSuperseded:
		return "superseded"
	default:
		return "skipped"
	}
}

// Result describes what Dispatch did with one post.
type Result struct {
	PostID   string
	Platform string
	Outcome  Outcome
	Status   model.PostStatus
	Message  string
	Took     time.Duration
	Err      error
}

// Resolver looks up the publisher for a platform identifier.
type Resolver interface {
	Lookup(platform string) (publisher.Publisher, bool)
}

type Options struct {
	PublishTimeout time.Duration
	PersistTimeout time.Duration
	Bus            eventbus.Bus
	Log            logx.Logger
}

// Dispatcher publishes one due post and records its terminal status.
// It is the only writer of status and error_message.
type Dispatcher struct {
	store    storage.PostStore
	registry Resolver
	bus      eventbus.Bus
	log      logx.Logger

	publishTimeout atomic.Int64
	persistTimeout time.Duration
}

func New(store storage.PostStore, registry Resolver, opts Options) *Dispatcher {
	if opts.Bus == nil {
		opts.Bus = eventbus.Nop()
	}
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = DefaultPersistTimeout
	}
	d := &Dispatcher{
		store:          store,
		registry:       registry,
		bus:            opts.Bus,
		log:            opts.Log.With(logx.String("comp", "dispatch")),
		persistTimeout: opts.PersistTimeout,
	}
	d.SetPublishTimeout(opts.PublishTimeout)
	return d
}

// SetPublishTimeout changes the bound for subsequent publisher calls.
func (d *Dispatcher) SetPublishTimeout(t time.Duration) {
	if t <= 0 {
		t = DefaultPublishTimeout
	}
	d.publishTimeout.Store(int64(t))
}

func (d *Dispatcher) PublishTimeout() time.Duration {
	return time.Duration(d.publishTimeout.Load())
}

func (d *Dispatcher) PersistTimeout() time.Duration { return d.persistTimeout }

// Dispatch makes a single publish attempt for post and persists the terminal
// status. Posts that are no longer scheduled are skipped.
//
// The terminal write runs on a context detached from ctx cancellation so an
// attempt that reached the publisher is always recorded.
func (d *Dispatcher) Dispatch(ctx context.Context, post model.ScheduledPost) Result {
	Started(ctx)
	res := Result{PostID: post.ID, Platform: post.Platform}
	if post.Status != model.StatusScheduled {
		res.Outcome = OutcomeSkipped
		res.Status = post.Status
		d.log.Debug("dispatch skipped", logx.String("post_id", post.ID), logx.String("status", string(post.Status)))
		return res
	}

	start := time.Now()
	status, msg := d.attempt(ctx, post)
	res.Status = status
	res.Message = msg
	res.Took = time.Since(start)

	err := d.persist(ctx, post.ID, status, msg)
	switch {
	case err == nil:
		if status == model.StatusPublished {
			res.Outcome = OutcomePublished
			d.log.Info("post published",
				logx.String("post_id", post.ID),
				logx.String("platform", post.Platform),
				logx.Duration("took", res.Took),
			)
			d.bus.Publish(eventbus.Event{Type: eventbus.PostPublished, Data: res})
		} else {
			res.Outcome = OutcomeFailed
			d.log.Warn("post failed",
				logx.String("post_id", post.ID),
				logx.String("platform", post.Platform),
				logx.String("error", msg),
				logx.Duration("took", res.Took),
			)
			d.bus.Publish(eventbus.Event{Type: eventbus.PostFailed, Data: res})
		}
	case errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrNotScheduled):
		// Cancelled or finalized by someone else while the publisher ran.
		res.Outcome = OutcomeSuperseded
		res.Err = err
		d.log.Warn("post changed during dispatch",
			logx.String("post_id", post.ID),
			logx.String("status", string(status)),
			logx.Err(err),
		)
	default:
		perr := &PersistenceError{PostID: post.ID, Status: status, Err: err}
		res.Outcome = OutcomePersistFailed
		res.Err = perr
		d.log.Error("terminal status not persisted; post stays scheduled and may be published again",
			logx.String("post_id", post.ID),
			logx.String("platform", post.Platform),
			logx.String("status", string(status)),
			logx.Err(err),
		)
		d.bus.Publish(eventbus.Event{Type: eventbus.PostPersistFailed, Data: res})
	}
	return res
}

// attempt resolves and invokes the publisher and returns the terminal status
// with its error message.
func (d *Dispatcher) attempt(ctx context.Context, post model.ScheduledPost) (model.PostStatus, string) {
	pub, ok := d.lookup(post.Platform)
	if !ok {
		return model.StatusFailed, NoPublisherMessage(post.Platform)
	}
	if err := d.publish(ctx, pub, post); err != nil {
		return model.StatusFailed, failureMessage(err)
	}
	return model.StatusPublished, ""
}

func (d *Dispatcher) lookup(platform string) (publisher.Publisher, bool) {
	if d.registry == nil {
		return nil, false
	}
	return d.registry.Lookup(platform)
}

// publish bounds the publisher call by the publish timeout. A publisher that
// ignores its context is abandoned once the deadline passes.
func (d *Dispatcher) publish(ctx context.Context, pub publisher.Publisher, post model.ScheduledPost) error {
	pctx, cancel := context.WithTimeout(ctx, d.PublishTimeout())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- pub.Publish(pctx, post)
	}()

	select {
	case err := <-done:
		if err != nil && errors.Is(err, context.DeadlineExceeded) && errors.Is(pctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return err
	case <-pctx.Done():
		if errors.Is(pctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return pctx.Err()
	}
}

func (d *Dispatcher) persist(ctx context.Context, id string, status model.PostStatus, msg string) error {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.persistTimeout)
	defer cancel()
	return d.store.Persist(pctx, id, status, msg)
}

func failureMessage(err error) string {
	if errors.Is(err, ErrTimeout) {
		return ErrTimeout.Error()
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return fmt.Sprintf("publish failed (%T)", err)
	}
	return msg
}
