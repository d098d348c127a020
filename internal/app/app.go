// Package app wires the post scheduler together and owns its lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"postsched/internal/dispatch"
	"postsched/internal/eventbus"
	"postsched/internal/httpapi"
	"postsched/internal/posts"
	"postsched/internal/publisher"
	"postsched/internal/runtime/supervisor"
	"postsched/internal/scheduler"
	"postsched/internal/storage"
	logx "postsched/pkg/logx"
)

const drainMargin = 2 * time.Second

type App struct {
	cfgm *ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	registry *publisher.Registry
	disp     *dispatch.Dispatcher
	sched    *scheduler.Service
	posts    *posts.Service
	http     *httpapi.Server

	notify func(unsetEnv bool, state string) (bool, error)
}

type Option func(*App)

// WithNotifier replaces the systemd notifier (daemon.SdNotify).
func WithNotifier(fn func(unsetEnv bool, state string) (bool, error)) Option {
	return func(a *App) { a.notify = fn }
}

// New loads the config at cfgPath and builds every component without
// starting any goroutine.
func New(ctx context.Context, cfgPath string, opts ...Option) (*App, error) {
	cfgm, cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	store, err := OpenStore(ctx, cfg, log)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	log.Info("storage ready", logx.String("driver", storage.NormalizeDriver(cfg.Storage.Driver)))

	pcfg, err := mapPublisherConfig(cfg)
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}
	registry, err := publisher.Build(pcfg, store, log.With(logx.String("comp", "publisher")))
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	scfg := mapSchedulerConfig(cfg)
	disp := dispatch.New(store, registry, dispatch.Options{
		PublishTimeout: scfg.PublishTimeout,
		Bus:            bus,
		Log:            log,
	})
	sched := scheduler.New(scfg, store, disp,
		scheduler.WithLogger(log),
		scheduler.WithBus(bus),
	)

	postSvc := posts.New(store, log)

	a := &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		registry: registry,
		disp:     disp,
		sched:    sched,
		posts:    postSvc,
		notify:   daemon.SdNotify,
	}

	if cfg.HTTP.Enabled {
		hcfg, err := mapHTTPConfig(cfg)
		if err != nil {
			_ = store.Close()
			_ = logSvc.Close()
			return nil, err
		}
		a.http = httpapi.New(hcfg, postSvc, sched, log)
	}

	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *App) Scheduler() *scheduler.Service { return a.sched }

func (a *App) Posts() *posts.Service { return a.posts }

func (a *App) Store() storage.Store { return a.store }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// drainTimeout bounds one in-flight dispatch: the publish call, its terminal
// write, and some slack.
func (a *App) drainTimeout() time.Duration {
	return a.disp.PublishTimeout() + a.disp.PersistTimeout() + drainMargin
}

// StopTimeout is a shutdown budget long enough for an in-flight tick to
// finish and the remaining components to stop.
func (a *App) StopTimeout() time.Duration {
	return a.drainTimeout() + 10*time.Second
}

// TickOnce runs a single scheduler tick without starting the polling loop.
func (a *App) TickOnce(ctx context.Context) (scheduler.TickReport, error) {
	return a.sched.Tick(ctx)
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *Config) error {
		return validateConfig(cfg)
	})

	if cfg := a.cfgm.Get(); cfg == nil || cfg.Scheduler.IsEnabled() {
		a.sched.Start(a.sup.Context())
	} else {
		a.log.Info("scheduler disabled by config")
	}

	if a.http != nil {
		a.sup.Go("http.serve", a.http.Serve)
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.logEvent(e)
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.sdNotify(daemon.SdNotifyReady)
	a.log.Info("app started")
	return nil
}

// logEvent keeps tick chatter at debug and surfaces failures.
func (a *App) logEvent(e eventbus.Event) {
	switch e.Type {
	case eventbus.PostPersistFailed, eventbus.TickFailed:
		a.log.Warn("event", logx.String("type", e.Type), logx.Time("time", e.Time), logx.Any("data", e.Data))
	default:
		a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
	}
}

func (a *App) sdNotify(state string) {
	if a.notify == nil {
		return
	}
	if ok, err := a.notify(false, state); err != nil {
		a.log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify sent", logx.String("state", state))
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.closeResources()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sdNotify(daemon.SdNotifyStopping)

	// Drain the scheduler before cancelling the run context, so an in-flight
	// tick finishes its posts instead of seeing shutdown.
	a.step(ctx, "scheduler", a.drainTimeout(), func(c context.Context) error { a.sched.Stop(c); return nil })

	a.sup.Cancel()
	a.step(ctx, "supervisor", 6*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	// A tick that outlived the drain still owes terminal writes; closing the
	// store under it would leave published posts scheduled.
	if a.sched.Snapshot().TickInFlight {
		a.log.Error("tick still in flight after drain; storage left open")
	} else {
		a.step(ctx, "storage", time.Second, func(c context.Context) error { return a.store.Close() })
	}

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func (a *App) closeResources() error {
	err := a.store.Close()
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}

// step runs one shutdown step with an upper bound so one component can't
// stall the whole stop. It never extends the caller's deadline.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			err := <-done
			if err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
			}
		}()
	}
}
