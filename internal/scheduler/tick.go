package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"postsched/internal/dispatch"
	"postsched/internal/eventbus"
	logx "postsched/pkg/logx"
)

func (s *Service) beginTick() (chan struct{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tickDone != nil {
		return nil, false
	}
	ch := make(chan struct{})
	s.tickDone = ch
	return ch, true
}

func (s *Service) endTick(ch chan struct{}) {
	s.mu.Lock()
	s.tickDone = nil
	s.mu.Unlock()
	close(ch)
}

// Tick runs one scan-and-dispatch pass. It returns ErrTickInProgress without
// doing anything when another tick is running.
//
// Cancelling ctx stops initiating further posts; posts already handed to the
// dispatcher run to completion and their outcome is persisted.
func (s *Service) Tick(ctx context.Context) (TickReport, error) {
	done, ok := s.beginTick()
	if !ok {
		s.skipped.Add(1)
		s.log.Warn("tick skipped: previous tick still running")
		s.bus.Publish(eventbus.Event{Type: eventbus.TickSkipped})
		return TickReport{}, ErrTickInProgress
	}
	defer s.endTick(done)

	cfg := s.config()
	start := time.Now()
	now := s.now()
	rep := TickReport{Started: now}
	s.ticks.Add(1)

	due, err := s.store.ListDue(ctx, now, cfg.BatchLimit)
	if err != nil {
		s.tickFailures.Add(1)
		rep.Took = time.Since(start)
		rep.Error = err.Error()
		s.record(rep)
		s.log.Error("due query failed", logx.Err(err))
		s.bus.Publish(eventbus.Event{Type: eventbus.TickFailed, Data: rep})
		return rep, fmt.Errorf("list due: %w", err)
	}
	rep.Due = len(due)
	if len(due) > 0 {
		s.log.Debug("tick", logx.Int("due", len(due)), logx.Time("now", now))
	}

	// Workers claim posts in list order. The claim lock is held until the
	// claimed post's dispatch has started, so initiation follows the due order
	// while completion does not.
	var (
		mu    sync.Mutex
		claim sync.Mutex
		next  int
		g     errgroup.Group
	)
	workers := min(cfg.Concurrency, len(due))
	g.SetLimit(max(workers, 1))
	dctx := context.WithoutCancel(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				claim.Lock()
				if next >= len(due) {
					claim.Unlock()
					return nil
				}
				if ctx.Err() != nil {
					mu.Lock()
					rep.Deferred += len(due) - next
					mu.Unlock()
					next = len(due)
					claim.Unlock()
					return nil
				}
				p := due[next]
				next++

				var once sync.Once
				release := func() { once.Do(claim.Unlock) }
				res := func() dispatch.Result {
					defer release()
					return s.disp.Dispatch(dispatch.WithStarted(dctx, release), p)
				}()

				mu.Lock()
				rep.add(res)
				mu.Unlock()
			}
		})
	}
	_ = g.Wait()

	s.published.Add(uint64(rep.Published))
	s.failed.Add(uint64(rep.Failed))
	s.persistFailed.Add(uint64(rep.PersistFailed))
	rep.Took = time.Since(start)
	s.record(rep)

	if rep.Due > 0 || rep.Deferred > 0 {
		s.log.Info("tick completed",
			logx.Int("due", rep.Due),
			logx.Int("published", rep.Published),
			logx.Int("failed", rep.Failed),
			logx.Int("persist_failed", rep.PersistFailed),
			logx.Int("deferred", rep.Deferred),
			logx.Duration("took", rep.Took),
		)
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.TickCompleted, Data: rep})
	return rep, nil
}

func (s *Service) record(rep TickReport) {
	size := s.config().HistorySize
	s.hmu.Lock()
	s.history = append(s.history, rep)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}
