package scheduler

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	cfg := s.cfg
	c := s.c
	id := s.entryID
	inFlight := s.tickDone != nil
	s.mu.Unlock()

	snap := Snapshot{
		Running:        c != nil,
		TickInFlight:   inFlight,
		PollInterval:   cfg.PollInterval,
		PublishTimeout: cfg.PublishTimeout,
		Concurrency:    cfg.Concurrency,
		BatchLimit:     cfg.BatchLimit,
		Ticks:          s.ticks.Load(),
		Skipped:        s.skipped.Load(),
		TickFailures:   s.tickFailures.Load(),
		Published:      s.published.Load(),
		Failed:         s.failed.Load(),
		PersistFailed:  s.persistFailed.Load(),
	}
	if c != nil && id != 0 {
		e := c.Entry(id)
		snap.Next = e.Next
		snap.Prev = e.Prev
	}

	s.hmu.Lock()
	snap.History = make([]TickReport, len(s.history))
	copy(snap.History, s.history)
	s.hmu.Unlock()
	if n := len(snap.History); n > 0 {
		last := snap.History[n-1]
		snap.LastTick = &last
	}
	return snap
}
