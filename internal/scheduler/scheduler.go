// Package scheduler drives each source's poll cycle at its own cadence off
// one shared tick.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"financeexporter/internal/source"
)

// Cycler runs one poll cycle of a source.
type Cycler interface {
	Cycle(ctx context.Context, src source.Bound) int
}

type entry struct {
	src source.Bound
	// lastRun is only touched by the dispatching goroutine.
	lastRun time.Time
	busy    atomic.Bool
}

// Scheduler wakes every resolution and starts a cycle for each source whose
// interval has elapsed since its last start. Cycles run on their own
// goroutines; a source whose previous cycle is still running is skipped.
type Scheduler struct {
	entries    []*entry
	cycler     Cycler
	resolution time.Duration
	clock      clock.WithTicker
	logger     *zap.Logger

	wg sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock providing time and tickers.
func WithClock(c clock.WithTicker) Option {
	return func(s *Scheduler) { s.clock = c }
}

// New returns a Scheduler for sources. Every source starts with a last run at
// the Unix epoch, so its first cycle begins on the first tick.
func New(sources []source.Bound, cycler Cycler, resolution time.Duration, logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		cycler:     cycler,
		resolution: resolution,
		clock:      clock.RealClock{},
		logger:     logger,
	}
	for _, src := range sources {
		s.entries = append(s.entries, &entry{src: src, lastRun: time.Unix(0, 0)})
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run dispatches immediately and then on every tick until ctx is done. It
// waits for in-flight cycles before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Scheduler started", zap.Int("sources", len(s.entries)), zap.Duration("resolution", s.resolution))
	defer s.logger.Info("Scheduler stopped")

	s.dispatch(ctx, s.clock.Now())

	ticker := s.clock.NewTicker(s.resolution)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Wait()
			return nil
		case now := <-ticker.C():
			s.dispatch(ctx, now)
		}
	}
}

// Wait blocks until every started cycle has returned.
func (s *Scheduler) Wait() { s.wg.Wait() }

// dispatch starts the cycles due at now and returns the names of their sources.
func (s *Scheduler) dispatch(ctx context.Context, now time.Time) []string {
	var started []string
	for _, e := range s.entries {
		if now.Sub(e.lastRun) < e.src.Interval {
			continue
		}
		if !e.busy.CompareAndSwap(false, true) {
			s.logger.Debug("Previous cycle still running, skipping", zap.String("source", e.src.Name))
			continue
		}
		e.lastRun = now
		started = append(started, e.src.Name)

		s.wg.Add(1)
		go func(e *entry) {
			defer s.wg.Done()
			defer e.busy.Store(false)
			s.cycler.Cycle(ctx, e.src)
		}(e)
	}
	return started
}
