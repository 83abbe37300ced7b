package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/log"
)

// Sweeper calls Cleanup on a target at a fixed interval. It owns at most one
// goroutine, started by Start and stopped by Stop or context cancellation.
type Sweeper struct {
	target   Cleaner
	interval time.Duration

	clock  clock.Clock
	logger *log.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup

	stats SweeperStats
}

// SweeperStats reports sweep activity.
type SweeperStats struct {
	Runs    int64
	Removed int64
	LastRun time.Time
}

// NewSweeper creates a sweeper for target. Nothing runs until Start.
func NewSweeper(target Cleaner, interval time.Duration, opts ...Option) *Sweeper {
	o := buildOptions(opts)
	return &Sweeper{
		target:   target,
		interval: interval,
		clock:    o.clock,
		logger:   o.logger,
	}
}

// Interval returns the configured sweep interval.
func (s *Sweeper) Interval() time.Duration {
	return s.interval
}

// Start launches the background sweep loop.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("%w: sweep interval must be positive, got %s", ErrInvalidArgument, s.interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSweeperRunning
	}
	s.running = true
	s.stop = make(chan struct{})

	// The ticker is created before the goroutine starts so that a mock clock
	// advanced right after Start is already observed.
	ticker := s.clock.Ticker(s.interval)
	s.wg.Add(1)
	go s.loop(ctx, ticker, s.stop)

	s.logger.Debug("Cache sweeper started", "interval", s.interval)
	return nil
}

// Stop halts the sweep loop and waits for it to exit. It is safe to call
// multiple times and on a sweeper that was never started.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Debug("Cache sweeper stopped")
}

// Running reports whether the sweep loop is active.
func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// RunOnce performs a single sweep synchronously and returns the number of
// entries removed.
func (s *Sweeper) RunOnce() int {
	removed := s.target.Cleanup()

	s.mu.Lock()
	s.stats.Runs++
	s.stats.Removed += int64(removed)
	s.stats.LastRun = s.clock.Now()
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Debug("Removed expired cache entries", "count", removed)
	}
	return removed
}

// Stats returns sweep statistics.
func (s *Sweeper) Stats() SweeperStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stats
}

func (s *Sweeper) loop(ctx context.Context, ticker *clock.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce()
		case <-stop:
			return
		case <-ctx.Done():
			s.mu.Lock()
			// A later Start may already own the flag.
			if s.stop == stop {
				s.running = false
			}
			s.mu.Unlock()
			return
		}
	}
}
