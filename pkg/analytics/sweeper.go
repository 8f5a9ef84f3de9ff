package analytics

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrSweeperRunning is returned when starting an already started sweeper.
	ErrSweeperRunning = errors.New("analytics sweeper already started")

	// ErrSweeperStopped is returned when stopping a sweeper that never started.
	ErrSweeperStopped = errors.New("analytics sweeper not started")
)

// Sweeper runs the aggregator on a fixed interval, keeping Latest fresh.
type Sweeper struct {
	aggregator *Aggregator
	interval   time.Duration
	log        *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a periodic sweeper. Interval defaults to 60s when
// non-positive.
func NewSweeper(aggregator *Aggregator, interval time.Duration, log *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{aggregator: aggregator, interval: interval, log: log}
}

// Start begins sweeping in the background.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrSweeperRunning
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if _, err := s.aggregator.Sweep(ctx, now); err != nil {
					s.log.ErrorContext(ctx, "analytics sweep failed", "error", err)
				}
			}
		}
	}()
	s.log.Info("analytics sweeper started", "interval", s.interval)
	return nil
}

// Stop cancels sweeping and waits for an in-flight sweep.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return ErrSweeperStopped
	}
	cancel()
	s.wg.Wait()
	return nil
}
