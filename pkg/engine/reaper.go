package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

var (
	// ErrReaperRunning is returned when starting an already started reaper.
	ErrReaperRunning = errors.New("reaper already started")

	// ErrReaperStopped is returned when stopping a reaper that never started.
	ErrReaperStopped = errors.New("reaper not started")
)

// expirable lists the statuses the reaper may expire from. Read and
// acted-upon notifications stay around: the recipient already saw them.
var expirable = []notification.Status{
	notification.StatusPending,
	notification.StatusScheduled,
	notification.StatusDelivered,
}

// Reaper periodically expires notifications that outlived their deadline
// without being read.
type Reaper struct {
	store    notification.Store
	interval time.Duration
	log      *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReaper creates a reaper. Interval defaults to one minute when
// non-positive.
func NewReaper(store notification.Store, interval time.Duration, log *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reaper{store: store, interval: interval, log: log}
}

// Sweep expires every eligible notification past its deadline and returns how
// many were expired. The per-record conditional transition keeps concurrent
// sweeps and in-flight deliveries consistent: a notification claimed between
// listing and transition simply loses the swap.
func (r *Reaper) Sweep(ctx context.Context, now time.Time) (int, error) {
	candidates, err := r.store.List(ctx, notification.Query{Statuses: expirable})
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, n := range candidates {
		if !n.IsExpired(now) {
			continue
		}
		ok, err := r.store.Transition(ctx, n.ID,
			[]notification.Status{n.Status}, notification.StatusExpired)
		if err != nil {
			r.log.ErrorContext(ctx, "failed to expire notification",
				"notification_id", n.ID, "error", err)
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

// Start begins sweeping in the background.
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return ErrReaperRunning
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n, err := r.Sweep(ctx, now); err != nil {
					r.log.ErrorContext(ctx, "reaper sweep failed", "error", err)
				} else if n > 0 {
					r.log.InfoContext(ctx, "expired notifications", "count", n)
				}
			}
		}
	}()
	r.log.Info("reaper started", "interval", r.interval)
	return nil
}

// Stop cancels sweeping and waits for an in-flight sweep.
func (r *Reaper) Stop() error {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return ErrReaperStopped
	}
	cancel()
	r.wg.Wait()
	return nil
}
