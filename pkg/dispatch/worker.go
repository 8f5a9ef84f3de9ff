package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Worker polls the store for due notifications and hands them to the
// dispatcher on a bounded pool of goroutines. Several workers may run against
// the same store: the conditional claim inside Deliver makes double delivery
// impossible, a loser just moves on to the next due notification.
type Worker struct {
	store      notification.Store
	dispatcher *Dispatcher

	pollInterval time.Duration
	concurrency  int
	batchSize    int
	log          *slog.Logger

	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	cancel   context.CancelFunc
	stopping atomic.Bool
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithPollInterval sets how often the worker checks for due notifications.
// Default is 1s.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithConcurrency sets the number of notifications delivered in parallel.
// Default is twice the number of known channels.
func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithBatchSize caps how many due notifications one poll fetches. Default 100.
func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithWorkerLogger sets the worker's logger.
func WithWorkerLogger(log *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if log != nil {
			w.log = log
		}
	}
}

// NewWorker creates a delivery worker over the given store and dispatcher.
func NewWorker(store notification.Store, dispatcher *Dispatcher, opts ...WorkerOption) (*Worker, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	w := &Worker{
		store:        store,
		dispatcher:   dispatcher,
		pollInterval: time.Second,
		concurrency:  2 * len(notification.KnownChannels()),
		batchSize:    100,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.sem = make(chan struct{}, w.concurrency)
	return w, nil
}

// Start begins polling in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return ErrWorkerRunning
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.stopping.Store(false)
	go w.run(ctx)

	w.log.Info("dispatch worker started",
		"poll_interval", w.pollInterval, "concurrency", w.concurrency)
	return nil
}

// Stop cancels polling and waits for in-flight deliveries to run to
// completion. Deliveries are never interrupted mid-flight.
func (w *Worker) Stop() error {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()
	if cancel == nil {
		return ErrWorkerStopped
	}

	w.stopping.Store(true)
	cancel()
	w.wg.Wait()
	w.log.Info("dispatch worker stopped")
	return nil
}

// Run returns a function suitable for errgroup: it starts the worker, waits
// for context cancellation, then stops it.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

func (w *Worker) run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll fetches one batch of due notifications and fans them out, never
// exceeding the concurrency limit.
func (w *Worker) poll(ctx context.Context) {
	due, err := w.store.ListDue(ctx, time.Now(), w.batchSize)
	if err != nil {
		w.log.ErrorContext(ctx, "failed to list due notifications", "error", err)
		return
	}

	for _, n := range due {
		select {
		case <-ctx.Done():
			return
		case w.sem <- struct{}{}:
		}
		if w.stopping.Load() {
			<-w.sem
			return
		}

		w.wg.Add(1)
		go func(n notification.Notification) {
			defer w.wg.Done()
			defer func() { <-w.sem }()

			// Detached from the poll-loop context: a claimed notification
			// runs its retries to completion even across a routine Stop,
			// which waits on the WaitGroup. Cancelling mid-retry would
			// otherwise settle recoverable notifications as failed.
			err := w.dispatcher.Deliver(context.WithoutCancel(ctx), n.ID)
			switch {
			case err == nil:
			case errors.Is(err, ErrNotClaimable), errors.Is(err, ErrExpired):
				// another worker won the claim, or the reaper got there first
			case errors.Is(err, ErrAllChannelsFailed):
				w.log.WarnContext(ctx, "delivery exhausted all channels",
					"notification_id", n.ID)
			default:
				w.log.ErrorContext(ctx, "delivery error",
					"notification_id", n.ID, "error", err)
			}
		}(n)
	}
}
