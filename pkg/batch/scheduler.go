package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/dispatch"
	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Scheduler holds batches until their release time, then walks the members in
// order handing each to the dispatcher. A member that fails to deliver is
// recorded in the batch results and never blocks the rest; the batch still
// completes.
type Scheduler struct {
	store         Store
	notifications notification.Store
	dispatcher    *dispatch.Dispatcher

	pollInterval time.Duration
	log          *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithPollInterval sets how often the scheduler checks for due batches.
// Default is 5s.
func WithPollInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithSchedulerLogger sets the scheduler's logger.
func WithSchedulerLogger(log *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// NewScheduler creates a batch release scheduler.
func NewScheduler(store Store, notifications notification.Store, dispatcher *dispatch.Dispatcher, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		store:         store,
		notifications: notifications,
		dispatcher:    dispatcher,
		pollInterval:  5 * time.Second,
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add creates a batch over existing notifications. Every member must still be
// pending or scheduled; anything further along has already entered delivery
// and cannot be batched.
func (s *Scheduler) Add(ctx context.Context, name string, memberIDs []uuid.UUID, releaseAt time.Time) (*Batch, error) {
	for _, id := range memberIDs {
		n, err := s.notifications.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if n.Status != notification.StatusPending && n.Status != notification.StatusScheduled {
			return nil, fmt.Errorf("%w: %s is %s", ErrMemberNotPending, id, n.Status)
		}
	}

	b := &Batch{
		Name:         name,
		MemberIDs:    memberIDs,
		ScheduledFor: releaseAt,
	}
	if err := s.store.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Start begins polling for due batches in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrSchedulerRunning
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
	s.log.Info("batch scheduler started", "poll_interval", s.pollInterval)
	return nil
}

// Stop cancels polling and waits for an in-flight release to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return ErrSchedulerStopped
	}
	cancel()
	s.wg.Wait()
	s.log.Info("batch scheduler stopped")
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.releaseDue(ctx, time.Now())
		}
	}
}

// releaseDue processes every batch whose release time has arrived.
func (s *Scheduler) releaseDue(ctx context.Context, now time.Time) {
	due, err := s.store.ListDue(ctx, now)
	if err != nil {
		s.log.ErrorContext(ctx, "failed to list due batches", "error", err)
		return
	}
	for _, b := range due {
		s.release(ctx, b)
	}
}

// release walks one batch's members through the dispatcher. The conditional
// pending→processing swap makes releases single-winner when multiple
// schedulers share a store.
func (s *Scheduler) release(ctx context.Context, b Batch) {
	claimed, err := s.store.SetStatus(ctx, b.ID, StatusPending, StatusProcessing)
	if err != nil {
		s.log.ErrorContext(ctx, "failed to claim batch", "batch_id", b.ID, "error", err)
		return
	}
	if !claimed {
		return
	}

	results := make([]MemberResult, 0, len(b.MemberIDs))
	for _, id := range b.MemberIDs {
		result := MemberResult{NotificationID: id, Delivered: true}
		if err := s.dispatcher.Deliver(ctx, id); err != nil {
			result.Delivered = false
			if !errors.Is(err, dispatch.ErrNotClaimable) {
				result.Error = err.Error()
			}
		}
		results = append(results, result)
	}

	if err := s.store.Finish(ctx, b.ID, StatusCompleted, results); err != nil {
		s.log.ErrorContext(ctx, "failed to finish batch", "batch_id", b.ID, "error", err)
		return
	}
	s.log.InfoContext(ctx, "batch released",
		"batch_id", b.ID, "name", b.Name, "members", len(b.MemberIDs))
}
