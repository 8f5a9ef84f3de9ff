package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// ChannelSender delivers one notification over one medium. Send classifies
// the result rather than just failing: transient failures are retried with
// backoff, permanent failures skip straight to the next channel.
type ChannelSender interface {
	// Channel identifies the medium this sender serves.
	Channel() notification.Channel

	// Send attempts delivery. The returned error carries detail for the
	// attempt record; the outcome decides what happens next.
	Send(ctx context.Context, n notification.Notification) (notification.Outcome, error)
}

// SenderFunc adapts a function to a ChannelSender.
type SenderFunc struct {
	Ch string
	Fn func(ctx context.Context, n notification.Notification) (notification.Outcome, error)
}

func (s SenderFunc) Channel() notification.Channel { return notification.Channel(s.Ch) }

func (s SenderFunc) Send(ctx context.Context, n notification.Notification) (notification.Outcome, error) {
	return s.Fn(ctx, n)
}

// Registry holds the configured sender per channel.
type Registry struct {
	mu      sync.RWMutex
	senders map[notification.Channel]ChannelSender
}

// NewRegistry creates an empty sender registry.
func NewRegistry() *Registry {
	return &Registry{senders: make(map[notification.Channel]ChannelSender)}
}

// Register adds a sender for its channel. One sender per channel.
func (r *Registry) Register(s ChannelSender) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.senders[s.Channel()]; ok {
		return ErrSenderExists
	}
	r.senders[s.Channel()] = s
	return nil
}

// Get returns the sender for a channel, if any.
func (r *Registry) Get(ch notification.Channel) (ChannelSender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.senders[ch]
	return s, ok
}

// Channels returns the channels with a registered sender.
func (r *Registry) Channels() []notification.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]notification.Channel, 0, len(r.senders))
	for ch := range r.senders {
		out = append(out, ch)
	}
	return out
}

// Dispatcher drives a due notification through its channel order: claim it
// with a conditional status swap, try each channel with per-channel retries,
// and settle the final status from the attempt outcomes.
type Dispatcher struct {
	store       notification.Store
	senders     *Registry
	backoff     BackoffStrategy
	maxAttempts int
	sendTimeout time.Duration
	log         *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithBackoff replaces the retry delay curve.
func WithBackoff(b BackoffStrategy) DispatcherOption {
	return func(d *Dispatcher) {
		if b != nil {
			d.backoff = b
		}
	}
}

// WithMaxAttempts caps retries per channel. Default is 3.
func WithMaxAttempts(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// WithSendTimeout bounds each individual send. A timed-out send counts as a
// transient failure. Default is 10s.
func WithSendTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if t > 0 {
			d.sendTimeout = t
		}
	}
}

// WithDispatcherLogger sets the logger for delivery progress and failures.
func WithDispatcherLogger(log *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

// NewDispatcher creates a dispatcher over the given store and sender registry.
func NewDispatcher(store notification.Store, senders *Registry, opts ...DispatcherOption) (*Dispatcher, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	if senders == nil {
		senders = NewRegistry()
	}
	d := &Dispatcher{
		store:       store,
		senders:     senders,
		backoff:     DefaultBackoffStrategy(),
		maxAttempts: 3,
		sendTimeout: 10 * time.Second,
		log:         slog.Default(),
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var deliverable = []notification.Status{
	notification.StatusPending,
	notification.StatusScheduled,
}

// Deliver claims the notification and attempts delivery over its channel
// order. Losing the claim race returns ErrNotClaimable; a notification whose
// channels all exhaust their attempts is marked failed and returns
// ErrAllChannelsFailed.
func (d *Dispatcher) Deliver(ctx context.Context, id uuid.UUID) error {
	n, err := d.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if n.IsExpired(time.Now()) {
		if _, err := d.store.Transition(ctx, id, deliverable, notification.StatusExpired); err != nil {
			return err
		}
		return ErrExpired
	}

	claimed, err := d.store.Transition(ctx, id, deliverable, notification.StatusSent)
	if err != nil {
		return err
	}
	if !claimed {
		return ErrNotClaimable
	}

	for _, ch := range n.Channels {
		sender, ok := d.senders.Get(ch)
		if !ok {
			d.recordAttempt(ctx, id, ch, 1, notification.OutcomePermanentFailure, ErrNoSender)
			continue
		}
		delivered, err := d.tryChannel(ctx, *n, sender)
		if err != nil {
			// Cancelled mid-retry. The channel is not exhausted, so the
			// notification must not settle failed; it stays claimed in sent
			// and the caller decides what to do with the interruption.
			d.log.WarnContext(ctx, "delivery interrupted",
				"notification_id", id, "channel", ch, "error", err)
			return err
		}
		if delivered {
			if _, err := d.store.Transition(ctx, id,
				[]notification.Status{notification.StatusSent}, notification.StatusDelivered); err != nil {
				return err
			}
			d.log.InfoContext(ctx, "notification delivered",
				"notification_id", id, "channel", ch, "recipient_id", n.RecipientID)
			return nil
		}
	}

	if _, err := d.store.Transition(ctx, id,
		[]notification.Status{notification.StatusSent}, notification.StatusFailed); err != nil {
		return err
	}
	d.log.WarnContext(ctx, "notification failed on every channel",
		"notification_id", id, "channels", n.Channels, "recipient_id", n.RecipientID)
	return ErrAllChannelsFailed
}

// tryChannel runs up to maxAttempts sends on one channel and reports whether
// one succeeded. A context error means the caller was cancelled before the
// channel's attempts were exhausted; it is returned as-is so the caller can
// tell interruption apart from genuine exhaustion.
func (d *Dispatcher) tryChannel(ctx context.Context, n notification.Notification, sender ChannelSender) (bool, error) {
	ch := sender.Channel()
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		outcome, sendErr := d.send(ctx, n, sender)
		d.recordAttempt(ctx, n.ID, ch, attempt, outcome, sendErr)

		switch outcome {
		case notification.OutcomeSuccess:
			return true, nil
		case notification.OutcomePermanentFailure:
			return false, nil
		}

		if err := ctx.Err(); err != nil {
			return false, err
		}
		if attempt < d.maxAttempts {
			if err := d.sleep(ctx, d.backoff.NextInterval(attempt)); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}

func (d *Dispatcher) send(ctx context.Context, n notification.Notification, sender ChannelSender) (outcome notification.Outcome, err error) {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			outcome = notification.OutcomePermanentFailure
			err = errors.New("sender panicked")
			d.log.ErrorContext(ctx, "sender panicked",
				"notification_id", n.ID, "channel", sender.Channel(), "panic", r)
		}
	}()

	outcome, err = sender.Send(sendCtx, n)
	if errors.Is(sendCtx.Err(), context.DeadlineExceeded) && outcome != notification.OutcomeSuccess {
		outcome = notification.OutcomeTransientFailure
		if err == nil {
			err = context.DeadlineExceeded
		}
	}
	return outcome, err
}

func (d *Dispatcher) recordAttempt(ctx context.Context, id uuid.UUID, ch notification.Channel, attempt int, outcome notification.Outcome, sendErr error) {
	detail := ""
	if sendErr != nil {
		detail = sendErr.Error()
	}
	rec := notification.DeliveryAttempt{
		NotificationID: id,
		Channel:        ch,
		Attempt:        attempt,
		Outcome:        outcome,
		Detail:         detail,
	}
	if err := d.store.AppendAttempt(ctx, rec); err != nil {
		d.log.ErrorContext(ctx, "failed to record delivery attempt",
			"notification_id", id, "channel", ch, "error", err)
	}
}
