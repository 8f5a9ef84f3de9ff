package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows recipient-facing listings.
type Filter struct {
	OnlyUnread     bool       // When true, only return notifications without a read timestamp
	Types          []string   // If specified, only return notifications of these types
	Since          *time.Time // If specified, only return notifications created after this time
	IncludeFailed  bool       // Failed notifications are hidden from recipients unless requested
	IncludeExpired bool       // Expired notifications are hidden unless requested
	Limit          int        // Maximum number of notifications to return (0 = no limit)
	Offset         int        // Number of notifications to skip for pagination
}

// Query narrows store-wide listings used by analytics and operator tooling.
type Query struct {
	Statuses      []Status
	Types         []string
	ReadSince     *time.Time // Only notifications whose ReadAt is at or after this time
	CreatedBefore *time.Time
	Limit         int
}

// TransitionOption customizes a conditional status transition.
type TransitionOption func(*transitionConfig)

type transitionConfig struct {
	action string
	at     time.Time
}

// WithAction records the recipient action taken, for acted_upon transitions.
func WithAction(action string) TransitionOption {
	return func(c *transitionConfig) {
		c.action = action
	}
}

// WithTransitionTime overrides the timestamp recorded for read/acted_upon
// transitions. Used by tests to simulate clock advancement.
func WithTransitionTime(at time.Time) TransitionOption {
	return func(c *transitionConfig) {
		c.at = at
	}
}

func applyTransitionOptions(opts []TransitionOption) transitionConfig {
	cfg := transitionConfig{at: time.Now()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// validateEdges checks statically that every candidate source status permits
// the requested edge, so backends can run the conditional swap without
// re-reading the record first.
func validateEdges(from []Status, to Status) error {
	for _, f := range from {
		if !CanTransition(f, to) {
			return &InvalidTransitionError{From: f, To: to}
		}
	}
	return nil
}

// Store is the single source of truth for notification lifecycle state.
//
// Transition is the sole mutual-exclusion point of the delivery pipeline:
// it succeeds only if the current status is in the from set, so concurrent
// dispatch workers racing for the same due notification resolve to exactly
// one winner without any broader locking.
type Store interface {
	// Create persists a new notification.
	Create(ctx context.Context, n *Notification) error

	// Get retrieves a single notification by ID.
	Get(ctx context.Context, id uuid.UUID) (*Notification, error)

	// ListForRecipient returns notifications belonging to a recipient,
	// newest first. Failed and expired notifications are excluded unless
	// the filter requests them explicitly.
	ListForRecipient(ctx context.Context, recipientID string, f Filter) ([]Notification, error)

	// ListDue returns notifications with status pending or scheduled whose
	// due time is at or before the given instant, ordered by priority
	// descending then creation time ascending. limit <= 0 means no limit.
	ListDue(ctx context.Context, before time.Time, limit int) ([]Notification, error)

	// Transition atomically moves a notification from one of the given
	// statuses to the target status. It returns false (without error) when
	// the current status is not in the from set - the caller lost the race
	// or the record moved on. Read and acted-upon timestamps are recorded
	// on the matching target status.
	Transition(ctx context.Context, id uuid.UUID, from []Status, to Status, opts ...TransitionOption) (bool, error)

	// AppendAttempt records a delivery attempt. Attempts are append-only.
	AppendAttempt(ctx context.Context, attempt DeliveryAttempt) error

	// ListAttempts returns all delivery attempts for a notification in
	// insertion order.
	ListAttempts(ctx context.Context, notificationID uuid.UUID) ([]DeliveryAttempt, error)

	// List returns notifications matching the query. Used by the analytics
	// sweep and operator tooling; never by the hot dispatch path.
	List(ctx context.Context, q Query) ([]Notification, error)
}
