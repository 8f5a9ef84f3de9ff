package dispatch

import "errors"

var (
	// ErrNotClaimable is returned when a notification could not be claimed
	// for delivery: another worker got there first, or its status already
	// left the deliverable set. Callers should treat it as a no-op.
	ErrNotClaimable = errors.New("notification not claimable")

	// ErrExpired is returned when the notification passed its expiry
	// deadline before delivery started.
	ErrExpired = errors.New("notification expired before delivery")

	// ErrAllChannelsFailed is returned when every channel exhausted its
	// attempts without a single success.
	ErrAllChannelsFailed = errors.New("all delivery channels failed")

	// ErrNoSender is recorded on an attempt when a notification requests a
	// channel with no registered sender.
	ErrNoSender = errors.New("no sender registered for channel")

	// ErrSenderExists is returned when registering a second sender for the
	// same channel.
	ErrSenderExists = errors.New("sender already registered for channel")

	// ErrStoreNil is returned when constructing a dispatcher or worker
	// without a notification store.
	ErrStoreNil = errors.New("notification store is nil")

	// ErrWorkerRunning is returned when starting an already started worker.
	ErrWorkerRunning = errors.New("worker already started")

	// ErrWorkerStopped is returned when stopping a worker that never started.
	ErrWorkerStopped = errors.New("worker not started")
)
