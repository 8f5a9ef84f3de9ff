package batch

import "errors"

var (
	// ErrBatchNotFound is returned when no batch exists for the given ID.
	ErrBatchNotFound = errors.New("batch not found")

	// ErrEmptyBatch is returned when creating a batch with no members.
	ErrEmptyBatch = errors.New("batch has no members")

	// ErrMissingName is returned when creating a batch without a name.
	ErrMissingName = errors.New("batch name is required")

	// ErrMemberNotPending is returned when a batch member is not in a
	// deliverable state. Batches only aggregate notifications that have not
	// entered delivery yet.
	ErrMemberNotPending = errors.New("batch member is not pending")

	// ErrSchedulerRunning is returned when starting an already started
	// scheduler.
	ErrSchedulerRunning = errors.New("batch scheduler already started")

	// ErrSchedulerStopped is returned when stopping a scheduler that never
	// started.
	ErrSchedulerStopped = errors.New("batch scheduler not started")
)
