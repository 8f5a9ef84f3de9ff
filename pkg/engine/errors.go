package engine

import "errors"

var (
	// ErrNotOwner is returned when a recipient-facing operation targets a
	// notification belonging to someone else.
	ErrNotOwner = errors.New("notification belongs to another recipient")

	// ErrAlreadyTerminal is returned when an operation targets a
	// notification whose lifecycle has ended.
	ErrAlreadyTerminal = errors.New("notification is in a terminal status")

	// ErrNotCancelable is returned when cancelling a notification that has
	// already entered delivery.
	ErrNotCancelable = errors.New("notification already entered delivery")

	// ErrNotFailed is returned when resubmitting a notification that is not
	// in the failed status.
	ErrNotFailed = errors.New("only failed notifications can be resubmitted")

	// ErrNoRecipients is returned when an intent resolves to zero recipients.
	ErrNoRecipients = errors.New("intent has no recipients")
)
