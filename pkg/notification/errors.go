package notification

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a notification does not exist in the store.
	ErrNotFound = errors.New("notification not found")

	// ErrAlreadyExists is returned when creating a notification with an ID
	// that is already present.
	ErrAlreadyExists = errors.New("notification already exists")

	// ErrMissingRecipient is returned when creating a notification without a recipient.
	ErrMissingRecipient = errors.New("recipient ID is required")

	// ErrStoreUnavailable wraps backend connectivity failures so callers can
	// back off and retry the whole poll cycle.
	ErrStoreUnavailable = errors.New("notification store unavailable")
)

// InvalidTransitionError indicates a requested status change that is not an
// edge of the lifecycle graph. Losing a conditional transition race is not an
// error; asking for an impossible edge is.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %q to %q", e.From, e.To)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var e *InvalidTransitionError
	return errors.As(err, &e)
}
