package sender

import "errors"

var (
	// ErrInvalidConfig is returned when a sender is constructed with missing
	// or malformed configuration.
	ErrInvalidConfig = errors.New("invalid sender configuration")

	// ErrNoAddress is returned when the recipient has no address for the
	// sender's channel. Treated as a permanent failure: retrying cannot
	// conjure an address.
	ErrNoAddress = errors.New("no address for recipient")

	// ErrSendFailed wraps transport-level delivery failures.
	ErrSendFailed = errors.New("send failed")

	// ErrFeedClosed is returned when publishing to a closed in-app feed.
	ErrFeedClosed = errors.New("feed closed")
)
