package sender

import (
	"context"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// AddressFunc resolves a recipient's address for a channel: an email address,
// a phone number, a device token, or a webhook URL. Returning ErrNoAddress
// marks the attempt as a permanent failure.
type AddressFunc func(ctx context.Context, recipientID string, ch notification.Channel) (string, error)

// StaticAddresses builds an AddressFunc from a fixed per-recipient table.
// Useful for tests and single-tenant deployments.
func StaticAddresses(table map[string]map[notification.Channel]string) AddressFunc {
	return func(ctx context.Context, recipientID string, ch notification.Channel) (string, error) {
		addr, ok := table[recipientID][ch]
		if !ok || addr == "" {
			return "", ErrNoAddress
		}
		return addr, nil
	}
}
