package sender

import (
	"context"
	"slices"
	"sync"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// InApp delivers notifications to an in-process, per-recipient feed. Delivery
// always succeeds once the notification lands in the feed; live subscribers
// are fanned out to best-effort, a slow subscriber just misses the push and
// reads the feed instead.
type InApp struct {
	mu          sync.RWMutex
	feedSize    int
	feeds       map[string][]notification.Notification
	subscribers map[string][]chan notification.Notification
	closed      bool
}

// InAppOption configures the in-app sender.
type InAppOption func(*InApp)

// WithFeedSize caps how many notifications are retained per recipient.
// Default is 100; the oldest entries are evicted first.
func WithFeedSize(n int) InAppOption {
	return func(s *InApp) {
		if n > 0 {
			s.feedSize = n
		}
	}
}

// NewInApp creates an in-app feed sender.
func NewInApp(opts ...InAppOption) *InApp {
	s := &InApp{
		feedSize:    100,
		feeds:       make(map[string][]notification.Notification),
		subscribers: make(map[string][]chan notification.Notification),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InApp) Channel() notification.Channel { return notification.ChannelInApp }

// Send appends the notification to the recipient's feed and notifies live
// subscribers. The feed is in-process state, so failure modes are limited to
// a closed sender.
func (s *InApp) Send(ctx context.Context, n notification.Notification) (notification.Outcome, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return notification.OutcomePermanentFailure, ErrFeedClosed
	}

	feed := append(s.feeds[n.RecipientID], n)
	if len(feed) > s.feedSize {
		feed = feed[len(feed)-s.feedSize:]
	}
	s.feeds[n.RecipientID] = feed
	subs := slices.Clone(s.subscribers[n.RecipientID])
	s.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub <- n:
		default:
			// subscriber is not draining; the feed still has the record
		}
	}
	return notification.OutcomeSuccess, nil
}

// Feed returns the recipient's retained notifications, oldest first.
func (s *InApp) Feed(recipientID string) []notification.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.feeds[recipientID])
}

// Subscribe returns a channel receiving the recipient's future notifications.
// Call the returned cancel function to unsubscribe.
func (s *InApp) Subscribe(recipientID string) (<-chan notification.Notification, func()) {
	ch := make(chan notification.Notification, 16)

	s.mu.Lock()
	s.subscribers[recipientID] = append(s.subscribers[recipientID], ch)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subscribers[recipientID]
		for i, sub := range subs {
			if sub == ch {
				s.subscribers[recipientID] = slices.Delete(subs, i, i+1)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

// Close stops the sender. Subsequent sends fail permanently; subscriber
// channels are closed.
func (s *InApp) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, subs := range s.subscribers {
		for _, sub := range subs {
			close(sub)
		}
	}
	s.subscribers = make(map[string][]chan notification.Notification)
}
