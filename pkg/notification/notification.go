package notification

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a notification.
type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusActedUpon Status = "acted_upon"
	StatusExpired   Status = "expired"
	StatusFailed    Status = "failed"
)

// lifecycle is the directed graph of permitted status transitions.
// Transitions are monotonic: a terminal status is never re-opened.
var lifecycle = map[Status][]Status{
	StatusPending:   {StatusScheduled, StatusSent, StatusExpired},
	StatusScheduled: {StatusSent, StatusExpired},
	StatusSent:      {StatusDelivered, StatusFailed},
	StatusDelivered: {StatusRead, StatusExpired},
	StatusRead:      {StatusActedUpon},
}

// Valid reports whether the status is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusSent, StatusDelivered,
		StatusRead, StatusActedUpon, StatusExpired, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusExpired, StatusFailed, StatusActedUpon:
		return true
	}
	return false
}

// CanTransition reports whether the lifecycle graph contains the edge from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range lifecycle[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Priority represents notification priority. Higher values are dispatched first.
// Using int8 provides sufficient range while keeping memory footprint minimal.
type Priority int8

const (
	PriorityLow      Priority = 10
	PriorityMedium   Priority = 30
	PriorityHigh     Priority = 50
	PriorityCritical Priority = 70
	PriorityUrgent   Priority = 90

	PriorityDefault = PriorityMedium
)

// Valid checks if the priority is within valid range.
func (p Priority) Valid() bool {
	return p > 0 && p <= 100
}

// Channel is a delivery medium.
type Channel string

const (
	ChannelInApp   Channel = "in_app"
	ChannelEmail   Channel = "email"
	ChannelPush    Channel = "push"
	ChannelSMS     Channel = "sms"
	ChannelWebhook Channel = "webhook"
)

// KnownChannels lists every channel the engine understands, in no particular order.
func KnownChannels() []Channel {
	return []Channel{ChannelInApp, ChannelEmail, ChannelPush, ChannelSMS, ChannelWebhook}
}

// Valid reports whether the channel is one of the known delivery media.
func (c Channel) Valid() bool {
	switch c {
	case ChannelInApp, ChannelEmail, ChannelPush, ChannelSMS, ChannelWebhook:
		return true
	}
	return false
}

// Outcome classifies the result of a single channel delivery attempt.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeTransientFailure Outcome = "transient_failure"
	OutcomePermanentFailure Outcome = "permanent_failure"
)

// DeliveryAttempt records a single delivery attempt for a notification.
// Attempts are append-only and never mutated; they feed retry bookkeeping
// and analytics.
type DeliveryAttempt struct {
	ID             uuid.UUID `json:"id"`
	NotificationID uuid.UUID `json:"notification_id"`
	Channel        Channel   `json:"channel"`
	Attempt        int       `json:"attempt"`
	Outcome        Outcome   `json:"outcome"`
	Detail         string    `json:"detail,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Notification is the core domain model.
type Notification struct {
	ID          uuid.UUID      `json:"id"`
	RecipientID string         `json:"recipient_id"`
	GroupID     string         `json:"group_id,omitempty"`
	Type        string         `json:"type"`
	Priority    Priority       `json:"priority"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Payload     map[string]any `json:"payload,omitempty"`

	// Channels is the resolved delivery order produced by the scorer,
	// constrained to what the source template declares.
	Channels  []Channel `json:"channels"`
	Relevance float64   `json:"relevance"`

	TemplateID uuid.UUID `json:"template_id,omitempty"`
	RuleID     uuid.UUID `json:"rule_id,omitempty"`

	Status       Status     `json:"status"`
	ActedAction  string     `json:"acted_action,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
	ActedUponAt  *time.Time `json:"acted_upon_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// DueAt returns the moment the notification becomes visible to the dispatcher:
// its scheduled time when deferred, otherwise its creation time.
func (n *Notification) DueAt() time.Time {
	if n.ScheduledFor != nil {
		return *n.ScheduledFor
	}
	return n.CreatedAt
}

// IsExpired returns true if the notification has passed its expiry deadline.
func (n *Notification) IsExpired(now time.Time) bool {
	return n.ExpiresAt != nil && now.After(*n.ExpiresAt)
}
