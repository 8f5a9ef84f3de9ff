package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatus_Terminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusPending, false},
		{StatusScheduled, false},
		{StatusSent, false},
		{StatusDelivered, false},
		{StatusRead, false},
		{StatusActedUpon, true},
		{StatusExpired, true},
		{StatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{"pending to sent", StatusPending, StatusSent, true},
		{"pending to scheduled", StatusPending, StatusScheduled, true},
		{"pending to expired", StatusPending, StatusExpired, true},
		{"scheduled to sent", StatusScheduled, StatusSent, true},
		{"sent to delivered", StatusSent, StatusDelivered, true},
		{"sent to failed", StatusSent, StatusFailed, true},
		{"delivered to read", StatusDelivered, StatusRead, true},
		{"delivered to expired", StatusDelivered, StatusExpired, true},
		{"read to acted_upon", StatusRead, StatusActedUpon, true},
		{"delivered before sent is impossible", StatusPending, StatusDelivered, false},
		{"sent cannot go back to pending", StatusSent, StatusPending, false},
		{"failed is terminal", StatusFailed, StatusPending, false},
		{"expired is terminal", StatusExpired, StatusSent, false},
		{"acted_upon is terminal", StatusActedUpon, StatusRead, false},
		{"read cannot expire", StatusRead, StatusExpired, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestNotification_DueAt(t *testing.T) {
	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	scheduled := created.Add(2 * time.Hour)

	t.Run("unscheduled falls back to creation time", func(t *testing.T) {
		n := Notification{CreatedAt: created}
		assert.Equal(t, created, n.DueAt())
	})

	t.Run("scheduled wins over creation time", func(t *testing.T) {
		n := Notification{CreatedAt: created, ScheduledFor: &scheduled}
		assert.Equal(t, scheduled, n.DueAt())
	})
}

func TestNotification_IsExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.False(t, (&Notification{}).IsExpired(now))
	assert.False(t, (&Notification{ExpiresAt: &future}).IsExpired(now))
	assert.True(t, (&Notification{ExpiresAt: &past}).IsExpired(now))
}

func TestPriority_Valid(t *testing.T) {
	assert.True(t, PriorityLow.Valid())
	assert.True(t, PriorityUrgent.Valid())
	assert.False(t, Priority(0).Valid())
	assert.False(t, Priority(-5).Valid())
}
