package batch

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks a batch through its release.
type Status string

const (
	// StatusPending means the batch waits for its release time.
	StatusPending Status = "pending"
	// StatusProcessing means members are being handed to the dispatcher.
	StatusProcessing Status = "processing"
	// StatusCompleted means every member was processed. Individual member
	// failures do not demote a completed batch; they live in Results.
	StatusCompleted Status = "completed"
	// StatusFailed means processing could not begin at all.
	StatusFailed Status = "failed"
)

// MemberResult records the fate of one batch member.
type MemberResult struct {
	NotificationID uuid.UUID `json:"notification_id"`
	Delivered      bool      `json:"delivered"`
	Error          string    `json:"error,omitempty"`
}

// Batch groups pending notifications for a coordinated release, typically a
// digest of low-priority items held until a quieter moment.
type Batch struct {
	ID           uuid.UUID      `json:"id"`
	Name         string         `json:"name"`
	MemberIDs    []uuid.UUID    `json:"member_ids"`
	ScheduledFor time.Time      `json:"scheduled_for"`
	Status       Status         `json:"status"`
	Results      []MemberResult `json:"results,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	ReleasedAt   *time.Time     `json:"released_at,omitempty"`
}
