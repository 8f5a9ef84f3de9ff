package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-z0-9_-]+`)

// Dev writes notifications as JSON files instead of sending them anywhere.
// It can stand in for any channel, which makes local development work without
// SMS, push, or email credentials.
type Dev struct {
	channel notification.Channel
	dir     string
}

// NewDev creates a development sender for the given channel writing to dir.
// The directory is created on first send.
func NewDev(channel notification.Channel, dir string) *Dev {
	return &Dev{channel: channel, dir: dir}
}

func (s *Dev) Channel() notification.Channel { return s.channel }

type devRecord struct {
	Timestamp   string         `json:"timestamp"`
	Channel     string         `json:"channel"`
	RecipientID string         `json:"recipient_id"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Payload     map[string]any `json:"payload,omitempty"`
}

func (s *Dev) Send(ctx context.Context, n notification.Notification) (notification.Outcome, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return notification.OutcomeTransientFailure, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	now := time.Now()
	data, err := json.MarshalIndent(devRecord{
		Timestamp:   now.Format(time.RFC3339),
		Channel:     string(s.channel),
		RecipientID: n.RecipientID,
		Type:        n.Type,
		Title:       n.Title,
		Body:        n.Body,
		Payload:     n.Payload,
	}, "", "  ")
	if err != nil {
		return notification.OutcomePermanentFailure, err
	}

	name := fmt.Sprintf("%s_%s_%s.json",
		now.Format("2006_01_02_150405"),
		s.channel,
		sanitizeFilename(n.Type))
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return notification.OutcomeTransientFailure, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return notification.OutcomeSuccess, nil
}

func sanitizeFilename(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = unsafeFilenameChars.ReplaceAllString(s, "_")
	if s == "" {
		return "notification"
	}
	return s
}
