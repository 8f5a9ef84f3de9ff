package notification

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRecord(t *testing.T) {
	base := Notification{
		ID:          uuid.New(),
		RecipientID: "u1",
		Type:        "alert",
		Priority:    PriorityHigh,
		Title:       "Disk almost full",
		Body:        "93.7% used",
		Payload: map[string]any{
			"tags":  []any{},
			"ratio": 0.937,
		},
		Channels:  []Channel{ChannelEmail},
		Status:    StatusPending,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	raw, err := json.Marshal(&base)
	require.NoError(t, err)

	t.Run("record blob round-trips untouched", func(t *testing.T) {
		n, err := decodeRecord(map[string]string{
			"record": string(raw),
			"status": string(StatusPending),
		})
		require.NoError(t, err)
		assert.Equal(t, base.ID, n.ID)
		assert.Equal(t, StatusPending, n.Status)

		// Mutable fields live outside the blob, so the payload bytes are
		// exactly what Create wrote: an empty array stays an array and
		// floats keep their encoding.
		assert.Equal(t, []any{}, n.Payload["tags"])
		assert.Equal(t, 0.937, n.Payload["ratio"])
	})

	t.Run("scalar fields overlay the blob", func(t *testing.T) {
		readAt := time.Now().UTC().Truncate(time.Millisecond)
		actedAt := readAt.Add(time.Minute)
		n, err := decodeRecord(map[string]string{
			"record":        string(raw),
			"status":        string(StatusActedUpon),
			"read_at":       readAt.Format(time.RFC3339Nano),
			"acted_upon_at": actedAt.Format(time.RFC3339Nano),
			"acted_action":  "clicked",
		})
		require.NoError(t, err)
		assert.Equal(t, StatusActedUpon, n.Status)
		require.NotNil(t, n.ReadAt)
		assert.True(t, n.ReadAt.Equal(readAt))
		require.NotNil(t, n.ActedUponAt)
		assert.True(t, n.ActedUponAt.Equal(actedAt))
		assert.Equal(t, "clicked", n.ActedAction)
	})

	t.Run("corrupt timestamp rejected", func(t *testing.T) {
		_, err := decodeRecord(map[string]string{
			"record":  string(raw),
			"status":  string(StatusRead),
			"read_at": "not a timestamp",
		})
		assert.Error(t, err)
	})
}
