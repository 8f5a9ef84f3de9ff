package rules

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

func TestMemoryStore_CRUD(t *testing.T) {
	ctx := context.Background()

	t.Run("create assigns id and timestamps", func(t *testing.T) {
		store := NewMemoryStore()
		created := mustCreate(t, store, sendRule("r1", "ev"))
		assert.NotEqual(t, uuid.Nil, created.ID)
		assert.False(t, created.CreatedAt.IsZero())

		got, err := store.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "r1", got.Name)
	})

	t.Run("get returns a copy", func(t *testing.T) {
		store := NewMemoryStore()
		created := mustCreate(t, store, sendRule("r1", "ev"))

		got, err := store.Get(ctx, created.ID)
		require.NoError(t, err)
		got.Actions[0].Kind = ActionLog
		got.Recipients[0] = "mutated"

		again, err := store.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, ActionSendTemplate, again.Actions[0].Kind)
		assert.Equal(t, "ops", again.Recipients[0])
	})

	t.Run("update preserves creation time", func(t *testing.T) {
		store := NewMemoryStore()
		created := mustCreate(t, store, sendRule("r1", "ev"))

		created.Name = "renamed"
		updated, err := store.Update(ctx, created)
		require.NoError(t, err)
		assert.Equal(t, "renamed", updated.Name)
		assert.Equal(t, created.CreatedAt.Truncate(time.Millisecond), updated.CreatedAt.Truncate(time.Millisecond))
	})

	t.Run("update unknown rule", func(t *testing.T) {
		store := NewMemoryStore()
		rule := sendRule("ghost", "ev")
		rule.ID = uuid.New()
		_, err := store.Update(ctx, rule)
		assert.ErrorIs(t, err, ErrRuleNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		store := NewMemoryStore()
		created := mustCreate(t, store, sendRule("r1", "ev"))
		require.NoError(t, store.Delete(ctx, created.ID))

		_, err := store.Get(ctx, created.ID)
		assert.ErrorIs(t, err, ErrRuleNotFound)
		assert.ErrorIs(t, store.Delete(ctx, created.ID), ErrRuleNotFound)
	})
}

func TestMemoryStore_Validation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	tests := []struct {
		name string
		rule Rule
		want error
	}{
		{
			name: "missing name",
			rule: Rule{Condition: Condition{Kind: ConditionEventMatch}, Actions: []Action{{Kind: ActionLog}}},
			want: ErrMissingName,
		},
		{
			name: "no actions",
			rule: Rule{Name: "r", Condition: Condition{Kind: ConditionEventMatch}},
			want: ErrNoActions,
		},
		{
			name: "unknown condition kind",
			rule: Rule{Name: "r", Condition: Condition{Kind: "telepathy"}, Actions: []Action{{Kind: ActionLog}}},
			want: ErrUnknownConditionKind,
		},
		{
			name: "unknown action kind",
			rule: Rule{Name: "r", Condition: Condition{Kind: ConditionEventMatch}, Actions: []Action{{Kind: "explode"}}},
			want: ErrUnknownActionKind,
		},
		{
			name: "pattern without events",
			rule: Rule{Name: "r", Condition: Condition{Kind: ConditionEventPattern, Count: 3, Window: Duration(time.Minute)}, Actions: []Action{{Kind: ActionLog}}},
			want: ErrInvalidPattern,
		},
		{
			name: "pattern with zero count",
			rule: Rule{Name: "r", Condition: Condition{Kind: ConditionEventPattern, Events: []string{"e"}, Window: Duration(time.Minute)}, Actions: []Action{{Kind: ActionLog}}},
			want: ErrInvalidPattern,
		},
		{
			name: "pattern with zero window",
			rule: Rule{Name: "r", Condition: Condition{Kind: ConditionEventPattern, Events: []string{"e"}, Count: 3}, Actions: []Action{{Kind: ActionLog}}},
			want: ErrInvalidPattern,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Create(ctx, tt.rule)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMemoryStore_ListEnabled(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first := mustCreate(t, store, sendRule("enabled one", "a"))
	disabled := sendRule("disabled one", "b")
	disabled.Enabled = false
	mustCreate(t, store, disabled)

	enabled, err := store.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, first.ID, enabled[0].ID)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryStore_ListOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	low := sendRule("low", "ev")
	low.Priority = notification.PriorityLow
	mustCreate(t, store, low)
	urgent := sendRule("urgent", "ev")
	urgent.Priority = notification.PriorityUrgent
	mustCreate(t, store, urgent)
	medium := sendRule("medium", "ev")
	medium.Priority = notification.PriorityMedium
	mustCreate(t, store, medium)

	enabled, err := store.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 3)
	assert.Equal(t, "urgent", enabled[0].Name, "highest priority first despite later creation")
	assert.Equal(t, "medium", enabled[1].Name)
	assert.Equal(t, "low", enabled[2].Name)
}

func TestMemoryStore_SetEnabled(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	created := mustCreate(t, store, sendRule("r1", "ev"))

	require.NoError(t, store.SetEnabled(ctx, created.ID, false))
	enabled, err := store.ListEnabled(ctx)
	require.NoError(t, err)
	assert.Empty(t, enabled)

	require.NoError(t, store.SetEnabled(ctx, created.ID, true))
	enabled, err = store.ListEnabled(ctx)
	require.NoError(t, err)
	assert.Len(t, enabled, 1)

	assert.ErrorIs(t, store.SetEnabled(ctx, uuid.New(), true), ErrRuleNotFound)
}

func TestMemoryStore_PriorityDefaults(t *testing.T) {
	store := NewMemoryStore()
	rule := sendRule("r", "ev")
	rule.Priority = notification.PriorityCritical
	created := mustCreate(t, store, rule)
	assert.Equal(t, notification.PriorityCritical, created.Priority)
}
