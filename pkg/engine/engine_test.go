package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/rules"
	"github.com/dmitrymomot/notifykit/pkg/scorer"
	"github.com/dmitrymomot/notifykit/pkg/template"
)

type fixture struct {
	engine        *Engine
	notifications *notification.MemoryStore
	templates     *template.MemoryStore
	ruleStore     *rules.MemoryStore
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		notifications: notification.NewMemoryStore(),
		templates:     template.NewMemoryStore(),
		ruleStore:     rules.NewMemoryStore(),
	}
	f.engine = New(f.notifications, f.templates, rules.NewEngine(f.ruleStore), opts...)
	return f
}

func (f *fixture) addTemplate(t *testing.T, typ, subject, body string, required []string) uuid.UUID {
	t.Helper()
	tmpl := template.Template{
		ID:                uuid.New(),
		Type:              typ,
		Subject:           subject,
		Body:              body,
		RequiredVariables: required,
		Channels:          []notification.Channel{notification.ChannelInApp, notification.ChannelEmail},
	}
	require.NoError(t, f.templates.Put(context.Background(), tmpl))
	return tmpl.ID
}

func (f *fixture) addRule(t *testing.T, rule rules.Rule) rules.Rule {
	t.Helper()
	created, err := f.ruleStore.Create(context.Background(), rule)
	require.NoError(t, err)
	return created
}

func eventRule(name, event string, templateID uuid.UUID, priority notification.Priority) rules.Rule {
	return rules.Rule{
		Name:      name,
		Enabled:   true,
		Priority:  priority,
		Condition: rules.Condition{Kind: rules.ConditionEventMatch, Event: event},
		Actions: []rules.Action{{
			Kind:       rules.ActionSendTemplate,
			TemplateID: templateID,
			Channels:   []notification.Channel{notification.ChannelInApp},
		}},
	}
}

func TestEngine_SubmitEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("event produces a rendered pending notification", func(t *testing.T) {
		f := newFixture(t)
		tmplID := f.addTemplate(t, "milestone_completed",
			"Milestone {{milestone}} reached", "Congratulations on {{milestone}}!", []string{"milestone"})
		f.addRule(t, eventRule("on milestone", "milestone_completed", tmplID, notification.PriorityMedium))

		accepted, err := f.engine.SubmitEvent(ctx, "milestone_completed",
			map[string]any{"milestone": "100 days"}, []string{"u1"})
		require.NoError(t, err)
		assert.Empty(t, accepted.ActionFailures)
		assert.Empty(t, accepted.RenderFailures)
		require.Len(t, accepted.NotificationIDs, 1)

		n, err := f.notifications.Get(ctx, accepted.NotificationIDs[0])
		require.NoError(t, err)
		assert.Equal(t, notification.StatusPending, n.Status)
		assert.Equal(t, "Milestone 100 days reached", n.Title)
		assert.Equal(t, "Congratulations on 100 days!", n.Body)
		assert.Equal(t, "u1", n.RecipientID)
		assert.Equal(t, "milestone_completed", n.Type)
		assert.NotNil(t, n.ExpiresAt)
		assert.Greater(t, n.Relevance, 0.0)
	})

	t.Run("missing required variable reports, creates nothing", func(t *testing.T) {
		f := newFixture(t)
		tmplID := f.addTemplate(t, "order_shipped", "Order {{order_id}}", "On its way", []string{"order_id"})
		f.addRule(t, eventRule("on ship", "order_shipped", tmplID, notification.PriorityMedium))

		accepted, err := f.engine.SubmitEvent(ctx, "order_shipped", nil, []string{"u1"})
		require.NoError(t, err)
		assert.Empty(t, accepted.NotificationIDs)
		require.Len(t, accepted.RenderFailures, 1)

		var missing *template.MissingVariableError
		assert.ErrorAs(t, accepted.RenderFailures[0], &missing)
	})

	t.Run("one notification per recipient", func(t *testing.T) {
		f := newFixture(t)
		tmplID := f.addTemplate(t, "announcement", "News", "Big news", nil)
		f.addRule(t, eventRule("broadcast", "announce", tmplID, notification.PriorityLow))

		accepted, err := f.engine.SubmitEvent(ctx, "announce", nil, []string{"u1", "u2", "u3"})
		require.NoError(t, err)
		assert.Len(t, accepted.NotificationIDs, 3)
	})

	t.Run("referenced template becomes immutable", func(t *testing.T) {
		f := newFixture(t)
		tmplID := f.addTemplate(t, "welcome", "Hi", "Welcome", nil)
		f.addRule(t, eventRule("on join", "joined", tmplID, notification.PriorityMedium))

		_, err := f.engine.SubmitEvent(ctx, "joined", nil, []string{"u1"})
		require.NoError(t, err)

		err = f.templates.Put(ctx, template.Template{
			ID: tmplID, Type: "welcome", Body: "changed",
			Channels: []notification.Channel{notification.ChannelInApp},
		})
		assert.ErrorIs(t, err, template.ErrTemplateImmutable)
	})

	t.Run("no matching rule accepts nothing", func(t *testing.T) {
		f := newFixture(t)
		accepted, err := f.engine.SubmitEvent(ctx, "unheard_of", nil, []string{"u1"})
		require.NoError(t, err)
		assert.Empty(t, accepted.NotificationIDs)
	})
}

func TestEngine_QuietHoursScheduling(t *testing.T) {
	ctx := context.Background()
	quiet := &scorer.QuietHours{Start: 22, End: 8}
	f := newFixture(t, WithProfiles(StaticProfiles(map[string]scorer.Profile{
		"u1": {QuietHours: quiet},
	})))
	tmplID := f.addTemplate(t, "digest_ready", "Digest", "Your digest", nil)
	f.addRule(t, eventRule("digest", "digest_ready", tmplID, notification.PriorityLow))

	inQuiet := time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)
	f.engine.now = func() time.Time { return inQuiet }

	accepted, err := f.engine.SubmitEvent(ctx, "digest_ready", nil, []string{"u1"})
	require.NoError(t, err)
	require.Len(t, accepted.NotificationIDs, 1)

	n, err := f.notifications.Get(ctx, accepted.NotificationIDs[0])
	require.NoError(t, err)
	assert.Equal(t, notification.StatusScheduled, n.Status)
	require.NotNil(t, n.ScheduledFor)
	assert.Equal(t, time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC), *n.ScheduledFor)
}

func TestEngine_PatternScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tmplID := f.addTemplate(t, "security_alert",
		"Suspicious logins", "Multiple failed logins detected", nil)
	f.addRule(t, rules.Rule{
		Name:     "login burst",
		Enabled:  true,
		Priority: notification.PriorityHigh,
		Condition: rules.Condition{
			Kind:   rules.ConditionEventPattern,
			Events: []string{"login_failed"},
			Count:  3,
			Window: rules.Duration(time.Minute),
		},
		Actions: []rules.Action{{
			Kind:       rules.ActionSendTemplate,
			TemplateID: tmplID,
			Channels:   []notification.Channel{notification.ChannelInApp},
		}},
	})

	for i := 0; i < 2; i++ {
		accepted, err := f.engine.SubmitEvent(ctx, "login_failed", nil, []string{"u1"})
		require.NoError(t, err)
		assert.Empty(t, accepted.NotificationIDs, "occurrence %d must not fire", i+1)
	}

	accepted, err := f.engine.SubmitEvent(ctx, "login_failed", nil, []string{"u1"})
	require.NoError(t, err)
	require.Len(t, accepted.NotificationIDs, 1)

	n, err := f.notifications.Get(ctx, accepted.NotificationIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "security_alert", n.Type)
	assert.Equal(t, notification.PriorityHigh, n.Priority)
}

func TestEngine_EscalationScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tmplID := f.addTemplate(t, "incident_page", "Incident!", "Unacknowledged incident", nil)

	f.addRule(t, rules.Rule{
		Name:      "incident intake",
		Enabled:   true,
		Priority:  notification.PriorityMedium,
		Condition: rules.Condition{Kind: rules.ConditionEventMatch, Event: "incident_opened"},
		Actions:   []rules.Action{{Kind: rules.ActionEscalate, Event: "incident_unacked"}},
	})
	f.addRule(t, eventRule("page oncall", "incident_unacked", tmplID, notification.PriorityUrgent))

	accepted, err := f.engine.SubmitEvent(ctx, "incident_opened", nil, []string{"oncall"})
	require.NoError(t, err)
	require.Len(t, accepted.NotificationIDs, 1)

	n, err := f.notifications.Get(ctx, accepted.NotificationIDs[0])
	require.NoError(t, err)
	assert.Equal(t, notification.PriorityUrgent, n.Priority, "escalation raises priority")
}

func TestEngine_SubmitMetric(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tmplID := f.addTemplate(t, "disk_alert", "Disk almost full", "Usage at {{value}}", nil)
	f.addRule(t, rules.Rule{
		Name:     "disk usage",
		Enabled:  true,
		Priority: notification.PriorityCritical,
		Condition: rules.Condition{
			Kind: rules.ConditionMetricThreshold, Metric: "disk_used_pct",
			Op: rules.OpGreaterThanEqual, Threshold: 90,
		},
		Actions: []rules.Action{{
			Kind: rules.ActionSendTemplate, TemplateID: tmplID,
			Channels: []notification.Channel{notification.ChannelInApp},
		}},
		Recipients: []string{"ops"},
	})

	accepted, err := f.engine.SubmitMetric(ctx, "disk_used_pct", 85)
	require.NoError(t, err)
	assert.Empty(t, accepted.NotificationIDs)

	accepted, err = f.engine.SubmitMetric(ctx, "disk_used_pct", 93)
	require.NoError(t, err)
	require.Len(t, accepted.NotificationIDs, 1)

	n, err := f.notifications.Get(ctx, accepted.NotificationIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "Usage at 93", n.Body)
}

func TestEngine_RecipientOperations(t *testing.T) {
	ctx := context.Background()

	deliver := func(t *testing.T, f *fixture, id uuid.UUID) {
		t.Helper()
		for _, step := range []struct {
			from []notification.Status
			to   notification.Status
		}{
			{[]notification.Status{notification.StatusPending}, notification.StatusSent},
			{[]notification.Status{notification.StatusSent}, notification.StatusDelivered},
		} {
			ok, err := f.notifications.Transition(ctx, id, step.from, step.to)
			require.NoError(t, err)
			require.True(t, ok)
		}
	}

	submit := func(t *testing.T, f *fixture) uuid.UUID {
		t.Helper()
		tmplID := f.addTemplate(t, "note", "Note", "Body", nil)
		f.addRule(t, eventRule("note", "noted", tmplID, notification.PriorityMedium))
		accepted, err := f.engine.SubmitEvent(ctx, "noted", nil, []string{"u1"})
		require.NoError(t, err)
		require.Len(t, accepted.NotificationIDs, 1)
		return accepted.NotificationIDs[0]
	}

	t.Run("read then acted upon", func(t *testing.T) {
		f := newFixture(t)
		id := submit(t, f)
		deliver(t, f, id)

		require.NoError(t, f.engine.MarkRead(ctx, id, "u1"))
		require.NoError(t, f.engine.MarkActedUpon(ctx, id, "u1", "clicked_link"))

		n, err := f.notifications.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusActedUpon, n.Status)
		assert.Equal(t, "clicked_link", n.ActedAction)
		assert.NotNil(t, n.ReadAt)
		assert.NotNil(t, n.ActedUponAt)
	})

	t.Run("ownership enforced", func(t *testing.T) {
		f := newFixture(t)
		id := submit(t, f)
		deliver(t, f, id)

		assert.ErrorIs(t, f.engine.MarkRead(ctx, id, "intruder"), ErrNotOwner)
	})

	t.Run("read before delivery rejected", func(t *testing.T) {
		f := newFixture(t)
		id := submit(t, f)

		err := f.engine.MarkRead(ctx, id, "u1")
		var invalid *notification.InvalidTransitionError
		assert.ErrorAs(t, err, &invalid)
	})

	t.Run("acted upon on terminal notification rejected", func(t *testing.T) {
		f := newFixture(t)
		id := submit(t, f)
		require.NoError(t, f.engine.Cancel(ctx, id))

		assert.ErrorIs(t, f.engine.MarkActedUpon(ctx, id, "u1", "x"), ErrAlreadyTerminal)
	})

	t.Run("cancel rejected mid-flight", func(t *testing.T) {
		f := newFixture(t)
		id := submit(t, f)
		ok, err := f.notifications.Transition(ctx, id,
			[]notification.Status{notification.StatusPending}, notification.StatusSent)
		require.NoError(t, err)
		require.True(t, ok)

		assert.ErrorIs(t, f.engine.Cancel(ctx, id), ErrNotCancelable)
	})
}

func TestEngine_Resubmit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tmplID := f.addTemplate(t, "alert", "A", "B", nil)
	f.addRule(t, eventRule("alert", "alerted", tmplID, notification.PriorityHigh))

	accepted, err := f.engine.SubmitEvent(ctx, "alerted", nil, []string{"u1"})
	require.NoError(t, err)
	id := accepted.NotificationIDs[0]

	t.Run("non-failed rejected", func(t *testing.T) {
		_, err := f.engine.Resubmit(ctx, id)
		assert.ErrorIs(t, err, ErrNotFailed)
	})

	t.Run("failed clones into fresh pending", func(t *testing.T) {
		for _, step := range []struct {
			from []notification.Status
			to   notification.Status
		}{
			{[]notification.Status{notification.StatusPending}, notification.StatusSent},
			{[]notification.Status{notification.StatusSent}, notification.StatusFailed},
		} {
			ok, err := f.notifications.Transition(ctx, id, step.from, step.to)
			require.NoError(t, err)
			require.True(t, ok)
		}

		clone, err := f.engine.Resubmit(ctx, id)
		require.NoError(t, err)
		assert.NotEqual(t, id, clone.ID)
		assert.Equal(t, notification.StatusPending, clone.Status)
		assert.Equal(t, "u1", clone.RecipientID)

		orig, err := f.notifications.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusFailed, orig.Status, "audit trail untouched")
	})
}

func TestReaper_Sweep(t *testing.T) {
	ctx := context.Background()
	store := notification.NewMemoryStore()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	stale := &notification.Notification{RecipientID: "u1", Type: "old", ExpiresAt: &past}
	fresh := &notification.Notification{RecipientID: "u1", Type: "new", ExpiresAt: &future}
	eternal := &notification.Notification{RecipientID: "u1", Type: "keep"}
	require.NoError(t, store.Create(ctx, stale))
	require.NoError(t, store.Create(ctx, fresh))
	require.NoError(t, store.Create(ctx, eternal))

	r := NewReaper(store, time.Minute, nil)
	expired, err := r.Sweep(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	got, err := store.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusExpired, got.Status)

	got, err = store.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusPending, got.Status)
}

func TestReaper_ExpiresDeliveredButNotRead(t *testing.T) {
	ctx := context.Background()
	store := notification.NewMemoryStore()

	past := time.Now().Add(-time.Minute)
	delivered := &notification.Notification{
		RecipientID: "u1", Type: "seen",
		Status: notification.StatusDelivered, ExpiresAt: &past,
	}
	read := &notification.Notification{
		RecipientID: "u1", Type: "read",
		Status: notification.StatusRead, ExpiresAt: &past,
	}
	require.NoError(t, store.Create(ctx, delivered))
	require.NoError(t, store.Create(ctx, read))

	r := NewReaper(store, time.Minute, nil)
	expired, err := r.Sweep(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	got, err := store.Get(ctx, read.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusRead, got.Status, "read notifications are never reaped")
}
