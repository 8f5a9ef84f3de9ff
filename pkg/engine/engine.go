package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/rules"
	"github.com/dmitrymomot/notifykit/pkg/scorer"
	"github.com/dmitrymomot/notifykit/pkg/template"
)

// ProfileFunc resolves a recipient's personalization profile. Unknown
// recipients should return an empty profile rather than an error: scoring
// degrades gracefully without preferences.
type ProfileFunc func(ctx context.Context, recipientID string) (scorer.Profile, error)

// StaticProfiles builds a ProfileFunc from a fixed table, returning an empty
// profile for unknown recipients.
func StaticProfiles(table map[string]scorer.Profile) ProfileFunc {
	return func(ctx context.Context, recipientID string) (scorer.Profile, error) {
		p := table[recipientID]
		p.RecipientID = recipientID
		return p, nil
	}
}

// RenderFailure records one intent recipient whose notification could not be
// created, usually a template missing a required variable. Reported, never
// fatal: other recipients of the same event still get theirs.
type RenderFailure struct {
	RuleID      uuid.UUID
	TemplateID  uuid.UUID
	RecipientID string
	Err         error
}

func (f RenderFailure) Error() string {
	return fmt.Sprintf("rule %s template %s recipient %s: %v", f.RuleID, f.TemplateID, f.RecipientID, f.Err)
}

func (f RenderFailure) Unwrap() error { return f.Err }

// Accepted summarizes what an intake call produced. Acceptance is not
// delivery: the dispatcher picks the created notifications up asynchronously.
type Accepted struct {
	NotificationIDs []uuid.UUID
	ActionFailures  []rules.ActionFailure
	RenderFailures  []RenderFailure
}

// Engine is the intake and recipient-facing facade: it evaluates rules,
// renders templates, scores per recipient, and persists notifications for
// the dispatcher to pick up.
type Engine struct {
	notifications notification.Store
	templates     template.Store
	rules         *rules.Engine
	scorer        scorer.Scorer
	profiles      ProfileFunc
	defaultTTL    time.Duration
	log           *slog.Logger
	now           func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithScorer replaces the personalization scorer.
func WithScorer(s scorer.Scorer) Option {
	return func(e *Engine) {
		if s != nil {
			e.scorer = s
		}
	}
}

// WithProfiles sets the recipient profile source.
func WithProfiles(p ProfileFunc) Option {
	return func(e *Engine) {
		if p != nil {
			e.profiles = p
		}
	}
}

// WithDefaultTTL sets the expiry applied to created notifications. Zero
// disables expiry. Default is 30 days.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		e.defaultTTL = ttl
	}
}

// WithLogger sets the engine's logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// New creates the engine facade.
func New(notifications notification.Store, templates template.Store, ruleEngine *rules.Engine, opts ...Option) *Engine {
	e := &Engine{
		notifications: notifications,
		templates:     templates,
		rules:         ruleEngine,
		scorer:        scorer.NewRuleBased(),
		profiles:      StaticProfiles(nil),
		defaultTTL:    30 * 24 * time.Hour,
		log:           slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SubmitEvent evaluates event rules and persists the resulting notifications.
// The call is synchronous through rule evaluation and persistence but returns
// before any delivery happens.
func (e *Engine) SubmitEvent(ctx context.Context, name string, payload map[string]any, recipientIDs []string) (Accepted, error) {
	intents, actionFailures, err := e.rules.EvaluateEvent(ctx, rules.Event{
		Name:       name,
		Payload:    payload,
		Recipients: recipientIDs,
		At:         e.now(),
	})
	if err != nil {
		return Accepted{}, err
	}
	return e.materialize(ctx, intents, actionFailures)
}

// SubmitMetric evaluates metric-threshold rules for the sample.
func (e *Engine) SubmitMetric(ctx context.Context, name string, value float64) (Accepted, error) {
	intents, actionFailures, err := e.rules.EvaluateMetric(ctx, rules.MetricSample{
		Name:  name,
		Value: value,
		At:    e.now(),
	})
	if err != nil {
		return Accepted{}, err
	}
	return e.materialize(ctx, intents, actionFailures)
}

// Tick evaluates schedule rules against the given instant.
func (e *Engine) Tick(ctx context.Context, now time.Time) (Accepted, error) {
	intents, actionFailures, err := e.rules.EvaluateTick(ctx, now)
	if err != nil {
		return Accepted{}, err
	}
	return e.materialize(ctx, intents, actionFailures)
}

// materialize turns intents into persisted notifications: render once per
// intent, score per recipient, persist pending or scheduled.
func (e *Engine) materialize(ctx context.Context, intents []rules.Intent, actionFailures []rules.ActionFailure) (Accepted, error) {
	accepted := Accepted{ActionFailures: actionFailures}

	for _, intent := range intents {
		tmpl, err := e.templates.Get(ctx, intent.TemplateID)
		if err != nil {
			accepted.RenderFailures = append(accepted.RenderFailures, RenderFailure{
				RuleID: intent.RuleID, TemplateID: intent.TemplateID, Err: err,
			})
			continue
		}

		subject, body, err := tmpl.Render(stringifyPayload(intent.Payload))
		if err != nil {
			accepted.RenderFailures = append(accepted.RenderFailures, RenderFailure{
				RuleID: intent.RuleID, TemplateID: intent.TemplateID, Err: err,
			})
			continue
		}

		channels := intent.Channels
		if len(channels) == 0 {
			channels = tmpl.Channels
		}

		for _, recipientID := range intent.Recipients {
			n, err := e.createNotification(ctx, intent, tmpl, recipientID, subject, body, channels)
			if err != nil {
				accepted.RenderFailures = append(accepted.RenderFailures, RenderFailure{
					RuleID: intent.RuleID, TemplateID: intent.TemplateID,
					RecipientID: recipientID, Err: err,
				})
				continue
			}
			accepted.NotificationIDs = append(accepted.NotificationIDs, n.ID)
		}

		if len(intent.Recipients) > 0 {
			// referenced templates become immutable
			if err := e.templates.MarkReferenced(ctx, tmpl.ID); err != nil {
				e.log.WarnContext(ctx, "failed to freeze template",
					"template_id", tmpl.ID, "error", err)
			}
		}
	}
	return accepted, nil
}

func (e *Engine) createNotification(ctx context.Context, intent rules.Intent, tmpl *template.Template, recipientID, subject, body string, channels []notification.Channel) (*notification.Notification, error) {
	profile, err := e.profiles(ctx, recipientID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	priority := intent.Priority
	if priority == 0 {
		priority = notification.PriorityDefault
	}
	result := e.scorer.Score(profile, scorer.Draft{
		Type:     tmpl.Type,
		Priority: priority,
		Channels: channels,
	}, now)

	n := &notification.Notification{
		RecipientID: recipientID,
		Type:        tmpl.Type,
		Priority:    priority,
		Title:       subject,
		Body:        body,
		Payload:     intent.Payload,
		Channels:    result.ChannelOrder,
		Relevance:   result.Relevance,
		TemplateID:  tmpl.ID,
		RuleID:      intent.RuleID,
		Status:      notification.StatusPending,
		CreatedAt:   now,
	}
	if e.defaultTTL > 0 {
		expires := now.Add(e.defaultTTL)
		n.ExpiresAt = &expires
	}
	if result.OptimalTime.After(now) {
		n.Status = notification.StatusScheduled
		scheduled := result.OptimalTime
		n.ScheduledFor = &scheduled
	}

	if err := e.notifications.Create(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// stringifyPayload flattens event payload values into template variables.
func stringifyPayload(payload map[string]any) map[string]string {
	if len(payload) == 0 {
		return nil
	}
	vars := make(map[string]string, len(payload))
	for k, v := range payload {
		vars[k] = fmt.Sprint(v)
	}
	return vars
}

// ListForRecipient returns a recipient's notifications through the store
// filter.
func (e *Engine) ListForRecipient(ctx context.Context, recipientID string, f notification.Filter) ([]notification.Notification, error) {
	return e.notifications.ListForRecipient(ctx, recipientID, f)
}

// MarkRead records that the recipient saw the notification. Only delivered
// notifications can be read; ownership is enforced.
func (e *Engine) MarkRead(ctx context.Context, id uuid.UUID, recipientID string) error {
	return e.recipientTransition(ctx, id, recipientID,
		[]notification.Status{notification.StatusDelivered}, notification.StatusRead)
}

// MarkActedUpon records that the recipient acted on a read notification.
func (e *Engine) MarkActedUpon(ctx context.Context, id uuid.UUID, recipientID, action string) error {
	return e.recipientTransition(ctx, id, recipientID,
		[]notification.Status{notification.StatusRead}, notification.StatusActedUpon,
		notification.WithAction(action))
}

func (e *Engine) recipientTransition(ctx context.Context, id uuid.UUID, recipientID string, from []notification.Status, to notification.Status, opts ...notification.TransitionOption) error {
	n, err := e.notifications.Get(ctx, id)
	if err != nil {
		return err
	}
	if n.RecipientID != recipientID {
		return ErrNotOwner
	}

	ok, err := e.notifications.Transition(ctx, id, from, to, opts...)
	if err != nil {
		return err
	}
	if !ok {
		cur, err := e.notifications.Get(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status.Terminal() {
			return ErrAlreadyTerminal
		}
		return &notification.InvalidTransitionError{From: cur.Status, To: to}
	}
	return nil
}

// Cancel withdraws a notification that has not entered delivery yet.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID) error {
	ok, err := e.notifications.Transition(ctx, id,
		[]notification.Status{notification.StatusPending, notification.StatusScheduled},
		notification.StatusExpired)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotCancelable
	}
	return nil
}

// Resubmit clones a failed notification into a fresh pending record. The
// original keeps its status and attempt history as the audit trail.
func (e *Engine) Resubmit(ctx context.Context, id uuid.UUID) (*notification.Notification, error) {
	orig, err := e.notifications.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if orig.Status != notification.StatusFailed {
		return nil, ErrNotFailed
	}

	now := e.now()
	clone := &notification.Notification{
		RecipientID: orig.RecipientID,
		GroupID:     orig.GroupID,
		Type:        orig.Type,
		Priority:    orig.Priority,
		Title:       orig.Title,
		Body:        orig.Body,
		Payload:     orig.Payload,
		Channels:    orig.Channels,
		Relevance:   orig.Relevance,
		TemplateID:  orig.TemplateID,
		RuleID:      orig.RuleID,
		Status:      notification.StatusPending,
		CreatedAt:   now,
	}
	if e.defaultTTL > 0 {
		expires := now.Add(e.defaultTTL)
		clone.ExpiresAt = &expires
	}
	if err := e.notifications.Create(ctx, clone); err != nil {
		return nil, err
	}
	e.log.InfoContext(ctx, "notification resubmitted",
		"original_id", orig.ID, "new_id", clone.ID)
	return clone, nil
}
