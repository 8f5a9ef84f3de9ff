package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Intent is the outcome of a fired send_template action: a request to create
// a notification for each listed recipient. The engine only decides; rendering
// and persistence happen downstream.
type Intent struct {
	RuleID     uuid.UUID
	RuleName   string
	TemplateID uuid.UUID
	Channels   []notification.Channel
	Priority   notification.Priority
	Recipients []string
	Event      string
	Payload    map[string]any
}

// ActionFailure records one action that could not execute. Failures are
// collected, not propagated, so a broken webhook never suppresses the
// send_template action declared after it.
type ActionFailure struct {
	RuleID uuid.UUID
	Index  int
	Kind   ActionKind
	Err    error
}

func (f ActionFailure) Error() string {
	return fmt.Sprintf("rule %s action %d (%s): %v", f.RuleID, f.Index, f.Kind, f.Err)
}

func (f ActionFailure) Unwrap() error { return f.Err }

// WebhookCaller posts a fired-rule payload to an external URL. Injected so the
// engine stays transport-agnostic and tests can observe calls.
type WebhookCaller func(ctx context.Context, url string, payload map[string]any) error

// Engine evaluates rules against events, metric samples, and clock ticks.
// It is safe for concurrent use.
type Engine struct {
	store    Store
	log      *slog.Logger
	webhook  WebhookCaller
	maxDepth int

	mu            sync.Mutex
	schedules     map[uuid.UUID]cron.Schedule
	lastFire      map[uuid.UUID]time.Time
	lastSatisfied map[uuid.UUID]bool
	patterns      map[uuid.UUID]*patternBuffer
}

// Option configures an Engine.
type Option func(*Engine)

// WithEngineLogger sets the logger used for log actions and internal warnings.
func WithEngineLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithWebhookCaller sets the transport for call_webhook actions. Without one,
// call_webhook actions fail with ErrUnknownActionKind semantics: they are
// recorded as failures and skipped.
func WithWebhookCaller(caller WebhookCaller) Option {
	return func(e *Engine) {
		e.webhook = caller
	}
}

// WithMaxEscalationDepth caps how deep escalate actions may chain before the
// engine assumes a cycle. Default is 5.
func WithMaxEscalationDepth(depth int) Option {
	return func(e *Engine) {
		if depth > 0 {
			e.maxDepth = depth
		}
	}
}

// NewEngine creates a rule engine backed by the given store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		log:           slog.Default(),
		maxDepth:      5,
		schedules:     make(map[uuid.UUID]cron.Schedule),
		lastFire:      make(map[uuid.UUID]time.Time),
		lastSatisfied: make(map[uuid.UUID]bool),
		patterns:      make(map[uuid.UUID]*patternBuffer),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluateEvent runs the event against every enabled rule with an event_match
// or event_pattern condition. It returns the intents of all fired rules plus
// any per-action failures; the error is reserved for store access problems.
func (e *Engine) EvaluateEvent(ctx context.Context, ev Event) ([]Intent, []ActionFailure, error) {
	return e.evaluateEvent(ctx, ev, 0)
}

func (e *Engine) evaluateEvent(ctx context.Context, ev Event, depth int) ([]Intent, []ActionFailure, error) {
	enabled, err := e.store.ListEnabled(ctx)
	if err != nil {
		return nil, nil, err
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	var (
		intents  []Intent
		failures []ActionFailure
	)
	for _, rule := range enabled {
		fired := false
		switch rule.Condition.Kind {
		case ConditionEventMatch:
			fired = rule.Condition.Event == ev.Name
		case ConditionEventPattern:
			if rule.Condition.matchesEvent(ev.Name) {
				fired = e.observePattern(rule, ev.At)
			}
		}
		if !fired {
			continue
		}
		in, fa := e.execute(ctx, rule, ev, depth)
		intents = append(intents, in...)
		failures = append(failures, fa...)
	}
	return intents, failures, nil
}

// EvaluateMetric runs the sample against every enabled metric_threshold rule.
// A rule fires on the crossing edge: the sample satisfies the comparison and
// the previous sample for that rule did not. A continuously breached metric
// therefore produces one firing, not one per sample.
func (e *Engine) EvaluateMetric(ctx context.Context, sample MetricSample) ([]Intent, []ActionFailure, error) {
	enabled, err := e.store.ListEnabled(ctx)
	if err != nil {
		return nil, nil, err
	}
	if sample.At.IsZero() {
		sample.At = time.Now()
	}

	var (
		intents  []Intent
		failures []ActionFailure
	)
	for _, rule := range enabled {
		cond := rule.Condition
		if cond.Kind != ConditionMetricThreshold || cond.Metric != sample.Name {
			continue
		}
		satisfied := cond.Op.Compare(sample.Value, cond.Threshold)
		if !e.crossed(rule.ID, satisfied) {
			continue
		}
		ev := Event{
			Name:    "metric:" + sample.Name,
			Payload: map[string]any{"metric": sample.Name, "value": sample.Value},
			At:      sample.At,
		}
		in, fa := e.execute(ctx, rule, ev, 0)
		intents = append(intents, in...)
		failures = append(failures, fa...)
	}
	return intents, failures, nil
}

// EvaluateTick fires every enabled schedule rule whose cron expression has
// elapsed since its last firing. Schedules are driven entirely by the caller's
// tick cadence; a tick coarser than the cron step coalesces missed runs into
// one firing.
func (e *Engine) EvaluateTick(ctx context.Context, now time.Time) ([]Intent, []ActionFailure, error) {
	enabled, err := e.store.ListEnabled(ctx)
	if err != nil {
		return nil, nil, err
	}

	var (
		intents  []Intent
		failures []ActionFailure
	)
	for _, rule := range enabled {
		if rule.Condition.Kind != ConditionSchedule {
			continue
		}
		due, err := e.scheduleDue(rule, now)
		if err != nil {
			failures = append(failures, ActionFailure{RuleID: rule.ID, Index: -1, Err: err})
			continue
		}
		if !due {
			continue
		}
		ev := Event{Name: "schedule:" + rule.Name, At: now}
		in, fa := e.execute(ctx, rule, ev, 0)
		intents = append(intents, in...)
		failures = append(failures, fa...)
	}
	return intents, failures, nil
}

// execute runs the rule's actions in order, isolating each failure.
func (e *Engine) execute(ctx context.Context, rule Rule, ev Event, depth int) ([]Intent, []ActionFailure) {
	var (
		intents  []Intent
		failures []ActionFailure
	)
	for i, action := range rule.Actions {
		switch action.Kind {
		case ActionSendTemplate:
			recipients := rule.Recipients
			if len(ev.Recipients) > 0 {
				recipients = ev.Recipients
			}
			priority := action.Priority
			if priority == 0 {
				priority = rule.Priority
			}
			intents = append(intents, Intent{
				RuleID:     rule.ID,
				RuleName:   rule.Name,
				TemplateID: action.TemplateID,
				Channels:   action.Channels,
				Priority:   priority,
				Recipients: recipients,
				Event:      ev.Name,
				Payload:    ev.Payload,
			})

		case ActionEscalate:
			if depth+1 >= e.maxDepth {
				failures = append(failures, ActionFailure{
					RuleID: rule.ID, Index: i, Kind: action.Kind, Err: ErrEscalationDepth,
				})
				continue
			}
			esc := Event{
				Name:       action.Event,
				Payload:    ev.Payload,
				Recipients: ev.Recipients,
				At:         ev.At,
			}
			in, fa, err := e.evaluateEvent(ctx, esc, depth+1)
			if err != nil {
				failures = append(failures, ActionFailure{RuleID: rule.ID, Index: i, Kind: action.Kind, Err: err})
				continue
			}
			intents = append(intents, in...)
			failures = append(failures, fa...)

		case ActionLog:
			e.log.InfoContext(ctx, "rule fired",
				"rule_id", rule.ID,
				"rule_name", rule.Name,
				"event", ev.Name,
				"message", action.Message,
			)

		case ActionCallWebhook:
			if e.webhook == nil {
				failures = append(failures, ActionFailure{
					RuleID: rule.ID, Index: i, Kind: action.Kind,
					Err: fmt.Errorf("no webhook caller configured"),
				})
				continue
			}
			payload := map[string]any{
				"rule_id":   rule.ID.String(),
				"rule_name": rule.Name,
				"event":     ev.Name,
				"payload":   ev.Payload,
				"fired_at":  ev.At,
			}
			if err := e.webhook(ctx, action.URL, payload); err != nil {
				failures = append(failures, ActionFailure{RuleID: rule.ID, Index: i, Kind: action.Kind, Err: err})
			}

		default:
			failures = append(failures, ActionFailure{
				RuleID: rule.ID, Index: i, Kind: action.Kind, Err: ErrUnknownActionKind,
			})
		}
	}
	return intents, failures
}

// observePattern records one occurrence for an event_pattern rule and reports
// whether the pattern completed. The buffer is rebuilt when the rule's count
// or window changed since it was created.
func (e *Engine) observePattern(rule Rule, at time.Time) bool {
	e.mu.Lock()
	buf, ok := e.patterns[rule.ID]
	if !ok || buf.need != rule.Condition.Count || buf.window != rule.Condition.Window.StdDuration() {
		buf = newPatternBuffer(rule.Condition.Count, rule.Condition.Window.StdDuration())
		e.patterns[rule.ID] = buf
	}
	e.mu.Unlock()
	return buf.observe(at)
}

// crossed updates the satisfaction state for a threshold rule and reports
// whether this sample is the false-to-true transition.
func (e *Engine) crossed(ruleID uuid.UUID, satisfied bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.lastSatisfied[ruleID]
	e.lastSatisfied[ruleID] = satisfied
	return satisfied && !prev
}

// scheduleDue parses (and caches) the rule's cron expression and reports
// whether a scheduled run falls at or before now since the last firing.
// The first observation of a rule anchors its schedule at now, so a freshly
// registered daily rule fires tomorrow rather than immediately.
func (e *Engine) scheduleDue(rule Rule, now time.Time) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sched, ok := e.schedules[rule.ID]
	if !ok {
		parsed, err := cron.ParseStandard(rule.Condition.Cron)
		if err != nil {
			return false, fmt.Errorf("%w: %q: %v", ErrInvalidCron, rule.Condition.Cron, err)
		}
		sched = parsed
		e.schedules[rule.ID] = sched
		e.lastFire[rule.ID] = now
		return false, nil
	}

	if next := sched.Next(e.lastFire[rule.ID]); !next.After(now) {
		e.lastFire[rule.ID] = now
		return true, nil
	}
	return false, nil
}
