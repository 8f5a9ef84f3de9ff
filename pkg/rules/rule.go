package rules

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// ConditionKind identifies what triggers a rule.
type ConditionKind string

const (
	// ConditionEventMatch fires when an incoming event name equals the
	// configured event name.
	ConditionEventMatch ConditionKind = "event_match"
	// ConditionSchedule fires when a cron schedule elapses, driven by the
	// engine tick rather than an internal timer.
	ConditionSchedule ConditionKind = "schedule"
	// ConditionMetricThreshold fires when the latest metric sample crosses
	// the configured comparison. Only the latest sample is consulted, so
	// evaluation stays O(1).
	ConditionMetricThreshold ConditionKind = "metric_threshold"
	// ConditionEventPattern fires when a set of event names occurs at
	// least Count times within a trailing window.
	ConditionEventPattern ConditionKind = "event_pattern"
)

// CompareOp is the comparison operator for metric-threshold conditions.
type CompareOp string

const (
	OpGreaterThan      CompareOp = "gt"
	OpGreaterThanEqual CompareOp = "gte"
	OpLessThan         CompareOp = "lt"
	OpLessThanEqual    CompareOp = "lte"
	OpEqual            CompareOp = "eq"
)

// Compare applies the operator to value against threshold.
func (op CompareOp) Compare(value, threshold float64) bool {
	switch op {
	case OpGreaterThan:
		return value > threshold
	case OpGreaterThanEqual:
		return value >= threshold
	case OpLessThan:
		return value < threshold
	case OpLessThanEqual:
		return value <= threshold
	case OpEqual:
		return value == threshold
	}
	return false
}

// Condition is the trigger of a rule. Exactly one kind is active; only the
// fields relevant to that kind are read.
type Condition struct {
	Kind ConditionKind `json:"kind" yaml:"kind"`

	// event_match
	Event string `json:"event,omitempty" yaml:"event,omitempty"`

	// schedule
	Cron string `json:"cron,omitempty" yaml:"cron,omitempty"`

	// metric_threshold
	Metric    string    `json:"metric,omitempty" yaml:"metric,omitempty"`
	Op        CompareOp `json:"op,omitempty" yaml:"op,omitempty"`
	Threshold float64   `json:"threshold,omitempty" yaml:"threshold,omitempty"`

	// event_pattern
	Events []string `json:"events,omitempty" yaml:"events,omitempty"`
	Count  int      `json:"count,omitempty" yaml:"count,omitempty"`
	Window Duration `json:"window,omitempty" yaml:"window,omitempty"`
}

// ActionKind identifies what a fired rule does.
type ActionKind string

const (
	ActionSendTemplate ActionKind = "send_template"
	ActionEscalate     ActionKind = "escalate"
	ActionLog          ActionKind = "log"
	ActionCallWebhook  ActionKind = "call_webhook"
)

// Action is one step executed when a rule fires. Actions run in declared
// order; a failure in one never blocks the rest.
type Action struct {
	Kind ActionKind `json:"kind" yaml:"kind"`

	// send_template
	TemplateID uuid.UUID              `json:"template_id,omitempty" yaml:"template_id,omitempty"`
	Channels   []notification.Channel `json:"channels,omitempty" yaml:"channels,omitempty"`
	Priority   notification.Priority  `json:"priority,omitempty" yaml:"priority,omitempty"`

	// escalate
	Event string `json:"event,omitempty" yaml:"event,omitempty"`

	// log
	Message string `json:"message,omitempty" yaml:"message,omitempty"`

	// call_webhook
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Rule pairs a condition with an ordered action list. Rules are evaluated
// independently; several rules may fire for the same input and each produces
// its own intents with no cross-rule deduplication.
type Rule struct {
	ID         uuid.UUID             `json:"id" yaml:"id"`
	Name       string                `json:"name" yaml:"name"`
	Condition  Condition             `json:"condition" yaml:"condition"`
	Actions    []Action              `json:"actions" yaml:"actions"`
	Recipients []string              `json:"recipients,omitempty" yaml:"recipients,omitempty"`
	Enabled    bool                  `json:"enabled" yaml:"enabled"`
	Priority   notification.Priority `json:"priority" yaml:"priority"`
	CreatedAt  time.Time             `json:"created_at" yaml:"-"`
	UpdatedAt  time.Time             `json:"updated_at" yaml:"-"`
}

// Duration wraps time.Duration with YAML/JSON string parsing ("60s", "5m").
type Duration time.Duration

// StdDuration returns the wrapped time.Duration.
func (d Duration) StdDuration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalYAML parses either a duration string or an integer nanosecond count.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(time.Duration(v))
	default:
		return ErrInvalidDuration
	}
	return nil
}

// MarshalYAML renders the duration in its string form.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}
