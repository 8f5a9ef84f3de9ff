package rules

import "errors"

var (
	// ErrRuleNotFound is returned when no rule exists for the given ID.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrMissingName is returned when storing a rule without a name.
	ErrMissingName = errors.New("rule name is required")

	// ErrNoActions is returned when storing a rule with no actions.
	ErrNoActions = errors.New("rule must declare at least one action")

	// ErrUnknownConditionKind is returned for a condition kind the engine
	// does not understand.
	ErrUnknownConditionKind = errors.New("unknown condition kind")

	// ErrUnknownActionKind is returned for an action kind the engine does
	// not understand.
	ErrUnknownActionKind = errors.New("unknown action kind")

	// ErrInvalidCron is returned when a schedule condition carries an
	// unparseable cron expression.
	ErrInvalidCron = errors.New("invalid cron expression")

	// ErrInvalidPattern is returned when an event-pattern condition has no
	// events, a non-positive count, or a non-positive window.
	ErrInvalidPattern = errors.New("invalid event pattern condition")

	// ErrUnknownTemplate is returned when a send action references a
	// template that does not exist.
	ErrUnknownTemplate = errors.New("referenced template not found")

	// ErrChannelNotSupported is returned when a send action requests a
	// channel the referenced template does not declare.
	ErrChannelNotSupported = errors.New("requested channel not supported by template")

	// ErrInvalidDuration is returned when a YAML duration is neither a
	// string nor an integer.
	ErrInvalidDuration = errors.New("invalid duration value")

	// ErrEscalationDepth is returned when escalate actions chain deeper
	// than the configured limit, which indicates a rule cycle.
	ErrEscalationDepth = errors.New("escalation depth limit exceeded")
)
