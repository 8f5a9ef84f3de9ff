// Package rules evaluates trigger conditions against events, metric samples,
// and clock ticks, and turns fired rules into notification intents.
//
// Four condition kinds are supported: event_match (event name equality),
// schedule (standard cron expression, driven by EvaluateTick), metric_threshold
// (comparison against the latest sample, firing only on the crossing edge),
// and event_pattern (N occurrences of watched events within a trailing window).
//
// Actions run in declared order and fail independently: a broken webhook call
// is collected as an ActionFailure while the remaining actions still execute.
// Escalate actions re-enter evaluation as a synthetic event, capped at a
// configurable depth to break rule cycles.
//
// The engine itself never renders or persists notifications. It returns
// Intent values and leaves the rest of the pipeline to its caller, which keeps
// evaluation cheap and side-effect free apart from log and webhook actions.
package rules
