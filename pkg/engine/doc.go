// Package engine is the facade over the notification pipeline's intake side.
//
// Events, metric samples, and clock ticks enter through SubmitEvent,
// SubmitMetric, and Tick. Each call evaluates the rule engine, renders the
// referenced templates with the event payload, scores the result per
// recipient, and persists pending or scheduled notifications for the
// dispatcher. Intake is acceptance, never delivery: the returned Accepted
// value lists created notification IDs and any per-action or per-recipient
// failures, all of which are isolated from each other.
//
// The recipient-facing side (ListForRecipient, MarkRead, MarkActedUpon)
// enforces ownership and the lifecycle graph; Cancel and Resubmit are the
// operator paths. Reaper expires unread notifications past their deadline.
package engine
