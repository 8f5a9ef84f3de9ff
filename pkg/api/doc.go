// Package api exposes the notification engine over HTTP: event and metric
// intake, the recipient inbox, rule management, and analytics reports.
// Responses are JSON; domain errors map to 404 (missing), 403 (ownership),
// 409 (lifecycle conflicts), and 422 (validation).
package api
