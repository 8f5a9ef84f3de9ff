// Package template provides named message templates for the notification
// engine. A template pairs a subject/body pattern with the notification type
// it serves, the variables it requires, and the channels it is compatible
// with.
//
// Rendering is literal substitution only: {{name}} placeholders are replaced
// with supplied string values and nothing in the template text ever executes.
// Omitting a required variable fails with MissingVariableError; requesting a
// channel the template does not declare fails with IncompatibleChannelError.
//
// Templates referenced by a sent notification are frozen - new versions are
// stored under new IDs so the audit trail of what was actually sent stays
// intact.
package template
