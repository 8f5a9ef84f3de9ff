// Package analytics aggregates notification outcomes into periodic reports:
// counts by status, type, and channel, plus read latency for the closing
// window. Sweeps are read-only over the notification store and idempotent for
// a closed window.
package analytics
