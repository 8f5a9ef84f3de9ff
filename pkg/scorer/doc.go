// Package scorer decides per-recipient personalization for candidate
// notifications: a relevance score in [0,1], the preferred channel ordering,
// and the optimal delivery time.
//
// The Scorer contract is a pure function of its inputs so implementations
// can be swapped (rule-based, learned, or otherwise) without touching the
// delivery pipeline. The dispatcher treats OptimalTime as a hint: a time in
// the past means deliver immediately, a future time defers the notification
// as scheduled until due.
package scorer
