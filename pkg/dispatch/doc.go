// Package dispatch moves due notifications through their channel order until
// one delivery succeeds or every channel gives up.
//
// The dispatcher claims a notification by conditionally swapping its status
// from pending/scheduled to sent; exactly one concurrent worker wins the swap,
// so no locking beyond the store's transition is needed. Each channel gets up
// to a configurable number of attempts with exponential backoff between
// transient failures; a permanent failure moves straight to the next channel.
// The first successful channel settles the notification as delivered, and a
// full exhaustion settles it as failed. Every attempt is recorded against the
// notification regardless of outcome.
//
// Worker is the polling front end: it lists due notifications and fans them
// out to the dispatcher on a bounded goroutine pool with graceful shutdown.
package dispatch
