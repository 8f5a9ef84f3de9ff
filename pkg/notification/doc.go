// Package notification defines the core domain model of the delivery engine:
// the notification record, its monotonic lifecycle graph, delivery attempts,
// and the Store contract that is the single source of truth for status
// transitions.
//
// # Lifecycle
//
// Status transitions follow a directed graph and are never re-opened once a
// terminal status (expired, failed, acted_upon) is reached:
//
//	pending   -> scheduled | sent | expired
//	scheduled -> sent | expired
//	sent      -> delivered | failed
//	delivered -> read | expired
//	read      -> acted_upon
//
// # Optimistic concurrency
//
// Store.Transition is conditional: it succeeds only when the current status
// is in the caller-supplied from set. Dispatch workers use it to claim due
// notifications, so two workers racing for the same record resolve to
// exactly one winner without any global lock:
//
//	ok, err := store.Transition(ctx, id,
//	    []notification.Status{notification.StatusPending, notification.StatusScheduled},
//	    notification.StatusSent)
//	if err != nil {
//	    // backend failure
//	}
//	if !ok {
//	    // another worker claimed it; move on
//	}
//
// # Implementations
//
// Three Store implementations ship with the package:
//
//   - MemoryStore: mutex-guarded maps for development and testing.
//   - RedisStore: JSON records with a due-time sorted set; the conditional
//     transition runs as a Lua script for atomicity.
//   - PostgresStore: relational schema (see migrations/) where the
//     conditional transition is a guarded UPDATE. Apply Migrate before use.
package notification
