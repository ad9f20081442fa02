// Package broadcast implements the in-process real-time fan-out layer:
// a per-channel connection registry, the bidirectional connection↔group
// index, emission throttling, a per-connection error-rate circuit breaker,
// the publish coordinator used by event producers, and the per-connection
// channel session that orchestrates lifecycle and client commands.
//
// All state is process-local and scoped to process lifetime. Components are
// individually thread-safe; reads hand out snapshots so dispatch never holds
// a lock across I/O.
package broadcast
