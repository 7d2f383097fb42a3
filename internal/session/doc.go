// Package session holds the authoritative in-memory session state and the
// coordinator that mutates it.
//
// # State Machine
//
// A session moves through four statuses:
//
//	bot -> pending -> in_progress -> closed
//
// closed is terminal and reachable from any non-terminal status. pending
// -> pending is allowed (repeated handoff requests are idempotent); an
// in_progress session never moves back to pending.
//
// # Components
//
//   - Registry: id -> *Session map, get-or-create plus snapshot reads
//   - Coordinator: validates intents and owns every status/history mutation
//   - Session: one conversation; a mutex guards status and transcript
//
// # Concurrency
//
// The per-session mutex is the unit of mutual exclusion. Claim checks and
// sets status under it, so of N concurrent claims exactly one observes
// pending and wins; every other claim returns ErrNotPending. Dashboard
// reads take snapshots and are eventually consistent by design.
//
// # Collaborators
//
// The Coordinator calls its Archiver when a session closes and its
// Notifier when a handoff escalates. Both are fire-and-forget on detached
// timeout contexts: a slow store or webhook can never block or fail a
// state transition.
//
// Message appends are idempotent on message id via a TTL seen-cache, so
// transport-level redelivery cannot duplicate transcript entries.
package session
