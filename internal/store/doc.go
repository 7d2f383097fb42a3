// Package store provides persistent archival storage for closed sessions
// using SQLite.
//
// # Role
//
// The store is an archive, not the working set. Live routing state lives
// in the session registry; the store only receives a durable copy when a
// session closes, and answers history queries for sessions that are no
// longer live. Nothing on the message hot path reads or blocks on it.
//
// # Schema
//
//	sessions(id PK, workspace_id, status, assigned_agent_id, agent_name,
//	         created_at, updated_at)
//	session_messages(session_id, id, seq, role, content, agent_name,
//	                 timestamp, PK(session_id, id))
//
// Transcript order is the explicit seq column, not timestamps, which may
// collide.
//
// # Idempotency
//
// ArchiveSession is an upsert in a single transaction keyed by session id.
// Archiving the same session twice converges to one record, so the
// coordinator's fire-and-forget archival needs no delivery guarantees.
//
// # SQLite Configuration
//
// WAL mode for concurrent reads, foreign keys on:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Use NewSQLiteStore(":memory:") in tests.
package store
