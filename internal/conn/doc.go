// Package conn tracks live connections: their declared identity, their
// transport senders, and their room memberships.
//
// The registry is deliberately dumb. It never decides who may join a room;
// the gateway's lifecycle handlers do that and the registry just records
// the outcome. All operations on unknown connection ids are no-ops, which
// makes disconnect cleanup idempotent and race-free against late events.
//
// Identity is entirely client-declared and reconstructed on reconnect from
// the client's own announcements; the server keeps no cross-restart memory
// of connections.
package conn
