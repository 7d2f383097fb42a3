// Package auth provides JWT-based authentication for agent connections.
//
// Tokens are HS256-signed with the configured shared secret. The subject
// claim carries the agent id and an optional "workspaces" claim scopes the
// token to specific workspaces; an absent or empty claim allows all.
//
// Auth is optional: with no secret configured, connections are anonymous
// and client-declared identity is trusted as-is.
package auth
