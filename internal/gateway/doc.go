// Package gateway orchestrates the relay-gateway server components.
//
// # Overview
//
// The gateway package is the central coordinator of the relay-gateway
// server. It owns the websocket transport, the connection registry, the
// session coordinator, the room router, and the HTTP surface for health
// and read-only queries.
//
// # Gateway Struct
//
// The Gateway struct is the main entry point:
//
//	type Gateway struct {
//	    config      *config.Config
//	    sessions    *session.Registry
//	    coordinator *session.Coordinator
//	    conns       *conn.Registry
//	    router      *Router
//	    store       store.Store
//	    verifier    *auth.JWTVerifier
//	    httpServer  *http.Server
//	}
//
// # Websocket Protocol
//
// Clients connect to /ws and exchange JSON envelopes:
//
//	{"event": "chat_message", "data": {"sessionId": "...", "message": {...}}}
//
// Inbound events: agent_info, join_session, join_agent_dashboard,
// reconnect, heartbeat_response, bot_control, start_handoff, chat_message,
// claim_session, close_session.
//
// Outbound events: heartbeat, session_pending, pending_sessions,
// chat_message, claim_result, session_claimed, session_closed, bot_control.
//
// Malformed or unknown events are dropped at the decode boundary without
// touching state; a bad frame never tears the connection down.
//
// # Rooms
//
// Broadcasts are room-scoped. A session room fans out to everyone viewing
// one conversation; a dashboard room fans out to every agent watching a
// workspace queue. The lifecycle handlers in this package are the only
// code that adds or removes memberships; the Router only reads them.
//
// Sends are fire-and-forget with a 64-event per-connection buffer. A slow
// consumer misses events rather than stalling the room.
//
// # HTTP API
//
// The gateway exposes HTTP endpoints in api.go:
//
//   - GET /api/workspaces/{id}/sessions - List live sessions, ?status= filter
//   - GET /api/sessions/{id}/history - Transcript, live or archived
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check (store ping)
//
// # Lifecycle
//
// Start the gateway:
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx) // blocks until ctx is canceled
//
// Run shuts down gracefully when the context is canceled.
//
// # Key Files
//
//   - gateway.go: Gateway struct, initialization, Run/Shutdown
//   - socket.go: Websocket upgrade, read/write loops, heartbeat
//   - lifecycle.go: Event dispatch and room membership management
//   - router.go: Room-scoped broadcast fanout
//   - events.go: Outbound envelope builders
//   - api.go: Read-only HTTP handlers
package gateway
