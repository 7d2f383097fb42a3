// ABOUTME: Room router - fans a domain event out to the right broadcast group
// ABOUTME: Read-only over the registries; delivery is at-most-once, never retried

package gateway

import (
	"log/slog"

	"github.com/wavedesk/relay/internal/conn"
	"github.com/wavedesk/relay/internal/protocol"
)

// Router translates domain events into room broadcasts. It never mutates
// domain state: it reads room membership from the connection registry and
// pushes envelopes at the members' senders. Sends are fire-and-forget;
// a slow connection silently misses the event rather than stalling the room.
type Router struct {
	conns  *conn.Registry
	logger *slog.Logger
}

// NewRouter creates a router over the given connection registry.
func NewRouter(conns *conn.Registry, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		conns:  conns,
		logger: logger.With("component", "router"),
	}
}

// ToSession broadcasts to every connection currently viewing a session.
func (r *Router) ToSession(sessionID string, env *protocol.Envelope) {
	r.broadcast(r.conns.SessionRoomSenders(sessionID), env, "session:"+sessionID)
}

// ToDashboard broadcasts to every agent watching a workspace dashboard.
func (r *Router) ToDashboard(workspaceID string, env *protocol.Envelope) {
	r.broadcast(r.conns.DashboardSenders(workspaceID), env, "dashboard:"+workspaceID)
}

// ToConnection sends to a single connection, for caller-only replies such
// as claim results. A no-op when the connection is already gone.
func (r *Router) ToConnection(connectionID string, env *protocol.Envelope) {
	sender, ok := r.conns.SenderFor(connectionID)
	if !ok {
		return
	}
	if !sender.Send(env) {
		r.logger.Debug("dropped event for slow connection",
			"event", env.Event,
			"connection_id", connectionID,
		)
	}
}

func (r *Router) broadcast(senders []conn.Sender, env *protocol.Envelope, room string) {
	dropped := 0
	for _, s := range senders {
		if !s.Send(env) {
			dropped++
		}
	}
	if dropped > 0 {
		r.logger.Debug("dropped event for slow room members",
			"event", env.Event,
			"room", room,
			"dropped", dropped,
			"members", len(senders),
		)
	}
}
