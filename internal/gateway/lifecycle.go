// ABOUTME: Connection lifecycle - identity announcement, room joins, reconnect, cleanup
// ABOUTME: The only component that adds or removes room memberships

package gateway

import (
	"context"
	"errors"

	"github.com/wavedesk/relay/internal/protocol"
	"github.com/wavedesk/relay/internal/session"
)

// handleEvent dispatches one validated inbound event for a connection.
// Malformed envelopes never reach here; Decode drops them in the read loop.
// Invalid intents (claims on closed sessions, messages to unknown ids) are
// resolved locally with negative results - nothing here returns an error to
// the transport.
func (g *Gateway) handleEvent(ctx context.Context, st *connState, env *protocol.Envelope, payload any) {
	switch p := payload.(type) {
	case *protocol.AgentInfo:
		g.handleAgentInfo(st, p)

	case *protocol.JoinSession:
		g.handleJoinSession(st, p)

	case *protocol.JoinDashboard:
		g.handleJoinDashboard(st, p)

	case *protocol.BotControl:
		g.handleBotControl(st, p)

	case *protocol.StartHandoff:
		g.handleStartHandoff(ctx, st, p)

	case *protocol.ChatMessage:
		g.handleChatMessage(ctx, st, p)

	case *protocol.ClaimSession:
		g.handleClaimSession(ctx, st, p)

	case *protocol.CloseSession:
		g.handleCloseSession(ctx, st, p)

	default:
		switch env.Event {
		case protocol.EventReconnect:
			g.handleReconnect(st)
		case protocol.EventHeartbeatResponse:
			// Liveness ack. Deliberately not used for eviction: disconnect
			// detection stays transport-driven.
			g.logger.Debug("heartbeat acknowledged", "connection_id", st.id)
		}
	}
}

// handleAgentInfo registers declared identity. When auth is enabled the
// declared agent id must match the verified token subject; a mismatch is
// dropped like any other malformed input.
func (g *Gateway) handleAgentInfo(st *connState, p *protocol.AgentInfo) {
	if g.verifier != nil {
		if st.claims == nil {
			g.logger.Warn("agent_info from unauthenticated connection dropped",
				"connection_id", st.id,
			)
			return
		}
		if st.claims.AgentID != p.AgentID {
			g.logger.Warn("agent_info subject mismatch dropped",
				"connection_id", st.id,
				"declared", p.AgentID,
				"token_subject", st.claims.AgentID,
			)
			return
		}
		if !st.claims.AllowsWorkspace(p.WorkspaceID) {
			g.logger.Warn("agent_info workspace not permitted by token",
				"connection_id", st.id,
				"workspace_id", p.WorkspaceID,
			)
			return
		}
	}

	g.conns.RegisterAgent(st.id, p.AgentID, p.AgentName, p.WorkspaceID)
	g.logger.Info("agent identity registered",
		"connection_id", st.id,
		"agent_id", p.AgentID,
		"workspace_id", p.WorkspaceID,
	)
}

// handleJoinSession joins the session room and records the current session
// on the identity so a reconnect can restore it.
func (g *Gateway) handleJoinSession(st *connState, p *protocol.JoinSession) {
	g.conns.JoinSessionRoom(p.SessionID, st.id)
	g.conns.SetCurrentSession(st.id, p.SessionID)
	g.logger.Debug("connection joined session room",
		"connection_id", st.id,
		"session_id", p.SessionID,
	)
}

// handleJoinDashboard joins the workspace dashboard room and replies with
// the current pending queue so the agent does not start from a blank view.
func (g *Gateway) handleJoinDashboard(st *connState, p *protocol.JoinDashboard) {
	if !g.workspaceAllowed(st, p.WorkspaceID) {
		g.logger.Warn("dashboard join for unpermitted workspace dropped",
			"connection_id", st.id,
			"workspace_id", p.WorkspaceID,
		)
		return
	}

	g.conns.JoinDashboardRoom(p.WorkspaceID, st.id)
	g.conns.SetWorkspace(st.id, p.WorkspaceID)

	pending := g.sessions.PendingByWorkspace(p.WorkspaceID)
	g.router.ToConnection(st.id, pendingSessionsEvent(p.WorkspaceID, pending))

	g.logger.Debug("connection joined dashboard",
		"connection_id", st.id,
		"workspace_id", p.WorkspaceID,
		"pending", len(pending),
	)
}

// handleReconnect restores exactly the memberships recorded on the
// connection's identity before the drop - no more, no less.
func (g *Gateway) handleReconnect(st *connState) {
	id, ok := g.conns.Identity(st.id)
	if !ok {
		return
	}

	if id.WorkspaceID != "" {
		g.conns.JoinDashboardRoom(id.WorkspaceID, st.id)
	}
	if id.CurrentSessionID != "" {
		g.conns.JoinSessionRoom(id.CurrentSessionID, st.id)
	}

	g.logger.Info("connection memberships restored",
		"connection_id", st.id,
		"workspace_id", id.WorkspaceID,
		"session_id", id.CurrentSessionID,
	)
}

// handleBotControl re-broadcasts a validated bot_control event to the
// session room. No registry state changes.
func (g *Gateway) handleBotControl(st *connState, p *protocol.BotControl) {
	if !g.workspaceAllowed(st, p.WorkspaceID) {
		g.logger.Warn("bot_control for unpermitted workspace dropped",
			"connection_id", st.id,
			"workspace_id", p.WorkspaceID,
		)
		return
	}

	g.router.ToSession(p.SessionID, protocol.MustEnvelope(protocol.EventBotControl, p))
}

// handleStartHandoff escalates the session and notifies the workspace
// dashboard of the new pending item.
func (g *Gateway) handleStartHandoff(ctx context.Context, st *connState, p *protocol.StartHandoff) {
	var first *session.Message
	if p.Message != nil {
		first = &session.Message{
			ID:        p.Message.ID,
			Role:      p.Message.Role,
			Content:   p.Message.Content,
			Timestamp: p.Message.Timestamp,
			AgentName: p.Message.AgentName,
		}
	}

	outcome, err := g.coordinator.StartHandoff(ctx, p.WorkspaceID, p.SessionID, first)
	if err != nil {
		// Handoff on a closed session: expected late traffic, drop.
		g.logger.Debug("handoff rejected",
			"session_id", p.SessionID,
			"reason", err,
		)
		return
	}

	// The requesting connection (visitor widget) follows its own session.
	g.conns.JoinSessionRoom(p.SessionID, st.id)
	g.conns.SetCurrentSession(st.id, p.SessionID)

	if outcome.Escalated {
		g.router.ToDashboard(p.WorkspaceID, sessionPendingEvent(outcome.Session))
	}
	if outcome.Message != nil {
		g.router.ToSession(p.SessionID, chatMessageEvent(p.SessionID, *outcome.Message))
	}
}

// handleChatMessage appends to the transcript and broadcasts to the session
// room. Duplicate deliveries append nothing and broadcast nothing.
func (g *Gateway) handleChatMessage(ctx context.Context, st *connState, p *protocol.ChatMessage) {
	msg := session.Message{
		ID:        p.Message.ID,
		Role:      p.Message.Role,
		Content:   p.Message.Content,
		Timestamp: p.Message.Timestamp,
		AgentName: p.Message.AgentName,
	}

	stored, appended, err := g.coordinator.AddMessage(ctx, p.SessionID, msg)
	if err != nil {
		g.logger.Debug("message for unknown session dropped",
			"session_id", p.SessionID,
			"connection_id", st.id,
		)
		return
	}
	if !appended {
		return
	}

	g.router.ToSession(p.SessionID, chatMessageEvent(p.SessionID, stored))
}

// handleClaimSession runs the atomic claim. Exactly one of N concurrent
// claims succeeds; everyone else gets a negative claim_result, which is an
// expected outcome, not an error.
func (g *Gateway) handleClaimSession(ctx context.Context, st *connState, p *protocol.ClaimSession) {
	id, ok := g.conns.Identity(st.id)
	if !ok || id.AgentID == "" {
		g.logger.Warn("claim from connection without agent identity dropped",
			"connection_id", st.id,
			"session_id", p.SessionID,
		)
		return
	}

	snap, err := g.coordinator.Claim(ctx, p.SessionID, id.AgentID, id.AgentName)
	if err != nil {
		reason := "not available"
		if errors.Is(err, session.ErrNotFound) {
			reason = "not found"
		}
		g.router.ToConnection(st.id, claimResultEvent(p.SessionID, false, "", reason))
		return
	}

	// The winner starts viewing the session it now owns.
	g.conns.JoinSessionRoom(p.SessionID, st.id)
	g.conns.SetCurrentSession(st.id, p.SessionID)

	g.router.ToConnection(st.id, claimResultEvent(p.SessionID, true, id.AgentID, ""))
	g.router.ToSession(p.SessionID, sessionClaimedEvent(snap))
	g.router.ToDashboard(snap.WorkspaceID, sessionClaimedEvent(snap))
}

// handleCloseSession runs the terminal transition, tells both room kinds,
// and dissolves the session room.
func (g *Gateway) handleCloseSession(ctx context.Context, st *connState, p *protocol.CloseSession) {
	snap, err := g.coordinator.CloseSession(ctx, p.SessionID)
	if err != nil {
		g.logger.Debug("close rejected",
			"session_id", p.SessionID,
			"reason", err,
		)
		return
	}

	g.router.ToSession(p.SessionID, sessionClosedEvent(p.SessionID))
	g.router.ToDashboard(snap.WorkspaceID, sessionClosedEvent(p.SessionID))

	for _, connID := range g.conns.DissolveSessionRoom(p.SessionID) {
		g.conns.ClearCurrentSession(connID, p.SessionID)
	}
}

// handleDisconnect purges the connection entirely. Runs exactly once per
// disconnect via the transport's teardown path and is a safe no-op for a
// connection that never completed registration.
func (g *Gateway) handleDisconnect(st *connState) {
	g.conns.Forget(st.id)
	g.logger.Info("connection cleaned up", "connection_id", st.id)
}

// workspaceAllowed applies hardened workspace scoping: with auth enabled
// and a scoped token, the client-declared workspace must be in the token.
// With auth disabled, the declared value is trusted (original behavior).
func (g *Gateway) workspaceAllowed(st *connState, workspaceID string) bool {
	if g.verifier == nil || st.claims == nil {
		return g.verifier == nil
	}
	return st.claims.AllowsWorkspace(workspaceID)
}
