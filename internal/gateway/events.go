// ABOUTME: Builders translating domain snapshots into outbound wire envelopes
// ABOUTME: The only place session types are converted to protocol types

package gateway

import (
	"time"

	"github.com/wavedesk/relay/internal/protocol"
	"github.com/wavedesk/relay/internal/session"
)

func wireMessage(msg session.Message) protocol.Message {
	return protocol.Message{
		ID:        msg.ID,
		Role:      msg.Role,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
		AgentName: msg.AgentName,
	}
}

func heartbeatEvent(now time.Time) *protocol.Envelope {
	return protocol.MustEnvelope(protocol.EventHeartbeat, protocol.Heartbeat{Timestamp: now})
}

func sessionPendingEvent(snap session.Snapshot) *protocol.Envelope {
	return protocol.MustEnvelope(protocol.EventSessionPending, map[string]any{
		"session": snap,
	})
}

func pendingSessionsEvent(workspaceID string, snaps []session.Snapshot) *protocol.Envelope {
	return protocol.MustEnvelope(protocol.EventPendingSessions, map[string]any{
		"workspaceId": workspaceID,
		"sessions":    snaps,
	})
}

func chatMessageEvent(sessionID string, msg session.Message) *protocol.Envelope {
	return protocol.MustEnvelope(protocol.EventChatMessage, protocol.ChatMessage{
		SessionID: sessionID,
		Message:   wireMessage(msg),
	})
}

func claimResultEvent(sessionID string, ok bool, agentID, reason string) *protocol.Envelope {
	return protocol.MustEnvelope(protocol.EventClaimResult, protocol.ClaimResult{
		SessionID: sessionID,
		OK:        ok,
		AgentID:   agentID,
		Reason:    reason,
	})
}

func sessionClaimedEvent(snap session.Snapshot) *protocol.Envelope {
	return protocol.MustEnvelope(protocol.EventSessionClaimed, protocol.SessionClaimed{
		SessionID: snap.ID,
		AgentID:   snap.AssignedAgent,
		AgentName: snap.AgentName,
	})
}

func sessionClosedEvent(sessionID string) *protocol.Envelope {
	return protocol.MustEnvelope(protocol.EventSessionClosed, protocol.SessionClosed{
		SessionID: sessionID,
	})
}
