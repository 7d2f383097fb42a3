// ABOUTME: Closed set of tagged wire events spoken over the websocket transport
// ABOUTME: Defines envelope encoding and per-event payload validation

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event names accepted from clients.
const (
	EventAgentInfo          = "agent_info"
	EventJoinSession        = "join_session"
	EventJoinAgentDashboard = "join_agent_dashboard"
	EventReconnect          = "reconnect"
	EventHeartbeatResponse  = "heartbeat_response"
	EventBotControl         = "bot_control"
	EventStartHandoff       = "start_handoff"
	EventChatMessage        = "chat_message"
	EventClaimSession       = "claim_session"
	EventCloseSession       = "close_session"
)

// Event names emitted to clients.
const (
	EventHeartbeat       = "heartbeat"
	EventSessionPending  = "session_pending"
	EventPendingSessions = "pending_sessions"
	EventClaimResult     = "claim_result"
	EventSessionClaimed  = "session_claimed"
	EventSessionClosed   = "session_closed"
)

// Validation errors. Callers treat any decode error as a malformed event
// and drop it without mutating state.
var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrMissingField   = errors.New("missing required field")
	ErrInvalidPayload = errors.New("invalid payload")
)

// Envelope is the wire framing for every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope wraps a payload in an envelope, marshaling the payload to JSON.
func NewEnvelope(event string, payload any) (*Envelope, error) {
	if payload == nil {
		return &Envelope{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", event, err)
	}
	return &Envelope{Event: event, Data: data}, nil
}

// MustEnvelope is NewEnvelope for payloads built from internal structs,
// where a marshal failure indicates a programming error.
func MustEnvelope(event string, payload any) *Envelope {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// AgentInfo declares a connection's identity after connect.
type AgentInfo struct {
	AgentID     string `json:"agentId"`
	AgentName   string `json:"agentName,omitempty"`
	WorkspaceID string `json:"workspaceId"`
}

// JoinSession asks to join a session room and view that conversation.
type JoinSession struct {
	SessionID string `json:"sessionId"`
}

// JoinDashboard asks to join a workspace dashboard room.
type JoinDashboard struct {
	WorkspaceID string `json:"workspaceId"`
}

// BotControl toggles bot vs. agent handling on the visitor side. It is
// validated and re-broadcast verbatim to the session room.
type BotControl struct {
	WorkspaceID string `json:"workspaceId"`
	SessionID   string `json:"sessionId"`
	Action      string `json:"action"`
	AgentName   string `json:"agentName,omitempty"`
}

// Message is one transcript entry as it crosses the wire.
type Message struct {
	ID        string    `json:"id,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	AgentName string    `json:"agentName,omitempty"`
}

// StartHandoff escalates a session from bot-handled to the agent queue.
type StartHandoff struct {
	WorkspaceID string   `json:"workspaceId"`
	SessionID   string   `json:"sessionId"`
	Message     *Message `json:"message,omitempty"`
}

// ChatMessage appends a message to a session transcript.
type ChatMessage struct {
	SessionID string  `json:"sessionId"`
	Message   Message `json:"message"`
}

// ClaimSession is an agent's attempt to take exclusive ownership of a
// pending session.
type ClaimSession struct {
	SessionID string `json:"sessionId"`
}

// CloseSession ends a session. Terminal.
type CloseSession struct {
	SessionID string `json:"sessionId"`
}

// Heartbeat is the periodic server-side liveness probe.
type Heartbeat struct {
	Timestamp time.Time `json:"timestamp"`
}

// ClaimResult reports the outcome of a claim attempt to the caller only.
// A lost race is ok=false with a reason, not an error.
type ClaimResult struct {
	SessionID string `json:"sessionId"`
	OK        bool   `json:"ok"`
	AgentID   string `json:"agentId,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// SessionClaimed announces a successful claim to the session room and the
// workspace dashboard.
type SessionClaimed struct {
	SessionID string `json:"sessionId"`
	AgentID   string `json:"agentId"`
	AgentName string `json:"agentName,omitempty"`
}

// SessionClosed announces a terminal close.
type SessionClosed struct {
	SessionID string `json:"sessionId"`
}

func decodeInto(env *Envelope, v any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: empty data for %s", ErrInvalidPayload, env.Event)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func requireFields(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, pairs[i])
		}
	}
	return nil
}

// Decode validates an inbound envelope and returns its typed payload.
// The returned value is one of the inbound payload structs above, by pointer.
// Events carrying no payload (reconnect, heartbeat_response) return nil.
func Decode(env *Envelope) (any, error) {
	switch env.Event {
	case EventAgentInfo:
		var p AgentInfo
		if err := decodeInto(env, &p); err != nil {
			return nil, err
		}
		if err := requireFields("agentId", p.AgentID, "workspaceId", p.WorkspaceID); err != nil {
			return nil, err
		}
		return &p, nil

	case EventJoinSession:
		var p JoinSession
		if err := decodeInto(env, &p); err != nil {
			return nil, err
		}
		if err := requireFields("sessionId", p.SessionID); err != nil {
			return nil, err
		}
		return &p, nil

	case EventJoinAgentDashboard:
		var p JoinDashboard
		if err := decodeInto(env, &p); err != nil {
			return nil, err
		}
		if err := requireFields("workspaceId", p.WorkspaceID); err != nil {
			return nil, err
		}
		return &p, nil

	case EventReconnect, EventHeartbeatResponse:
		return nil, nil

	case EventBotControl:
		var p BotControl
		if err := decodeInto(env, &p); err != nil {
			return nil, err
		}
		if err := requireFields("workspaceId", p.WorkspaceID, "sessionId", p.SessionID, "action", p.Action); err != nil {
			return nil, err
		}
		return &p, nil

	case EventStartHandoff:
		var p StartHandoff
		if err := decodeInto(env, &p); err != nil {
			return nil, err
		}
		if err := requireFields("workspaceId", p.WorkspaceID, "sessionId", p.SessionID); err != nil {
			return nil, err
		}
		return &p, nil

	case EventChatMessage:
		var p ChatMessage
		if err := decodeInto(env, &p); err != nil {
			return nil, err
		}
		if err := requireFields("sessionId", p.SessionID, "role", p.Message.Role, "content", p.Message.Content); err != nil {
			return nil, err
		}
		return &p, nil

	case EventClaimSession:
		var p ClaimSession
		if err := decodeInto(env, &p); err != nil {
			return nil, err
		}
		if err := requireFields("sessionId", p.SessionID); err != nil {
			return nil, err
		}
		return &p, nil

	case EventCloseSession:
		var p CloseSession
		if err := decodeInto(env, &p); err != nil {
			return nil, err
		}
		if err := requireFields("sessionId", p.SessionID); err != nil {
			return nil, err
		}
		return &p, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
}
