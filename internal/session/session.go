// ABOUTME: Session and Message types plus the status state machine
// ABOUTME: Status transitions are bot -> pending -> in_progress -> closed

package session

import (
	"sync"
	"time"
)

// Status is a session's position in the handoff lifecycle.
type Status string

const (
	// StatusBot means the conversation is handled by the automated agent.
	StatusBot Status = "bot"
	// StatusPending means the visitor is queued for a human agent.
	StatusPending Status = "pending"
	// StatusInProgress means exactly one agent has claimed the session.
	StatusInProgress Status = "in_progress"
	// StatusClosed is terminal. No further transitions are accepted.
	StatusClosed Status = "closed"
)

// canTransition reports whether the state machine permits moving from s to
// next. closed is reachable from any non-terminal state; otherwise only the
// forward edges bot->pending and pending->in_progress exist. pending->pending
// is allowed so a repeated handoff request stays a no-op rather than a fault.
func (s Status) canTransition(next Status) bool {
	if s == StatusClosed {
		return false
	}
	switch next {
	case StatusClosed:
		return true
	case StatusPending:
		return s == StatusBot || s == StatusPending
	case StatusInProgress:
		return s == StatusPending
	}
	return false
}

// Message is one entry in a session transcript.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	AgentName string    `json:"agentName,omitempty"`
}

// Session is one visitor conversation. All fields behind mu are owned by the
// Coordinator; nothing else in the process mutates them. The embedded mutex
// is the per-session serialization unit: the pending->in_progress
// check-and-set in Claim happens entirely under it.
type Session struct {
	ID          string
	WorkspaceID string

	mu              sync.Mutex
	status          Status
	history         []Message
	assignedAgentID string
	assignedAgent   string
	createdAt       time.Time
	updatedAt       time.Time
}

// Snapshot is an immutable copy of a session's state for display and
// archival. History is copied; callers may hold it indefinitely.
type Snapshot struct {
	ID            string    `json:"id"`
	WorkspaceID   string    `json:"workspaceId"`
	Status        Status    `json:"status"`
	AssignedAgent string    `json:"assignedAgentId,omitempty"`
	AgentName     string    `json:"agentName,omitempty"`
	History       []Message `json:"history"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// snapshotLocked copies the session state. Must be called with mu held.
func (s *Session) snapshotLocked() Snapshot {
	history := make([]Message, len(s.history))
	copy(history, s.history)
	return Snapshot{
		ID:            s.ID,
		WorkspaceID:   s.WorkspaceID,
		Status:        s.status,
		AssignedAgent: s.assignedAgentID,
		AgentName:     s.assignedAgent,
		History:       history,
		CreatedAt:     s.createdAt,
		UpdatedAt:     s.updatedAt,
	}
}

// Snapshot returns a consistent copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Status returns the current status.
func (s *Session) CurrentStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
