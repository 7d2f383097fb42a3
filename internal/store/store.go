// ABOUTME: Store interface and record types for durable session archival
// ABOUTME: The store is a record-keeper, never a coordination mechanism

package store

import (
	"context"
	"errors"
	"time"

	"github.com/wavedesk/relay/internal/session"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SessionRecord is the archived shape of a session.
type SessionRecord struct {
	ID            string    `json:"id"`
	WorkspaceID   string    `json:"workspaceId"`
	Status        string    `json:"status"`
	AssignedAgent string    `json:"assignedAgentId,omitempty"`
	AgentName     string    `json:"agentName,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// MessageRecord is one archived transcript entry.
type MessageRecord struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	AgentName string    `json:"agentName,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Store persists session transcripts for history retrieval. The live
// routing layer never reads it on the hot path and never blocks on it;
// ArchiveSession must be an idempotent upsert keyed by session id so
// repeated archival of the same session converges to one record.
type Store interface {
	ArchiveSession(ctx context.Context, snap *session.Snapshot) error
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	GetSessionHistory(ctx context.Context, sessionID string, limit int) ([]*MessageRecord, error)
	ListSessions(ctx context.Context, workspaceID, status string, limit int) ([]*SessionRecord, error)

	// Ping reports whether the store is reachable, for readiness checks.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
