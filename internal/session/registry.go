// ABOUTME: Authoritative in-memory map of session id to session record
// ABOUTME: Get-or-create plus eventually-consistent snapshot reads for dashboards

package session

import (
	"log/slog"
	"sync"
	"time"
)

// Registry is the authoritative in-memory session store. It has no network
// awareness; the durable store only receives archival copies. Sessions are
// never physically removed — closure is a status transition, and retention
// is the archival collaborator's concern.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *slog.Logger
}

// NewRegistry creates an empty registry. Pass nil logger for the default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger.With("component", "session-registry"),
	}
}

// GetOrCreate returns the session with the given id, creating it with status
// pending when unseen. The second return reports whether a session was
// created. Creation is explicit here rather than a side effect of any status
// setter; only the startHandoff intent calls it.
func (r *Registry) GetOrCreate(id, workspaceID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s, false
	}

	now := time.Now()
	s := &Session{
		ID:          id,
		WorkspaceID: workspaceID,
		status:      StatusPending,
		createdAt:   now,
		updatedAt:   now,
	}
	r.sessions[id] = s
	r.logger.Debug("session created", "session_id", id, "workspace_id", workspaceID)
	return s, true
}

// Get returns the session with the given id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Snapshot returns a copy of the session state, or false if unknown.
func (r *Registry) Snapshot(id string) (Snapshot, bool) {
	s, ok := r.Get(id)
	if !ok {
		return Snapshot{}, false
	}
	return s.Snapshot(), true
}

// PendingByWorkspace returns snapshots of every pending session in a
// workspace, for dashboard queue displays. The result is an
// eventually-consistent read: sessions claimed while iterating may appear,
// but no snapshot is ever half-applied.
func (r *Registry) PendingByWorkspace(workspaceID string) []Snapshot {
	return r.byWorkspace(workspaceID, StatusPending)
}

// ByWorkspace returns snapshots of sessions in a workspace, optionally
// filtered by status. An empty status matches everything.
func (r *Registry) ByWorkspace(workspaceID string, status Status) []Snapshot {
	return r.byWorkspace(workspaceID, status)
}

func (r *Registry) byWorkspace(workspaceID string, status Status) []Snapshot {
	r.mu.RLock()
	matched := make([]*Session, 0)
	for _, s := range r.sessions {
		if s.WorkspaceID == workspaceID {
			matched = append(matched, s)
		}
	}
	r.mu.RUnlock()

	// Status is read per session outside the registry lock; a concurrent
	// claim simply lands in or out of the snapshot.
	out := make([]Snapshot, 0, len(matched))
	for _, s := range matched {
		snap := s.Snapshot()
		if status == "" || snap.Status == status {
			out = append(out, snap)
		}
	}
	return out
}

// Len returns the number of sessions ever registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
