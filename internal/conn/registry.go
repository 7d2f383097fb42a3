// ABOUTME: Maps live connections to declared identity and room memberships
// ABOUTME: Forget purges a connection exhaustively so no room keeps a stale member

package conn

import (
	"log/slog"
	"sync"

	"github.com/wavedesk/relay/internal/protocol"
)

// Sender is the transport-side write half of a connection. Send is
// fire-and-forget: it returns false when the event was dropped (slow or
// closed connection) and never blocks the caller.
type Sender interface {
	Send(env *protocol.Envelope) bool
}

// Identity is what a connection has declared about itself. It is
// reconstructed from the client's own announcements; the server holds no
// cross-restart memory of it.
type Identity struct {
	ConnectionID     string
	AgentID          string
	AgentName        string
	WorkspaceID      string
	CurrentSessionID string
}

// Registry tracks every live connection: its identity record, its transport
// sender, and which rooms it belongs to. All operations are total - acting
// on an unknown connection id is a no-op, never a fault, since the
// transport guarantees a connection is bound before events arrive and
// cleanup may legitimately run twice.
type Registry struct {
	mu         sync.RWMutex
	identities map[string]*Identity
	senders    map[string]Sender
	// sessionRooms: session id -> set of member connection ids.
	sessionRooms map[string]map[string]struct{}
	// dashboardRooms: workspace id -> set of member connection ids.
	dashboardRooms map[string]map[string]struct{}
	logger         *slog.Logger
}

// NewRegistry creates an empty connection registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		identities:     make(map[string]*Identity),
		senders:        make(map[string]Sender),
		sessionRooms:   make(map[string]map[string]struct{}),
		dashboardRooms: make(map[string]map[string]struct{}),
		logger:         logger.With("component", "conn-registry"),
	}
}

// Bind registers a new connection with its transport sender and an empty
// identity record. Called once by the transport when the connection opens.
func (r *Registry) Bind(connectionID string, sender Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.identities[connectionID] = &Identity{ConnectionID: connectionID}
	r.senders[connectionID] = sender
}

// RegisterAgent records agent identity for a connection. Idempotent upsert;
// joining rooms is a separate, explicit step.
func (r *Registry) RegisterAgent(connectionID, agentID, agentName, workspaceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.identities[connectionID]
	if !ok {
		return
	}
	id.AgentID = agentID
	id.AgentName = agentName
	id.WorkspaceID = workspaceID
}

// SetCurrentSession records which session a connection is viewing, so a
// later reconnect can restore the membership.
func (r *Registry) SetCurrentSession(connectionID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.identities[connectionID]; ok {
		id.CurrentSessionID = sessionID
	}
}

// SetWorkspace merges a workspace id into the identity record without
// touching the other agent fields.
func (r *Registry) SetWorkspace(connectionID, workspaceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.identities[connectionID]; ok {
		id.WorkspaceID = workspaceID
	}
}

// Identity returns a copy of the connection's identity record.
func (r *Registry) Identity(connectionID string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.identities[connectionID]
	if !ok {
		return Identity{}, false
	}
	return *id, true
}

// JoinSessionRoom adds a connection to a session room. Membership is a set;
// joining twice is a no-op.
func (r *Registry) JoinSessionRoom(sessionID, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.identities[connectionID]; !ok {
		return
	}
	members, ok := r.sessionRooms[sessionID]
	if !ok {
		members = make(map[string]struct{})
		r.sessionRooms[sessionID] = members
	}
	members[connectionID] = struct{}{}
}

// LeaveSessionRoom removes a connection from a session room.
func (r *Registry) LeaveSessionRoom(sessionID, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaveRoomLocked(r.sessionRooms, sessionID, connectionID)
}

// JoinDashboardRoom adds a connection to a workspace dashboard room.
func (r *Registry) JoinDashboardRoom(workspaceID, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.identities[connectionID]; !ok {
		return
	}
	members, ok := r.dashboardRooms[workspaceID]
	if !ok {
		members = make(map[string]struct{})
		r.dashboardRooms[workspaceID] = members
	}
	members[connectionID] = struct{}{}
}

// LeaveDashboardRoom removes a connection from a dashboard room.
func (r *Registry) LeaveDashboardRoom(workspaceID, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaveRoomLocked(r.dashboardRooms, workspaceID, connectionID)
}

func (r *Registry) leaveRoomLocked(rooms map[string]map[string]struct{}, key, connectionID string) {
	members, ok := rooms[key]
	if !ok {
		return
	}
	delete(members, connectionID)
	if len(members) == 0 {
		delete(rooms, key)
	}
}

// InSessionRoom reports whether a connection is a member of a session room.
func (r *Registry) InSessionRoom(sessionID, connectionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.sessionRooms[sessionID][connectionID]
	return ok
}

// InDashboardRoom reports whether a connection is a member of a dashboard room.
func (r *Registry) InDashboardRoom(workspaceID, connectionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.dashboardRooms[workspaceID][connectionID]
	return ok
}

// SessionRoomSenders returns the senders for every member of a session room.
func (r *Registry) SessionRoomSenders(sessionID string) []Sender {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sendersForLocked(r.sessionRooms[sessionID])
}

// DashboardSenders returns the senders for every member of a dashboard room.
func (r *Registry) DashboardSenders(workspaceID string) []Sender {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sendersForLocked(r.dashboardRooms[workspaceID])
}

// SenderFor returns the sender for one connection, for caller-only replies.
func (r *Registry) SenderFor(connectionID string) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.senders[connectionID]
	return s, ok
}

func (r *Registry) sendersForLocked(members map[string]struct{}) []Sender {
	out := make([]Sender, 0, len(members))
	for connID := range members {
		if s, ok := r.senders[connID]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Forget removes a connection's identity, sender, and every room membership
// it holds, across all sessions and dashboards. The purge must be
// exhaustive: a stale member would receive broadcasts on a dead connection
// and corrupt presence counts. Idempotent - forgetting an unknown
// connection is a no-op.
func (r *Registry) Forget(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.identities, connectionID)
	delete(r.senders, connectionID)

	for sessionID := range r.sessionRooms {
		r.leaveRoomLocked(r.sessionRooms, sessionID, connectionID)
	}
	for workspaceID := range r.dashboardRooms {
		r.leaveRoomLocked(r.dashboardRooms, workspaceID, connectionID)
	}
}

// DissolveSessionRoom removes a session room entirely and returns the
// connection ids that were members. Used when a session reaches its
// terminal state: the room no longer exists, but the connections live on.
func (r *Registry) DissolveSessionRoom(sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.sessionRooms[sessionID]
	delete(r.sessionRooms, sessionID)

	out := make([]string, 0, len(members))
	for connID := range members {
		out = append(out, connID)
	}
	return out
}

// ClearCurrentSession drops the recorded current session if it still matches
// the given session id, so a reconnect does not rejoin a dissolved room.
func (r *Registry) ClearCurrentSession(connectionID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.identities[connectionID]; ok && id.CurrentSessionID == sessionID {
		id.CurrentSessionID = ""
	}
}

// Connections returns the number of live connections.
func (r *Registry) Connections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.identities)
}
