// ABOUTME: Read-only HTTP API over live sessions and the archival store
// ABOUTME: Live registry answers first; closed sessions fall back to SQLite

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/wavedesk/relay/internal/auth"
	"github.com/wavedesk/relay/internal/session"
	"github.com/wavedesk/relay/internal/store"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 500
)

// SessionSummary is the JSON shape for session listings. It deliberately
// omits the transcript; history has its own endpoint.
type SessionSummary struct {
	ID            string `json:"id"`
	WorkspaceID   string `json:"workspaceId"`
	Status        string `json:"status"`
	AssignedAgent string `json:"assignedAgentId,omitempty"`
	AgentName     string `json:"agentName,omitempty"`
	Messages      int    `json:"messages"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

// SessionHistoryResponse is the JSON response for GET /api/sessions/{id}/history.
type SessionHistoryResponse struct {
	SessionID string            `json:"sessionId"`
	Status    string            `json:"status"`
	Messages  []protocolMessage `json:"messages"`
}

type protocolMessage struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	AgentName string `json:"agentName,omitempty"`
	Timestamp string `json:"timestamp"`
}

// requireAuth wraps a handler with bearer token verification when auth is
// enabled. With auth disabled the API is open, matching the websocket side.
func (g *Gateway) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	if g.verifier == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerFromRequest(r)
		if token == "" {
			g.sendJSONError(w, http.StatusUnauthorized, "missing token")
			return
		}
		if _, err := g.verifier.Verify(token); err != nil {
			g.sendJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r)
	}
}

// handleListSessions handles GET /api/workspaces/{workspaceID}/sessions.
// Reads the live registry only: the endpoint answers "what is happening
// right now", not "what ever happened".
func (g *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("workspaceID")
	if workspaceID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "workspace id is required")
		return
	}

	status := session.Status(r.URL.Query().Get("status"))
	snaps := g.sessions.ByWorkspace(workspaceID, status)

	out := make([]SessionSummary, len(snaps))
	for i, snap := range snaps {
		out[i] = SessionSummary{
			ID:            snap.ID,
			WorkspaceID:   snap.WorkspaceID,
			Status:        string(snap.Status),
			AssignedAgent: snap.AssignedAgent,
			AgentName:     snap.AgentName,
			Messages:      len(snap.History),
			CreatedAt:     snap.CreatedAt.UTC().Format(timeFormat),
			UpdatedAt:     snap.UpdatedAt.UTC().Format(timeFormat),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"workspaceId": workspaceID,
		"sessions":    out,
	})
}

// handleSessionHistory handles GET /api/sessions/{sessionID}/history. A live
// session answers from memory; an unknown one falls back to the archive so
// closed transcripts stay reachable across restarts.
func (g *Gateway) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")
	if sessionID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "session id is required")
		return
	}

	limit := defaultHistoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}
	}

	if snap, ok := g.sessions.Snapshot(sessionID); ok {
		g.writeLiveHistory(w, snap, limit)
		return
	}

	g.writeArchivedHistory(w, r, sessionID, limit)
}

func (g *Gateway) writeLiveHistory(w http.ResponseWriter, snap session.Snapshot, limit int) {
	history := snap.History
	if len(history) > limit {
		history = history[len(history)-limit:]
	}

	resp := SessionHistoryResponse{
		SessionID: snap.ID,
		Status:    string(snap.Status),
		Messages:  make([]protocolMessage, len(history)),
	}
	for i, msg := range history {
		resp.Messages[i] = protocolMessage{
			ID:        msg.ID,
			Role:      msg.Role,
			Content:   msg.Content,
			AgentName: msg.AgentName,
			Timestamp: msg.Timestamp.UTC().Format(timeFormat),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (g *Gateway) writeArchivedHistory(w http.ResponseWriter, r *http.Request, sessionID string, limit int) {
	rec, err := g.store.GetSession(r.Context(), sessionID)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to load archived session", "error", err, "session_id", sessionID)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	msgs, err := g.store.GetSessionHistory(r.Context(), sessionID, limit)
	if err != nil {
		g.logger.Error("failed to load archived history", "error", err, "session_id", sessionID)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := SessionHistoryResponse{
		SessionID: rec.ID,
		Status:    rec.Status,
		Messages:  make([]protocolMessage, len(msgs)),
	}
	for i, msg := range msgs {
		resp.Messages[i] = protocolMessage{
			ID:        msg.ID,
			Role:      msg.Role,
			Content:   msg.Content,
			AgentName: msg.AgentName,
			Timestamp: msg.Timestamp.UTC().Format(timeFormat),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"
