// ABOUTME: Tests for the read-only HTTP API.
// ABOUTME: Covers live listings, live vs archived history, and bearer auth gating.

package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavedesk/relay/internal/auth"
	"github.com/wavedesk/relay/internal/session"
	"github.com/wavedesk/relay/internal/store"
)

func newAPITestGateway(t *testing.T) (*Gateway, *http.ServeMux) {
	t.Helper()
	g := newTestGateway(t)

	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	g.store = st

	mux := http.NewServeMux()
	g.registerRoutes(mux)
	return g, mux
}

func TestAPI_ListSessions(t *testing.T) {
	g, mux := newAPITestGateway(t)

	_, err := g.coordinator.StartHandoff(t.Context(), "acme", "s-1", nil)
	require.NoError(t, err)
	_, err = g.coordinator.StartHandoff(t.Context(), "acme", "s-2", nil)
	require.NoError(t, err)
	_, err = g.coordinator.Claim(t.Context(), "s-2", "alice", "Alice")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/workspaces/acme/sessions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		WorkspaceID string           `json:"workspaceId"`
		Sessions    []SessionSummary `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "acme", resp.WorkspaceID)
	assert.Len(t, resp.Sessions, 2)
}

func TestAPI_ListSessions_StatusFilter(t *testing.T) {
	g, mux := newAPITestGateway(t)

	_, err := g.coordinator.StartHandoff(t.Context(), "acme", "s-1", nil)
	require.NoError(t, err)
	_, err = g.coordinator.StartHandoff(t.Context(), "acme", "s-2", nil)
	require.NoError(t, err)
	_, err = g.coordinator.Claim(t.Context(), "s-2", "alice", "Alice")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/workspaces/acme/sessions?status=pending", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Sessions []SessionSummary `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Sessions, 1)
	assert.Equal(t, "s-1", resp.Sessions[0].ID)
}

func TestAPI_SessionHistory_Live(t *testing.T) {
	g, mux := newAPITestGateway(t)

	_, err := g.coordinator.StartHandoff(t.Context(), "acme", "s-1", &session.Message{
		Role: "user", Content: "hello",
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/sessions/s-1/history", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp SessionHistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "s-1", resp.SessionID)
	assert.Equal(t, "pending", resp.Status)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "hello", resp.Messages[0].Content)
}

func TestAPI_SessionHistory_ArchivedFallback(t *testing.T) {
	g, mux := newAPITestGateway(t)

	// Session exists only in the archive, not the live registry
	snap := &session.Snapshot{
		ID:          "old-1",
		WorkspaceID: "acme",
		Status:      session.StatusClosed,
		History: []session.Message{
			{ID: "m-1", Role: "user", Content: "archived hello", Timestamp: time.Now()},
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, g.store.ArchiveSession(t.Context(), snap))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/sessions/old-1/history", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp SessionHistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "closed", resp.Status)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "archived hello", resp.Messages[0].Content)
}

func TestAPI_SessionHistory_NotFound(t *testing.T) {
	_, mux := newAPITestGateway(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/sessions/missing/history", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_SessionHistory_BadLimit(t *testing.T) {
	g, mux := newAPITestGateway(t)
	_, err := g.coordinator.StartHandoff(t.Context(), "acme", "s-1", nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/sessions/s-1/history?limit=zero", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_RequireAuth(t *testing.T) {
	g, _ := newAPITestGateway(t)
	verifier, err := auth.NewJWTVerifier([]byte("test-secret"))
	require.NoError(t, err)
	g.verifier = verifier

	// Re-register routes so the wrapper sees the verifier
	mux := http.NewServeMux()
	g.registerRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/workspaces/acme/sessions", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := verifier.Generate("alice", nil, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/workspaces/acme/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_Health(t *testing.T) {
	_, mux := newAPITestGateway(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
