// ABOUTME: Tests for the in-memory session registry.
// ABOUTME: Covers get-or-create semantics, workspace filtering, and snapshot isolation.

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetOrCreate_New(t *testing.T) {
	r := NewRegistry(nil)

	s, created := r.GetOrCreate("s-1", "acme")
	require.NotNil(t, s)
	assert.True(t, created)
	assert.Equal(t, "s-1", s.ID)
	assert.Equal(t, "acme", s.WorkspaceID)
	assert.Equal(t, StatusPending, s.CurrentStatus())
}

func TestRegistry_GetOrCreate_Existing(t *testing.T) {
	r := NewRegistry(nil)

	first, created := r.GetOrCreate("s-1", "acme")
	require.True(t, created)

	second, created := r.GetOrCreate("s-1", "acme")
	assert.False(t, created)
	assert.Same(t, first, second)
}

func TestRegistry_Get_Unknown(t *testing.T) {
	r := NewRegistry(nil)

	_, ok := r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry(nil)
	r.GetOrCreate("s-1", "acme")

	snap, ok := r.Snapshot("s-1")
	require.True(t, ok)
	assert.Equal(t, "s-1", snap.ID)
	assert.Equal(t, StatusPending, snap.Status)
	assert.Empty(t, snap.History)
}

func TestRegistry_PendingByWorkspace(t *testing.T) {
	r := NewRegistry(nil)
	r.GetOrCreate("s-1", "acme")
	r.GetOrCreate("s-2", "acme")
	r.GetOrCreate("s-3", "other")

	pending := r.PendingByWorkspace("acme")
	assert.Len(t, pending, 2)
	for _, snap := range pending {
		assert.Equal(t, "acme", snap.WorkspaceID)
		assert.Equal(t, StatusPending, snap.Status)
	}
}

func TestRegistry_ByWorkspace_StatusFilter(t *testing.T) {
	r := NewRegistry(nil)
	c := NewCoordinator(r, nil, nil, nil)
	defer c.Close()

	r.GetOrCreate("s-1", "acme")
	r.GetOrCreate("s-2", "acme")

	_, err := c.Claim(t.Context(), "s-1", "alice", "Alice")
	require.NoError(t, err)

	assert.Len(t, r.ByWorkspace("acme", StatusPending), 1)
	assert.Len(t, r.ByWorkspace("acme", StatusInProgress), 1)
	// Empty status matches everything
	assert.Len(t, r.ByWorkspace("acme", ""), 2)
}

func TestRegistry_ClosedSessionsStayListed(t *testing.T) {
	r := NewRegistry(nil)
	c := NewCoordinator(r, nil, nil, nil)
	defer c.Close()

	r.GetOrCreate("s-1", "acme")
	_, err := c.CloseSession(t.Context(), "s-1")
	require.NoError(t, err)

	// Closure is a status transition, not removal
	assert.Equal(t, 1, r.Len())
	assert.Len(t, r.ByWorkspace("acme", StatusClosed), 1)
	assert.Empty(t, r.PendingByWorkspace("acme"))
}

func TestStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusBot, StatusPending, true},
		{StatusPending, StatusPending, true},
		{StatusPending, StatusInProgress, true},
		{StatusBot, StatusClosed, true},
		{StatusPending, StatusClosed, true},
		{StatusInProgress, StatusClosed, true},
		{StatusInProgress, StatusPending, false},
		{StatusBot, StatusInProgress, false},
		{StatusClosed, StatusPending, false},
		{StatusClosed, StatusClosed, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.canTransition(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}
