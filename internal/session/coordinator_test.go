// ABOUTME: Tests for the session coordinator intents.
// ABOUTME: Covers handoff escalation, idempotent appends, claim races, and close/archive.

package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingArchiver captures archived snapshots for assertions.
type recordingArchiver struct {
	mu    sync.Mutex
	snaps []Snapshot
	done  chan struct{}
}

func newRecordingArchiver() *recordingArchiver {
	return &recordingArchiver{done: make(chan struct{}, 8)}
}

func (a *recordingArchiver) ArchiveSession(ctx context.Context, snap *Snapshot) error {
	a.mu.Lock()
	a.snaps = append(a.snaps, *snap)
	a.mu.Unlock()
	a.done <- struct{}{}
	return nil
}

func (a *recordingArchiver) archived() []Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Snapshot, len(a.snaps))
	copy(out, a.snaps)
	return out
}

// recordingNotifier counts escalation notifications.
type recordingNotifier struct {
	calls atomic.Int64
	done  chan struct{}
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{done: make(chan struct{}, 8)}
}

func (n *recordingNotifier) NotifyHandoff(ctx context.Context, workspaceID, sessionID, firstMessage string) error {
	n.calls.Add(1)
	n.done <- struct{}{}
	return nil
}

func newTestCoordinator(t *testing.T) (*Coordinator, *Registry) {
	t.Helper()
	r := NewRegistry(nil)
	c := NewCoordinator(r, nil, nil, nil)
	t.Cleanup(c.Close)
	return c, r
}

func TestCoordinator_StartHandoff_CreatesSession(t *testing.T) {
	c, r := newTestCoordinator(t)

	outcome, err := c.StartHandoff(t.Context(), "acme", "s-1", nil)
	require.NoError(t, err)

	assert.True(t, outcome.Created)
	assert.True(t, outcome.Escalated)
	assert.Equal(t, StatusPending, outcome.Session.Status)
	assert.Equal(t, 1, r.Len())
}

func TestCoordinator_StartHandoff_WithFirstMessage(t *testing.T) {
	c, _ := newTestCoordinator(t)

	outcome, err := c.StartHandoff(t.Context(), "acme", "s-1", &Message{
		Role:    "user",
		Content: "help me",
	})
	require.NoError(t, err)

	require.NotNil(t, outcome.Message)
	assert.NotEmpty(t, outcome.Message.ID)
	assert.False(t, outcome.Message.Timestamp.IsZero())
	assert.Len(t, outcome.Session.History, 1)
}

func TestCoordinator_StartHandoff_RepeatIsIdempotent(t *testing.T) {
	c, _ := newTestCoordinator(t)

	first, err := c.StartHandoff(t.Context(), "acme", "s-1", nil)
	require.NoError(t, err)
	require.True(t, first.Escalated)

	second, err := c.StartHandoff(t.Context(), "acme", "s-1", nil)
	require.NoError(t, err)

	assert.False(t, second.Created)
	// pending -> pending does not re-queue
	assert.False(t, second.Escalated)
	assert.Equal(t, StatusPending, second.Session.Status)
}

func TestCoordinator_StartHandoff_InProgressStaysInProgress(t *testing.T) {
	c, _ := newTestCoordinator(t)

	_, err := c.StartHandoff(t.Context(), "acme", "s-1", nil)
	require.NoError(t, err)
	_, err = c.Claim(t.Context(), "s-1", "alice", "Alice")
	require.NoError(t, err)

	outcome, err := c.StartHandoff(t.Context(), "acme", "s-1", &Message{Role: "user", Content: "still here"})
	require.NoError(t, err)

	// Status untouched, but the message still lands
	assert.Equal(t, StatusInProgress, outcome.Session.Status)
	assert.False(t, outcome.Escalated)
	require.NotNil(t, outcome.Message)
}

func TestCoordinator_StartHandoff_ClosedSessionRejected(t *testing.T) {
	c, _ := newTestCoordinator(t)

	_, err := c.StartHandoff(t.Context(), "acme", "s-1", nil)
	require.NoError(t, err)
	_, err = c.CloseSession(t.Context(), "s-1")
	require.NoError(t, err)

	_, err = c.StartHandoff(t.Context(), "acme", "s-1", nil)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestCoordinator_StartHandoff_NotifiesOncePerEscalation(t *testing.T) {
	r := NewRegistry(nil)
	notifier := newRecordingNotifier()
	c := NewCoordinator(r, nil, notifier, nil)
	defer c.Close()

	_, err := c.StartHandoff(t.Context(), "acme", "s-1", nil)
	require.NoError(t, err)

	select {
	case <-notifier.done:
	case <-time.After(time.Second):
		t.Fatal("notifier was not called")
	}

	// Repeat handoff is not an escalation and must not re-notify
	_, err = c.StartHandoff(t.Context(), "acme", "s-1", nil)
	require.NoError(t, err)

	select {
	case <-notifier.done:
		t.Fatal("repeat handoff must not notify")
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, int64(1), notifier.calls.Load())
}

func TestCoordinator_AddMessage(t *testing.T) {
	c, _ := newTestCoordinator(t)

	_, err := c.StartHandoff(t.Context(), "acme", "s-1", nil)
	require.NoError(t, err)

	msg, appended, err := c.AddMessage(t.Context(), "s-1", Message{Role: "user", Content: "hi"})
	require.NoError(t, err)
	assert.True(t, appended)
	assert.NotEmpty(t, msg.ID)

	snap, _ := c.registry.Snapshot("s-1")
	assert.Len(t, snap.History, 1)
}

func TestCoordinator_AddMessage_UnknownSession(t *testing.T) {
	c, _ := newTestCoordinator(t)

	_, _, err := c.AddMessage(t.Context(), "missing", Message{Role: "user", Content: "hi"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCoordinator_AddMessage_DuplicateDropped(t *testing.T) {
	c, _ := newTestCoordinator(t)

	_, err := c.StartHandoff(t.Context(), "acme", "s-1", nil)
	require.NoError(t, err)

	msg := Message{ID: "m-1", Role: "user", Content: "hi"}

	_, appended, err := c.AddMessage(t.Context(), "s-1", msg)
	require.NoError(t, err)
	assert.True(t, appended)

	// Redelivery of the same id appends nothing
	_, appended, err = c.AddMessage(t.Context(), "s-1", msg)
	require.NoError(t, err)
	assert.False(t, appended)

	snap, _ := c.registry.Snapshot("s-1")
	assert.Len(t, snap.History, 1)
}

func TestCoordinator_Claim(t *testing.T) {
	c, _ := newTestCoordinator(t)

	_, err := c.StartHandoff(t.Context(), "acme", "s-1", nil)
	require.NoError(t, err)

	snap, err := c.Claim(t.Context(), "s-1", "alice", "Alice")
	require.NoError(t, err)

	assert.Equal(t, StatusInProgress, snap.Status)
	assert.Equal(t, "alice", snap.AssignedAgent)
	assert.Equal(t, "Alice", snap.AgentName)
}

func TestCoordinator_Claim_UnknownSession(t *testing.T) {
	c, _ := newTestCoordinator(t)

	_, err := c.Claim(t.Context(), "missing", "alice", "Alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCoordinator_Claim_AlreadyClaimed(t *testing.T) {
	c, _ := newTestCoordinator(t)

	_, err := c.StartHandoff(t.Context(), "acme", "s-1", nil)
	require.NoError(t, err)

	_, err = c.Claim(t.Context(), "s-1", "alice", "Alice")
	require.NoError(t, err)

	_, err = c.Claim(t.Context(), "s-1", "bob", "Bob")
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestCoordinator_Claim_ConcurrentSingleWinner(t *testing.T) {
	c, _ := newTestCoordinator(t)

	_, err := c.StartHandoff(t.Context(), "acme", "s-1", nil)
	require.NoError(t, err)

	const agents = 20
	var winners atomic.Int64
	var losers atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < agents; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := c.Claim(context.Background(), "s-1", "agent", "Agent")
			if err == nil {
				winners.Add(1)
			} else {
				losers.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), winners.Load())
	assert.Equal(t, int64(agents-1), losers.Load())
}

func TestCoordinator_CloseSession_Archives(t *testing.T) {
	r := NewRegistry(nil)
	archiver := newRecordingArchiver()
	c := NewCoordinator(r, archiver, nil, nil)
	defer c.Close()

	_, err := c.StartHandoff(t.Context(), "acme", "s-1", &Message{Role: "user", Content: "hi"})
	require.NoError(t, err)

	snap, err := c.CloseSession(t.Context(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, snap.Status)

	select {
	case <-archiver.done:
	case <-time.After(time.Second):
		t.Fatal("archiver was not called")
	}

	archived := archiver.archived()
	require.Len(t, archived, 1)
	assert.Equal(t, "s-1", archived[0].ID)
	assert.Equal(t, StatusClosed, archived[0].Status)
	assert.Len(t, archived[0].History, 1)
}

func TestCoordinator_CloseSession_AlreadyClosed(t *testing.T) {
	c, _ := newTestCoordinator(t)

	_, err := c.StartHandoff(t.Context(), "acme", "s-1", nil)
	require.NoError(t, err)

	_, err = c.CloseSession(t.Context(), "s-1")
	require.NoError(t, err)

	_, err = c.CloseSession(t.Context(), "s-1")
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestCoordinator_CloseSession_Unknown(t *testing.T) {
	c, _ := newTestCoordinator(t)

	_, err := c.CloseSession(t.Context(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
