// ABOUTME: Tests for room-scoped broadcast routing.
// ABOUTME: Covers fanout isolation between rooms and drop behavior for slow members.

package gateway

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wavedesk/relay/internal/conn"
	"github.com/wavedesk/relay/internal/protocol"
)

// testSender collects envelopes; set full to simulate a saturated buffer.
type testSender struct {
	mu   sync.Mutex
	sent []*protocol.Envelope
	full bool
}

func (s *testSender) Send(env *protocol.Envelope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return false
	}
	s.sent = append(s.sent, env)
	return true
}

func (s *testSender) events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, env := range s.sent {
		out[i] = env.Event
	}
	return out
}

func TestRouter_ToSession(t *testing.T) {
	conns := conn.NewRegistry(nil)
	router := NewRouter(conns, nil)

	inRoom := &testSender{}
	outside := &testSender{}
	conns.Bind("c-1", inRoom)
	conns.Bind("c-2", outside)
	conns.JoinSessionRoom("s-1", "c-1")

	router.ToSession("s-1", sessionClosedEvent("s-1"))

	assert.Equal(t, []string{protocol.EventSessionClosed}, inRoom.events())
	assert.Empty(t, outside.events())
}

func TestRouter_ToDashboard(t *testing.T) {
	conns := conn.NewRegistry(nil)
	router := NewRouter(conns, nil)

	acme := &testSender{}
	other := &testSender{}
	conns.Bind("c-1", acme)
	conns.Bind("c-2", other)
	conns.JoinDashboardRoom("acme", "c-1")
	conns.JoinDashboardRoom("other", "c-2")

	router.ToDashboard("acme", pendingSessionsEvent("acme", nil))

	assert.Len(t, acme.events(), 1)
	assert.Empty(t, other.events())
}

func TestRouter_ToConnection(t *testing.T) {
	conns := conn.NewRegistry(nil)
	router := NewRouter(conns, nil)

	s := &testSender{}
	conns.Bind("c-1", s)

	router.ToConnection("c-1", claimResultEvent("s-1", true, "alice", ""))
	// Unknown connection is a silent no-op
	router.ToConnection("ghost", claimResultEvent("s-1", true, "alice", ""))

	assert.Equal(t, []string{protocol.EventClaimResult}, s.events())
}

func TestRouter_SlowMemberDoesNotBlockRoom(t *testing.T) {
	conns := conn.NewRegistry(nil)
	router := NewRouter(conns, nil)

	healthy := &testSender{}
	slow := &testSender{full: true}
	conns.Bind("c-1", healthy)
	conns.Bind("c-2", slow)
	conns.JoinSessionRoom("s-1", "c-1")
	conns.JoinSessionRoom("s-1", "c-2")

	router.ToSession("s-1", sessionClosedEvent("s-1"))

	// Healthy member still got the event; slow one just missed it
	assert.Len(t, healthy.events(), 1)
	assert.Empty(t, slow.events())
}

func TestRouter_EmptyRoom(t *testing.T) {
	conns := conn.NewRegistry(nil)
	router := NewRouter(conns, nil)

	// No members, no panic
	router.ToSession("empty", sessionClosedEvent("empty"))
	router.ToDashboard("empty", pendingSessionsEvent("empty", nil))
}
