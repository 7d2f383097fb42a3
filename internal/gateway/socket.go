// ABOUTME: Websocket transport - upgrade, envelope framing, heartbeat, teardown
// ABOUTME: One reader and one writer goroutine per connection, 64-event outbound buffer

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/wavedesk/relay/internal/auth"
	"github.com/wavedesk/relay/internal/protocol"
)

// outboundBuffer is the per-connection send queue depth. A full queue means
// the client is too slow; further events are dropped rather than blocking
// the broadcasting goroutine.
const outboundBuffer = 64

// connState is the per-connection transport state. The embedded out channel
// makes it the conn.Sender registered for this connection.
type connState struct {
	id     string
	claims *auth.AgentClaims
	out    chan *protocol.Envelope
	cancel context.CancelFunc
	once   sync.Once
}

// Send queues an envelope for the write loop. Non-blocking: returns false
// when the outbound buffer is full and the event was dropped.
func (st *connState) Send(env *protocol.Envelope) bool {
	select {
	case st.out <- env:
		return true
	default:
		return false
	}
}

// handleWebsocket upgrades the request and runs the connection until either
// side closes. When auth is configured a valid bearer token is required at
// upgrade time; identity claims ride on the connection state afterwards.
func (g *Gateway) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	var claims *auth.AgentClaims
	if g.verifier != nil {
		token := auth.BearerFromRequest(r)
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		var err error
		claims, err = g.verifier.Verify(token)
		if err != nil {
			g.logger.Warn("websocket upgrade rejected", "error", err)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	st := &connState{
		id:     uuid.New().String(),
		claims: claims,
		out:    make(chan *protocol.Envelope, outboundBuffer),
		cancel: cancel,
	}
	g.conns.Bind(st.id, st)

	g.logger.Info("connection opened",
		"connection_id", st.id,
		"remote", r.RemoteAddr,
		"authenticated", claims != nil,
	)

	go g.writeLoop(ctx, ws, st)
	go g.heartbeatLoop(ctx, st)
	g.readLoop(ctx, ws, st)
}

// readLoop consumes inbound frames until the connection dies. A malformed
// frame is dropped with a debug log; it never tears the connection down.
func (g *Gateway) readLoop(ctx context.Context, ws *websocket.Conn, st *connState) {
	defer g.teardown(ws, st)

	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure &&
				!errors.Is(err, context.Canceled) {
				g.logger.Debug("read loop ended", "connection_id", st.id, "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			g.logger.Debug("malformed envelope dropped", "connection_id", st.id)
			continue
		}

		payload, err := protocol.Decode(&env)
		if err != nil {
			g.logger.Debug("invalid event dropped",
				"connection_id", st.id,
				"event", env.Event,
				"error", err,
			)
			continue
		}

		g.handleEvent(ctx, st, &env, payload)
	}
}

// writeLoop drains the outbound queue onto the socket.
func (g *Gateway) writeLoop(ctx context.Context, ws *websocket.Conn, st *connState) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-st.out:
			data, err := json.Marshal(env)
			if err != nil {
				g.logger.Error("failed to encode outbound event",
					"event", env.Event,
					"error", err,
				)
				continue
			}
			if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
				st.cancel()
				return
			}
		}
	}
}

// heartbeatLoop pushes periodic heartbeat events to keep intermediaries from
// idling the connection out. Responses are acknowledged by the lifecycle
// handler and otherwise ignored.
func (g *Gateway) heartbeatLoop(ctx context.Context, st *connState) {
	ticker := time.NewTicker(g.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			st.Send(heartbeatEvent(now))
		}
	}
}

// teardown runs the once-only disconnect path: cancel the loops, purge the
// registries, close the socket.
func (g *Gateway) teardown(ws *websocket.Conn, st *connState) {
	st.once.Do(func() {
		st.cancel()
		g.handleDisconnect(st)
		ws.Close(websocket.StatusNormalClosure, "")
	})
}
