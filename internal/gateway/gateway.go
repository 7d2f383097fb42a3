// ABOUTME: Gateway orchestrator wiring registries, coordinator, transport, and HTTP
// ABOUTME: Owns server lifecycle - listen, serve, graceful shutdown

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/wavedesk/relay/internal/auth"
	"github.com/wavedesk/relay/internal/config"
	"github.com/wavedesk/relay/internal/conn"
	"github.com/wavedesk/relay/internal/notify"
	"github.com/wavedesk/relay/internal/session"
	"github.com/wavedesk/relay/internal/store"
)

// Gateway orchestrates the relay-gateway server components: the websocket
// transport, the session coordinator, the connection registry, and the HTTP
// surface for health and read-only queries.
type Gateway struct {
	config      *config.Config
	sessions    *session.Registry
	coordinator *session.Coordinator
	conns       *conn.Registry
	router      *Router
	store       store.Store
	verifier    *auth.JWTVerifier
	httpServer  *http.Server
	logger      *slog.Logger

	heartbeatInterval time.Duration
}

// New builds a fully wired gateway from configuration. Auth is enabled when
// a jwt_secret is configured; notifications go to the webhook when one is
// configured and to the log otherwise.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	var verifier *auth.JWTVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier, err = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			return nil, fmt.Errorf("creating JWT verifier: %w", err)
		}
	} else {
		logger.Warn("auth disabled: no jwt_secret configured, client identity is trusted")
	}

	var notifier session.Notifier
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Notify.WebhookURL, logger)
	} else {
		notifier = notify.NewLogNotifier(logger)
	}

	sessions := session.NewRegistry(logger)
	conns := conn.NewRegistry(logger)

	g := &Gateway{
		config:            cfg,
		sessions:          sessions,
		coordinator:       session.NewCoordinator(sessions, st, notifier, logger),
		conns:             conns,
		router:            NewRouter(conns, logger),
		store:             st,
		verifier:          verifier,
		logger:            logger.With("component", "gateway"),
		heartbeatInterval: cfg.Agents.HeartbeatInterval,
	}

	mux := http.NewServeMux()
	g.registerRoutes(mux)
	g.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", g.handleWebsocket)
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)
	mux.HandleFunc("GET /api/workspaces/{workspaceID}/sessions", g.requireAuth(g.handleListSessions))
	mux.HandleFunc("GET /api/sessions/{sessionID}/history", g.requireAuth(g.handleSessionHistory))
}

// Run starts the HTTP server (which carries the websocket endpoint) and
// blocks until the context is canceled or the server fails. Returns nil on
// graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown uses a fresh context since the run context is already
// canceled by the time shutdown starts.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server and releases held resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	g.coordinator.Close()

	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK when the archival store answers a ping.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := g.store.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "store unavailable: %v", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d connections)", g.conns.Connections())
}
