// ABOUTME: Session state machine - accepts intents, validates, mutates the registry
// ABOUTME: Claim is the single mutual-exclusion point; losers get a result, not a fault

package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wavedesk/relay/internal/dedupe"
)

// Intent results. These mark expected negative outcomes - a lost claim race
// or a message to an unknown session is routine traffic, not a bug.
var (
	// ErrNotFound means the intent referenced a session that does not exist.
	ErrNotFound = errors.New("session not found")
	// ErrNotPending means a claim found the session already claimed or
	// otherwise not claimable. This is the race-loser outcome.
	ErrNotPending = errors.New("session not available")
	// ErrSessionClosed means the intent targeted a terminally closed session.
	ErrSessionClosed = errors.New("session closed")
)

// Archiver receives a durable copy of a session when it closes. Calls are
// fire-and-forget from the coordinator's perspective; failures are logged
// and never roll back the in-memory transition.
type Archiver interface {
	ArchiveSession(ctx context.Context, snap *Snapshot) error
}

// Notifier is told once per handoff escalation so an external channel
// (email, SMS, webhook) can page the workspace's agents.
type Notifier interface {
	NotifyHandoff(ctx context.Context, workspaceID, sessionID, firstMessage string) error
}

const (
	// seenTTL bounds how long message ids are remembered for idempotent
	// append. Re-deliveries from transport retries arrive well inside it.
	seenTTL     = 5 * time.Minute
	seenMaxSize = 100_000

	// collaboratorTimeout caps fire-and-forget archive and notify calls.
	collaboratorTimeout = 5 * time.Second
)

// Coordinator owns every mutation of session status and history. Intents
// come in from the transport layer, get validated against current state,
// and produce snapshots the caller broadcasts through the room router.
type Coordinator struct {
	registry *Registry
	seen     *dedupe.Cache
	archiver Archiver
	notifier Notifier
	logger   *slog.Logger
}

// NewCoordinator wires the coordinator to its registry and collaborators.
// archiver and notifier may be nil for tests.
func NewCoordinator(registry *Registry, archiver Archiver, notifier Notifier, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		registry: registry,
		seen:     dedupe.New(seenTTL, seenMaxSize),
		archiver: archiver,
		notifier: notifier,
		logger:   logger.With("component", "coordinator"),
	}
}

// Close releases the coordinator's background resources.
func (c *Coordinator) Close() {
	c.seen.Close()
}

// HandoffOutcome reports what StartHandoff did.
type HandoffOutcome struct {
	Session Snapshot
	// Created is true when the session id was previously unseen.
	Created bool
	// Escalated is true when this intent moved the session into the pending
	// queue (creation counts). A handoff on an already-claimed session is
	// accepted but does not re-queue it.
	Escalated bool
	// Message is the appended first message, if one was supplied and new.
	Message *Message
}

// StartHandoff escalates a session to the agent queue, creating it when
// unseen. The optional first message is appended to the transcript. The
// notifier fires once per escalation, outside the session lock.
func (c *Coordinator) StartHandoff(ctx context.Context, workspaceID, sessionID string, first *Message) (*HandoffOutcome, error) {
	s, created := c.registry.GetOrCreate(sessionID, workspaceID)

	s.mu.Lock()
	if s.status == StatusClosed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}

	escalated := created
	if !created && s.status.canTransition(StatusPending) {
		escalated = escalated || s.status == StatusBot
		s.status = StatusPending
	}

	var appended *Message
	if first != nil {
		if msg, ok := c.appendLocked(s, *first); ok {
			appended = &msg
		}
	}
	s.updatedAt = time.Now()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if escalated {
		c.logger.Info("session escalated to agent queue",
			"session_id", sessionID,
			"workspace_id", workspaceID,
			"created", created,
		)
		c.notifyHandoff(snap)
	}

	return &HandoffOutcome{
		Session:   snap,
		Created:   created,
		Escalated: escalated,
		Message:   appended,
	}, nil
}

// AddMessage appends a message to a session transcript. Appends are
// idempotent on message id: a re-delivered message returns appended=false
// and leaves history untouched. Status never changes.
func (c *Coordinator) AddMessage(ctx context.Context, sessionID string, msg Message) (Message, bool, error) {
	s, ok := c.registry.Get(sessionID)
	if !ok {
		return Message{}, false, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, appended := c.appendLocked(s, msg)
	if appended {
		s.updatedAt = time.Now()
	}
	return stored, appended, nil
}

// appendLocked fills in id/timestamp defaults, checks the seen cache, and
// appends. Must be called with s.mu held.
func (c *Coordinator) appendLocked(s *Session, msg Message) (Message, bool) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if c.seen.CheckAndMark(s.ID + "|" + msg.ID) {
		c.logger.Debug("duplicate message dropped",
			"session_id", s.ID,
			"message_id", msg.ID,
		)
		return msg, false
	}
	s.history = append(s.history, msg)
	return msg, true
}

// Claim attempts to take exclusive ownership of a pending session for the
// given agent. The status check and assignment happen atomically under the
// session lock: the first claim processed wins, every other concurrent
// claim observes in_progress and receives ErrNotPending.
func (c *Coordinator) Claim(ctx context.Context, sessionID, agentID, agentName string) (Snapshot, error) {
	s, ok := c.registry.Get(sessionID)
	if !ok {
		return Snapshot{}, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusPending {
		return Snapshot{}, ErrNotPending
	}
	s.status = StatusInProgress
	s.assignedAgentID = agentID
	s.assignedAgent = agentName
	s.updatedAt = time.Now()

	c.logger.Info("session claimed",
		"session_id", sessionID,
		"agent_id", agentID,
	)
	return s.snapshotLocked(), nil
}

// CloseSession moves a session to the terminal closed state and hands a
// copy to the archiver. Closing an already-closed session is rejected.
func (c *Coordinator) CloseSession(ctx context.Context, sessionID string) (Snapshot, error) {
	s, ok := c.registry.Get(sessionID)
	if !ok {
		return Snapshot{}, ErrNotFound
	}

	s.mu.Lock()
	if !s.status.canTransition(StatusClosed) {
		s.mu.Unlock()
		return Snapshot{}, ErrSessionClosed
	}
	s.status = StatusClosed
	s.updatedAt = time.Now()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	c.logger.Info("session closed",
		"session_id", sessionID,
		"workspace_id", snap.WorkspaceID,
	)
	c.archive(snap)
	return snap, nil
}

// archive hands the snapshot to the archiver on a detached timeout context
// so a slow store can never block or fail the close transition.
func (c *Coordinator) archive(snap Snapshot) {
	if c.archiver == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
		defer cancel()

		if err := c.archiver.ArchiveSession(ctx, &snap); err != nil {
			c.logger.Error("failed to archive session",
				"error", err,
				"session_id", snap.ID,
			)
		}
	}()
}

// notifyHandoff pages the notifier once per escalation, fire-and-forget.
func (c *Coordinator) notifyHandoff(snap Snapshot) {
	if c.notifier == nil {
		return
	}
	firstMessage := ""
	if len(snap.History) > 0 {
		firstMessage = snap.History[0].Content
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
		defer cancel()

		if err := c.notifier.NotifyHandoff(ctx, snap.WorkspaceID, snap.ID, firstMessage); err != nil {
			c.logger.Error("handoff notification failed",
				"error", err,
				"session_id", snap.ID,
				"workspace_id", snap.WorkspaceID,
			)
		}
	}()
}
