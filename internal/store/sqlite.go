// ABOUTME: SQLite implementation of the archival Store using modernc.org/sqlite
// ABOUTME: Upserts whole transcripts in one transaction, keyed by session id

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/wavedesk/relay/internal/session"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a SQLite store at the given path. The schema is
// created if it doesn't exist; parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			status TEXT NOT NULL,
			assigned_agent_id TEXT,
			agent_name TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_workspace
			ON sessions(workspace_id, status);

		CREATE TABLE IF NOT EXISTS session_messages (
			id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			agent_name TEXT,
			created_at DATETIME NOT NULL,
			seq INTEGER NOT NULL,
			PRIMARY KEY (session_id, id),
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		);

		CREATE INDEX IF NOT EXISTS idx_session_messages_order
			ON session_messages(session_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// ArchiveSession upserts the session row and its full transcript in one
// transaction. Idempotent: archiving the same snapshot twice converges to
// the same rows, and message order is preserved via an explicit sequence
// column rather than timestamps, which may collide.
func (s *SQLiteStore) ArchiveSession(ctx context.Context, snap *session.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning archive transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, workspace_id, status, assigned_agent_id, agent_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			assigned_agent_id = excluded.assigned_agent_id,
			agent_name = excluded.agent_name,
			updated_at = excluded.updated_at
	`, snap.ID, snap.WorkspaceID, string(snap.Status), nullable(snap.AssignedAgent), nullable(snap.AgentName), snap.CreatedAt, snap.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting session %s: %w", snap.ID, err)
	}

	for i, msg := range snap.History {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO session_messages (id, session_id, role, content, agent_name, created_at, seq)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id, id) DO UPDATE SET
				content = excluded.content,
				seq = excluded.seq
		`, msg.ID, snap.ID, msg.Role, msg.Content, nullable(msg.AgentName), msg.Timestamp, i)
		if err != nil {
			return fmt.Errorf("upserting message %s: %w", msg.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing archive: %w", err)
	}

	s.logger.Debug("session archived",
		"session_id", snap.ID,
		"workspace_id", snap.WorkspaceID,
		"messages", len(snap.History),
	)
	return nil
}

// GetSession returns one archived session record.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, status, assigned_agent_id, agent_name, created_at, updated_at
		FROM sessions WHERE id = ?
	`, id)
	return scanSession(row)
}

// GetSessionHistory returns the archived transcript in insertion order.
// A limit of 0 means no limit.
func (s *SQLiteStore) GetSessionHistory(ctx context.Context, sessionID string, limit int) ([]*MessageRecord, error) {
	query := `
		SELECT id, session_id, role, content, agent_name, created_at
		FROM session_messages
		WHERE session_id = ?
		ORDER BY seq ASC
	`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []*MessageRecord
	for rows.Next() {
		var m MessageRecord
		var agentName sql.NullString
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &agentName, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.AgentName = agentName.String
		out = append(out, &m)
	}
	return out, rows.Err()
}

// ListSessions returns archived sessions for a workspace, newest first.
// Empty status matches everything; a limit of 0 means no limit.
func (s *SQLiteStore) ListSessions(ctx context.Context, workspaceID, status string, limit int) ([]*SessionRecord, error) {
	query := `
		SELECT id, workspace_id, status, assigned_agent_id, agent_name, created_at, updated_at
		FROM sessions
		WHERE workspace_id = ?
	`
	args := []any{workspaceID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY updated_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []*SessionRecord
	for rows.Next() {
		rec, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row *sql.Row) (*SessionRecord, error) {
	rec, err := scanSessionRows(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return rec, err
}

func scanSessionRows(row rowScanner) (*SessionRecord, error) {
	var rec SessionRecord
	var assigned, agentName sql.NullString
	err := row.Scan(&rec.ID, &rec.WorkspaceID, &rec.Status, &assigned, &agentName, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.AssignedAgent = assigned.String
	rec.AgentName = agentName.String
	return &rec, nil
}
