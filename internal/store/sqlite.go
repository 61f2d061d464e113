// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite.
// ABOUTME: Provides output/status persistence with automatic schema creation.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
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

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
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

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS command_outputs (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			command TEXT NOT NULL,
			output TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_outputs_agent_command
			ON command_outputs(agent_id, command, created_at);

		CREATE TABLE IF NOT EXISTS agent_status (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_status_agent
			ON agent_status(agent_id, created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// RecordOutput stores one command output for an agent.
func (s *SQLiteStore) RecordOutput(ctx context.Context, agentID, command, output string, at time.Time) error {
	query := `
		INSERT INTO command_outputs (id, agent_id, command, output, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.New().String(), agentID, command, output, at.UTC())
	if err != nil {
		return fmt.Errorf("inserting command output: %w", err)
	}
	return nil
}

// RecordStatus stores a connected/disconnected transition for an agent.
func (s *SQLiteStore) RecordStatus(ctx context.Context, agentID string, status AgentStatus, at time.Time) error {
	query := `
		INSERT INTO agent_status (id, agent_id, status, created_at)
		VALUES (?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.New().String(), agentID, string(status), at.UTC())
	if err != nil {
		return fmt.Errorf("inserting agent status: %w", err)
	}
	return nil
}

// RecentOutputs returns stored outputs newest first, optionally filtered
// by agent and/or command. limit caps the result; values outside 1-500
// default to 50.
func (s *SQLiteStore) RecentOutputs(ctx context.Context, agentID, command string, limit int) ([]OutputRecord, error) {
	if limit < 1 || limit > 500 {
		limit = 50
	}

	query := `
		SELECT id, agent_id, command, output, created_at
		FROM command_outputs
		WHERE (? = '' OR agent_id = ?)
		  AND (? = '' OR command = ?)
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, agentID, agentID, command, command, limit)
	if err != nil {
		return nil, fmt.Errorf("querying command outputs: %w", err)
	}
	defer rows.Close()

	var records []OutputRecord
	for rows.Next() {
		var r OutputRecord
		if err := rows.Scan(&r.ID, &r.AgentID, &r.Command, &r.Output, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning command output: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// StatusHistory returns status transitions newest first, optionally
// filtered by agent.
func (s *SQLiteStore) StatusHistory(ctx context.Context, agentID string, limit int) ([]StatusRecord, error) {
	if limit < 1 || limit > 500 {
		limit = 50
	}

	query := `
		SELECT id, agent_id, status, created_at
		FROM agent_status
		WHERE (? = '' OR agent_id = ?)
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, agentID, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying agent status: %w", err)
	}
	defer rows.Close()

	var records []StatusRecord
	for rows.Next() {
		var r StatusRecord
		var status string
		if err := rows.Scan(&r.ID, &r.AgentID, &status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning agent status: %w", err)
		}
		r.Status = AgentStatus(status)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
