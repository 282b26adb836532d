// Package db provides the optional Postgres audit trail of admin commands and viewer
// trigger attempts.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// Command event kinds.
const (
	KindReload  = "reload"
	KindEnable  = "enable"
	KindDisable = "disable"
	KindTrigger = "trigger"
)

// CommandEvent is one audited chat command.
type CommandEvent struct {
	SessionID  string    `json:"session_id"`
	Username   string    `json:"username"`
	Message    string    `json:"message"`
	Kind       string    `json:"kind"`
	Expression string    `json:"expression,omitempty"`
	Outcome    string    `json:"outcome"`
	CreatedAt  time.Time `json:"created_at"`
}

// Connect opens a Postgres connection pool for dsn.
func Connect(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("db dsn empty")
	}
	return sql.Open("pgx", dsn)
}

// Migrate applies idempotent schema changes.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS command_events (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL,
			message TEXT NOT NULL,
			kind TEXT NOT NULL,
			expression_key TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_command_events_created_at ON command_events(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_command_events_session ON command_events(session_id, created_at DESC)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Store reads and writes command events.
type Store struct {
	db *sql.DB
}

// NewStore wraps an already migrated database.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Close closes the underlying pool.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// RecordCommand inserts ev. A zero CreatedAt uses the database clock.
func (s *Store) RecordCommand(ctx context.Context, ev CommandEvent) error {
	var created any
	if !ev.CreatedAt.IsZero() {
		created = ev.CreatedAt.UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO command_events (session_id, username, message, kind, expression_key, outcome, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
		ev.SessionID, ev.Username, ev.Message, ev.Kind, ev.Expression, ev.Outcome, created)
	if err != nil {
		return fmt.Errorf("insert command event: %w", err)
	}
	return nil
}

// RecentCommands returns the newest events first, at most limit (default 50).
func (s *Store) RecentCommands(ctx context.Context, limit int) ([]CommandEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, username, message, kind, expression_key, outcome, created_at
		 FROM command_events ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query command events: %w", err)
	}
	defer rows.Close()
	var out []CommandEvent
	for rows.Next() {
		var ev CommandEvent
		if err := rows.Scan(&ev.SessionID, &ev.Username, &ev.Message, &ev.Kind, &ev.Expression, &ev.Outcome, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
