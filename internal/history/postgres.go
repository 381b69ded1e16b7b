package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by a PostgreSQL conversation_entries table.
// All methods are safe for concurrent use.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore establishes a connection pool to the PostgreSQL database at
// dsn and runs Migrate to ensure the required table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("history: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the conversation_entries table and its indexes if they do
// not already exist. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS conversation_entries (
		    id         BIGSERIAL PRIMARY KEY,
		    session_id TEXT        NOT NULL,
		    role       TEXT        NOT NULL,
		    content    TEXT        NOT NULL,
		    tool_name  TEXT        NOT NULL DEFAULT '',
		    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS conversation_entries_session_idx
		    ON conversation_entries (session_id, created_at);`

	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("history: create schema: %w", err)
	}
	return nil
}

// Append implements Store.
func (s *PostgresStore) Append(ctx context.Context, e Entry) error {
	const q = `
		INSERT INTO conversation_entries (session_id, role, content, tool_name, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.pool.Exec(ctx, q, e.SessionID, e.Role, e.Content, e.ToolName, created)
	if err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

// Recent implements Store.
func (s *PostgresStore) Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	q := `
		SELECT session_id, role, content, tool_name, created_at
		FROM   conversation_entries
		WHERE  session_id = $1
		ORDER  BY created_at DESC, id DESC`

	args := []any{sessionID}
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.SessionID, &e.Role, &e.Content, &e.ToolName, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("history: scan rows: %w", err)
	}

	// Rows arrive newest first; callers expect chronological order.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Clear implements Store.
func (s *PostgresStore) Clear(ctx context.Context, sessionID string) error {
	const q = `DELETE FROM conversation_entries WHERE session_id = $1`
	if _, err := s.pool.Exec(ctx, q, sessionID); err != nil {
		return fmt.Errorf("history: clear: %w", err)
	}
	return nil
}

// Ping checks database connectivity. Used as a readiness check.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
