package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const insertPostgreSQL = `
	INSERT INTO request_logs (id, timestamp, direction, method, url, status_code,
		response_time_ms, level, message, request, response, notes, error)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (id) DO NOTHING`

// PostgreSQLStore writes entries to the request_logs table with JSONB
// payload columns.
type PostgreSQLStore struct {
	pool          *pgxpool.Pool
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewPostgreSQLStore creates the request_logs table if needed and starts
// the retention cleanup when retentionDays is positive.
func NewPostgreSQLStore(ctx context.Context, pool *pgxpool.Pool, retentionDays int) (*PostgreSQLStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS request_logs (
			id UUID PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			direction TEXT NOT NULL,
			method TEXT,
			url TEXT,
			status_code INTEGER DEFAULT 0,
			response_time_ms BIGINT DEFAULT 0,
			level TEXT,
			message TEXT,
			request JSONB,
			response JSONB,
			notes JSONB,
			error TEXT
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create request_logs table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_request_logs_timestamp ON request_logs(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_request_logs_status ON request_logs(status_code)",
		"CREATE INDEX IF NOT EXISTS idx_request_logs_request_gin ON request_logs USING GIN (request)",
	}
	for _, idx := range indexes {
		if _, err := pool.Exec(ctx, idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	store := &PostgreSQLStore{
		pool:          pool,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}
	if retentionDays > 0 {
		go RunCleanupLoop(store.stopCleanup, store.cleanup)
	}
	return store, nil
}

// WriteBatch sends all inserts in one round trip inside a transaction.
func (s *PostgreSQLStore) WriteBatch(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(insertPostgreSQL,
			e.ID, e.Timestamp, e.Direction, e.Method, e.URL, e.StatusCode,
			e.ResponseTimeMS, e.Level, e.Message,
			marshalJSON(e.Request, e.ID),
			marshalJSON(e.Response, e.ID),
			marshalJSON(e.Notes, e.ID),
			nullString(e.Error),
		)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert request logs: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Flush is a no-op since writes are synchronous.
func (s *PostgreSQLStore) Flush(context.Context) error { return nil }

// Close stops the cleanup goroutine. The pool belongs to the storage layer.
func (s *PostgreSQLStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopCleanup) })
	return nil
}

func (s *PostgreSQLStore) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	result, err := s.pool.Exec(ctx, "DELETE FROM request_logs WHERE timestamp < $1", cutoff)
	if err != nil {
		slog.Error("failed to clean up old request logs", "error", err)
		return
	}
	if n := result.RowsAffected(); n > 0 {
		slog.Info("cleaned up old request logs", "deleted", n)
	}
}
