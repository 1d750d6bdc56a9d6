package sink

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// SQLite binds at most 999 parameters per statement, so batches are split
// into chunks of maxEntriesPerChunk rows.
const (
	maxSQLiteParams    = 999
	columnsPerEntry    = 13
	maxEntriesPerChunk = maxSQLiteParams / columnsPerEntry
)

// SQLiteStore writes entries to the request_logs table.
type SQLiteStore struct {
	db            *sql.DB
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewSQLiteStore creates the request_logs table if needed and starts the
// retention cleanup when retentionDays is positive.
func NewSQLiteStore(db *sql.DB, retentionDays int) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS request_logs (
			id TEXT PRIMARY KEY,
			timestamp DATETIME NOT NULL,
			direction TEXT NOT NULL,
			method TEXT,
			url TEXT,
			status_code INTEGER DEFAULT 0,
			response_time_ms INTEGER DEFAULT 0,
			level TEXT,
			message TEXT,
			request JSON,
			response JSON,
			notes JSON,
			error TEXT
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create request_logs table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_request_logs_timestamp ON request_logs(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_request_logs_direction ON request_logs(direction)",
		"CREATE INDEX IF NOT EXISTS idx_request_logs_status ON request_logs(status_code)",
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	store := &SQLiteStore{
		db:            db,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}
	if retentionDays > 0 {
		go RunCleanupLoop(store.stopCleanup, store.cleanup)
	}
	return store, nil
}

// WriteBatch inserts entries, skipping IDs that already exist.
func (s *SQLiteStore) WriteBatch(ctx context.Context, entries []*Entry) error {
	for i := 0; i < len(entries); i += maxEntriesPerChunk {
		chunk := entries[i:min(i+maxEntriesPerChunk, len(entries))]

		placeholders := make([]string, len(chunk))
		values := make([]any, 0, len(chunk)*columnsPerEntry)
		for j, e := range chunk {
			placeholders[j] = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
			values = append(values,
				e.ID,
				e.Timestamp.UTC().Format(time.RFC3339Nano),
				e.Direction,
				e.Method,
				e.URL,
				e.StatusCode,
				e.ResponseTimeMS,
				e.Level,
				e.Message,
				marshalJSON(e.Request, e.ID),
				marshalJSON(e.Response, e.ID),
				marshalJSON(e.Notes, e.ID),
				nullString(e.Error),
			)
		}

		query := `INSERT OR IGNORE INTO request_logs (id, timestamp, direction, method, url, status_code,
			response_time_ms, level, message, request, response, notes, error) VALUES ` +
			strings.Join(placeholders, ",")

		if _, err := s.db.ExecContext(ctx, query, values...); err != nil {
			return fmt.Errorf("failed to insert request logs chunk %d: %w", i/maxEntriesPerChunk, err)
		}
	}
	return nil
}

// Flush is a no-op since writes are synchronous.
func (s *SQLiteStore) Flush(context.Context) error { return nil }

// Close stops the cleanup goroutine. The database belongs to the storage
// layer and stays open.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopCleanup) })
	return nil
}

func (s *SQLiteStore) cleanup() {
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays).UTC().Format(time.RFC3339Nano)

	result, err := s.db.Exec("DELETE FROM request_logs WHERE timestamp < ?", cutoff)
	if err != nil {
		slog.Error("failed to clean up old request logs", "error", err)
		return
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		slog.Info("cleaned up old request logs", "deleted", n)
	}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
