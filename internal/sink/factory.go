package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"reqlog/config"
	"reqlog/internal/storage"
)

// Result holds the sink writer and the connection behind it.
// The caller is responsible for calling Close() to release resources.
type Result struct {
	Writer  *Writer
	Storage storage.Storage
}

// Handler returns a slog.Handler feeding the writer, or nil when the sink
// is disabled.
func (r *Result) Handler(level slog.Leveler) slog.Handler {
	if r == nil || r.Writer == nil {
		return nil
	}
	return NewHandler(r.Writer, level)
}

// Close flushes the writer and closes the connection. Safe to call multiple
// times.
func (r *Result) Close() error {
	var errs []error
	if r.Writer != nil {
		if err := r.Writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("writer close: %w", err))
		}
	}
	if r.Storage != nil {
		if err := r.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
		r.Storage = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// New connects to the configured backend and starts a writer for it.
// Type "none" (or empty) returns a Result without a writer.
func New(ctx context.Context, cfg config.SinkConfig) (*Result, error) {
	if cfg.Type == "" || cfg.Type == config.SinkNone {
		return &Result{}, nil
	}

	store, err := storage.New(ctx, buildStorageConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	logStore, err := createStore(ctx, store, cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Result{
		Writer: NewWriter(logStore, WriterConfig{
			BufferSize:    cfg.BufferSize,
			FlushInterval: cfg.FlushInterval,
		}),
		Storage: store,
	}, nil
}

func buildStorageConfig(cfg config.SinkConfig) storage.Config {
	return storage.Config{
		Type: cfg.Type,
		SQLite: storage.SQLiteConfig{
			Path: cfg.SQLitePath,
		},
		PostgreSQL: storage.PostgreSQLConfig{
			URL:      cfg.PostgreSQLURL,
			MaxConns: cfg.PostgreSQLMaxConns,
		},
		MongoDB: storage.MongoDBConfig{
			URL:      cfg.MongoDBURL,
			Database: cfg.MongoDBDatabase,
		},
		Redis: storage.RedisConfig{
			URL: cfg.RedisURL,
		},
	}
}

func createStore(ctx context.Context, store storage.Storage, cfg config.SinkConfig) (Store, error) {
	switch store.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(store.SQLiteDB(), cfg.RetentionDays)
	case storage.TypePostgreSQL:
		return NewPostgreSQLStore(ctx, store.PostgreSQLPool(), cfg.RetentionDays)
	case storage.TypeMongoDB:
		return NewMongoDBStore(ctx, store.MongoDatabase(), cfg.RetentionDays)
	case storage.TypeRedis:
		return NewRedisStore(store.RedisClient(), cfg.RedisStream, cfg.RedisMaxLen)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", store.Type())
	}
}
