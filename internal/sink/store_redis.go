package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisStream is the stream entries are appended to.
const DefaultRedisStream = "reqlog:events"

// RedisStore appends entries to a Redis stream. The stream is trimmed to
// roughly maxLen entries on every write.
type RedisStore struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStore returns a store appending to stream.
func NewRedisStore(client *redis.Client, stream string, maxLen int64) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if stream == "" {
		stream = DefaultRedisStream
	}
	return &RedisStore{client: client, stream: stream, maxLen: maxLen}, nil
}

// WriteBatch pipelines one XADD per entry. Each stream message carries the
// entry ID, direction, status and the whole entry as JSON.
func (s *RedisStore) WriteBatch(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal request log %s: %w", e.ID, err)
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: s.stream,
			MaxLen: s.maxLen,
			Approx: s.maxLen > 0,
			Values: map[string]any{
				"id":          e.ID,
				"direction":   e.Direction,
				"status_code": e.StatusCode,
				"entry":       data,
			},
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append request logs to redis stream %s: %w", s.stream, err)
	}
	return nil
}

// Flush is a no-op since writes are synchronous.
func (s *RedisStore) Flush(context.Context) error { return nil }

// Close is a no-op. The client belongs to the storage layer.
func (s *RedisStore) Close() error { return nil }
