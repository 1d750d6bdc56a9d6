// Package sink persists the END events of request logs to a database or a
// Redis stream. Events are masked before they reach the sink, so stores
// only ever see redacted payloads.
package sink

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"reqlog/internal/requestlog"
)

// Store writes batches of entries to a backend.
// Implementations must be safe for concurrent use.
type Store interface {
	// WriteBatch writes multiple entries. It is called by the Writer when
	// it flushes buffered entries.
	WriteBatch(ctx context.Context, entries []*Entry) error

	// Flush forces any pending writes to complete.
	Flush(ctx context.Context) error

	// Close releases resources held by the store. Connections owned by the
	// storage layer stay open.
	Close() error
}

// Entry is one finished request as stored by a sink.
type Entry struct {
	ID        string    `json:"id" bson:"_id"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`

	Direction      string `json:"direction" bson:"direction"`
	Method         string `json:"method,omitempty" bson:"method,omitempty"`
	URL            string `json:"url,omitempty" bson:"url,omitempty"`
	StatusCode     int    `json:"status_code,omitempty" bson:"status_code,omitempty"`
	ResponseTimeMS int64  `json:"response_time_ms" bson:"response_time_ms"`
	Level          string `json:"level" bson:"level"`
	Message        string `json:"msg" bson:"msg"`

	Request  map[string]any `json:"request,omitempty" bson:"request,omitempty"`
	Response map[string]any `json:"response,omitempty" bson:"response,omitempty"`
	Notes    any            `json:"notes,omitempty" bson:"notes,omitempty"`
	Error    string         `json:"error,omitempty" bson:"error,omitempty"`
}

// NewEntry builds the entry for a request event. Payloads are converted to
// plain JSON values so every backend can encode them.
func NewEntry(level slog.Level, msg string, ev *requestlog.Event) *Entry {
	e := &Entry{
		ID:             uuid.NewString(),
		Timestamp:      ev.Start.UTC(),
		Direction:      ev.Direction.String(),
		ResponseTimeMS: ev.ResponseTimeMS(),
		Level:          level.String(),
		Message:        msg,
		Request:        plainMap(ev.Request),
		Response:       plainMap(ev.Response),
		Notes:          plain(ev.Notes),
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if ev.Err != nil {
		e.Error = ev.Err.Error()
	}

	if m, ok := ev.Request["method"].(string); ok {
		e.Method = m
	}
	if u, ok := ev.Request["url"].(string); ok {
		e.URL = u
	} else if p, ok := ev.Request["path"].(string); ok {
		e.URL = p
	}
	if code, ok := ev.Response["status_code"].(int); ok {
		e.StatusCode = code
	}
	return e
}

func plain(v any) any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		slog.Debug("request log value is not JSON encodable", "error", err)
		return nil
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

func plainMap(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out, _ := plain(m).(map[string]any)
	return out
}

// marshalJSON encodes v for a JSON column. Nil stays SQL NULL.
func marshalJSON(v any, id string) any {
	if v == nil {
		return nil
	}
	if m, ok := v.(map[string]any); ok && m == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		slog.Warn("failed to marshal request log data", "error", err, "id", id)
		return nil
	}
	return string(b)
}
