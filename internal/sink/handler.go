package sink

import (
	"context"
	"log/slog"

	"reqlog/internal/requestlog"
)

// EntryWriter accepts entries for storage.
type EntryWriter interface {
	Write(entry *Entry)
}

// Handler is a slog.Handler that stores the END edge of request events.
// Other records, and START edges, are ignored.
type Handler struct {
	w     EntryWriter
	level slog.Leveler
}

// NewHandler returns a Handler writing to w. A nil level means info.
func NewHandler(w EntryWriter, level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Handler{w: w, level: level}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	ev, ok := requestlog.FromRecord(r)
	if !ok || ev.Edge != requestlog.EdgeEnd {
		return nil
	}
	h.w.Write(NewEntry(r.Level, r.Message, ev))
	return nil
}

func (h *Handler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *Handler) WithGroup(string) slog.Handler      { return h }
