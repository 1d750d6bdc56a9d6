package logging

import (
	"context"
	"errors"
	"log/slog"

	"reqlog/internal/requestlog"
)

// EdgeEndFilter passes every record except request events on the START
// edge. Human-readable outputs use it to print one entry per request.
type EdgeEndFilter struct {
	next slog.Handler
}

func NewEdgeEndFilter(next slog.Handler) *EdgeEndFilter {
	return &EdgeEndFilter{next: next}
}

func (f *EdgeEndFilter) Enabled(ctx context.Context, level slog.Level) bool {
	return f.next.Enabled(ctx, level)
}

func (f *EdgeEndFilter) Handle(ctx context.Context, r slog.Record) error {
	if ev, ok := requestlog.FromRecord(r); ok && ev.Edge != requestlog.EdgeEnd {
		return nil
	}
	return f.next.Handle(ctx, r)
}

func (f *EdgeEndFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &EdgeEndFilter{next: f.next.WithAttrs(attrs)}
}

func (f *EdgeEndFilter) WithGroup(name string) slog.Handler {
	return &EdgeEndFilter{next: f.next.WithGroup(name)}
}

// Fanout sends each record to every handler that accepts its level.
type Fanout struct {
	handlers []slog.Handler
}

func NewFanout(handlers ...slog.Handler) *Fanout {
	return &Fanout{handlers: handlers}
}

func (f *Fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *Fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &Fanout{handlers: handlers}
}

func (f *Fanout) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &Fanout{handlers: handlers}
}
