package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"reqlog/internal/metrics"
	"reqlog/internal/requestlog"
)

const (
	truncationMargin = 50
	truncatedSuffix  = " **TRUNCATED**"
)

// JSONOptions configure a JSONHandler.
type JSONOptions struct {
	Level      slog.Leveler
	LoggerName string

	// DefaultExtra is merged into every line before any other field.
	DefaultExtra map[string]any

	// MaxDataToLog caps the line length. Zero means no limit. Longer lines
	// get max_data_exceeded and a truncated response data field.
	MaxDataToLog int
}

// groupedAttr is an attribute added with WithAttrs, with the groups open at
// the time.
type groupedAttr struct {
	groups []string
	attr   slog.Attr
}

// JSONHandler writes one JSON object per line, in the layout expected by log
// aggregation backends. Request events are expanded into top-level fields.
type JSONHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	opts   JSONOptions
	attrs  []groupedAttr
	groups []string
}

// NewJSONHandler creates a JSONHandler writing to out.
func NewJSONHandler(out io.Writer, opts JSONOptions) *JSONHandler {
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}
	return &JSONHandler{mu: &sync.Mutex{}, out: out, opts: opts}
}

func (h *JSONHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *JSONHandler) Handle(_ context.Context, r slog.Record) error {
	var obj object
	for _, k := range slices.Sorted(maps.Keys(h.opts.DefaultExtra)) {
		obj.set(k, h.opts.DefaultExtra[k])
	}

	if !r.Time.IsZero() {
		obj.set("time", r.Time.Format(time.RFC3339Nano))
	}
	obj.set("level", r.Level.String())
	if h.opts.LoggerName != "" {
		obj.set("logger", h.opts.LoggerName)
	}
	obj.set("msg", r.Message)

	ev, isEvent := requestlog.FromRecord(r)
	if isEvent {
		var end any
		if !ev.End.IsZero() {
			end = ev.EndTime()
		}
		obj.set("start_time", ev.StartTime())
		obj.set("end_time", end)
		obj.set("response_time_ms", ev.ResponseTimeMS())
		obj.set("request", ev.Request)
		obj.set("response", ev.Response)
		obj.set("notes", ev.Notes)
		obj.set("direction", ev.Direction.String())
		obj.set("edge", ev.Edge.String())
		if ev.Err != nil {
			obj.set("error", ev.Err.Error())
		}
	}

	for _, ga := range h.attrs {
		setAttr(&obj, ga.groups, ga.attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		if !requestlog.IsEventAttr(a) {
			setAttr(&obj, h.groups, a)
		}
		return true
	})

	line, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to encode log record: %w", err)
	}

	if limit := h.opts.MaxDataToLog; limit > 0 && len(line) > limit {
		metrics.JSONTruncations.Inc()
		obj.set("max_data_exceeded", true)
		if isEvent {
			truncateResponseData(&obj, limit-truncationMargin)
		}
		if line, err = json.Marshal(obj); err != nil {
			return fmt.Errorf("failed to encode log record: %w", err)
		}
	}

	line = append(line, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.out.Write(line)
	return err
}

func (h *JSONHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := h.clone()
	for _, a := range attrs {
		h2.attrs = append(h2.attrs, groupedAttr{groups: h.groups, attr: a})
	}
	return h2
}

func (h *JSONHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	h2.groups = append(append([]string(nil), h.groups...), name)
	return h2
}

func (h *JSONHandler) clone() *JSONHandler {
	return &JSONHandler{
		mu:     h.mu,
		out:    h.out,
		opts:   h.opts,
		attrs:  append([]groupedAttr(nil), h.attrs...),
		groups: h.groups,
	}
}

// truncateResponseData shortens response.data to limit bytes. The event's
// response map is shared with other handlers, so it is copied first.
func truncateResponseData(obj *object, limit int) {
	if limit <= 0 {
		return
	}
	raw, ok := obj.get("response")
	if !ok {
		return
	}
	resp, ok := raw.(map[string]any)
	if !ok || len(resp) == 0 {
		return
	}

	data := dataString(resp["data"])
	if len(data) <= limit {
		return
	}

	truncated := make(map[string]any, len(resp))
	for k, v := range resp {
		truncated[k] = v
	}
	truncated["data"] = cutString(data, limit) + truncatedSuffix
	obj.set("response", truncated)
}

func dataString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(encodable(t))
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// cutString returns at most n bytes of s without splitting a rune.
func cutString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// setAttr places a under the given groups in obj. Empty attrs are skipped
// and groups are expanded into nested objects.
func setAttr(obj *object, groups []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	target := obj
	for _, g := range groups {
		existing, ok := target.get(g)
		nested, isObj := existing.(*object)
		if !ok || !isObj {
			nested = &object{}
			target.set(g, nested)
		}
		target = nested
	}

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		if len(attrs) == 0 {
			return
		}
		if a.Key == "" {
			for _, ga := range attrs {
				setAttr(target, nil, ga)
			}
			return
		}
		nested := &object{}
		for _, ga := range attrs {
			setAttr(nested, nil, ga)
		}
		target.set(a.Key, nested)
		return
	}

	target.set(a.Key, a.Value.Any())
}
