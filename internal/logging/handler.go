// Package logging provides the slog handlers request logs are written with:
// a JSON handler for log aggregation, a human-readable "smart" handler for
// local development, and small wrappers to filter and fan out records.
package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/term"

	"reqlog/internal/requestlog"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGray   = "\033[90m"
	colorCyan   = "\033[36m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorBold   = "\033[1m"
)

// SmartOptions configure a SmartHandler.
type SmartOptions struct {
	Level slog.Leveler

	// MaxVerboseOutputLength caps each request/response detail line.
	MaxVerboseOutputLength int

	// Color forces colors on or off. Nil enables them when out is a
	// terminal.
	Color *bool
}

// SmartHandler writes human-readable log lines in the format:
//
//	HH:MM:SS LEVEL msg  key=value key=value
//
// Request events add indented lines with request data, request headers and
// response data, except on the START edge of outgoing calls.
type SmartHandler struct {
	mu    *sync.Mutex
	out   io.Writer
	opts  SmartOptions
	color bool
	attrs []slog.Attr
}

func NewSmartHandler(out io.Writer, opts SmartOptions) *SmartHandler {
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}
	color := IsTerminal(out)
	if opts.Color != nil {
		color = *opts.Color
	}
	return &SmartHandler{mu: &sync.Mutex{}, out: out, opts: opts, color: color}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (h *SmartHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *SmartHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer

	h.paint(&buf, colorGray, r.Time.Format(time.TimeOnly))
	buf.WriteByte(' ')

	if h.color {
		buf.WriteString(levelColor(r.Level))
		buf.WriteString(colorBold)
	}
	fmt.Fprintf(&buf, "%-5s", r.Level.String())
	if h.color {
		buf.WriteString(colorReset)
	}
	buf.WriteByte(' ')

	buf.WriteString(r.Message)

	writeAttr := func(a slog.Attr) bool {
		if requestlog.IsEventAttr(a) {
			return true
		}
		buf.WriteByte(' ')
		h.paint(&buf, colorCyan, a.Key)
		buf.WriteByte('=')
		fmt.Fprintf(&buf, "%v", a.Value.Resolve().Any())
		return true
	}
	for _, a := range h.attrs {
		writeAttr(a)
	}
	r.Attrs(writeAttr)

	if ev, ok := requestlog.FromRecord(r); ok {
		if err := ev.Err; err != nil {
			buf.WriteByte(' ')
			h.paint(&buf, colorCyan, "error")
			buf.WriteByte('=')
			buf.WriteString(err.Error())
		}
		h.writeDetails(&buf, ev)
	}

	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf.Bytes())
	return err
}

func (h *SmartHandler) writeDetails(buf *bytes.Buffer, ev *requestlog.Event) {
	if ev.Edge == requestlog.EdgeStart && ev.Direction == requestlog.Outgoing {
		return
	}

	limit := h.opts.MaxVerboseOutputLength
	if data, ok := ev.Request["data"]; ok && data != nil {
		fmt.Fprintf(buf, "\n  Request Data: %s", limitedRepr(data, limit))
	}
	if headers, ok := ev.Request["headers"]; ok && headers != nil {
		fmt.Fprintf(buf, "\n  Request Headers: %s", limitedRepr(headers, limit))
	}
	if ev.Response != nil {
		data := "(empty)"
		if v, ok := ev.Response["data"]; ok && v != nil {
			data = limitedRepr(v, limit)
		}
		fmt.Fprintf(buf, "\n  Response Data: %s", data)
	}
	buf.WriteString("\n\n")
}

func (h *SmartHandler) paint(buf *bytes.Buffer, color, s string) {
	if !h.color {
		buf.WriteString(s)
		return
	}
	buf.WriteString(color)
	buf.WriteString(s)
	buf.WriteString(colorReset)
}

func (h *SmartHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := *h
	h2.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &h2
}

func (h *SmartHandler) WithGroup(_ string) slog.Handler { return h }

// limitedRepr renders v compactly and cuts it to length bytes followed by
// "...".
func limitedRepr(v any, length int) string {
	var s string
	if str, ok := v.(string); ok {
		s = fmt.Sprintf("%q", str)
	} else if b, err := json.Marshal(encodable(v)); err == nil {
		s = string(b)
	} else {
		s = fmt.Sprintf("%v", v)
	}

	if length >= 0 && len(s) > length {
		s = cutString(s, length) + "..."
	}
	return s
}

func levelColor(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return colorRed
	case l >= slog.LevelWarn:
		return colorYellow
	case l >= slog.LevelInfo:
		return colorGreen
	default:
		return colorGray
	}
}
