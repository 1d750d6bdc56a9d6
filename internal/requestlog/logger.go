package requestlog

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"reqlog/internal/masking"
	"reqlog/internal/metrics"
)

// NotLoggedData replaces response data for responses marked with SkipData.
var NotLoggedData = map[string]any{"NOT_LOGGED": "response data logging disabled"}

// Options configure what a Logger puts into events.
type Options struct {
	// LogResponseContent adds JSON response bodies of incoming requests.
	LogResponseContent bool

	// RedactHeaders applies the masking.Headers processor to header maps.
	RedactHeaders bool
}

// Logger turns Records into sanitized Events and writes them to slog.
type Logger struct {
	log       *slog.Logger
	sanitizer *masking.Sanitizer
	opts      Options
}

// NewLogger creates a Logger. A nil log uses slog.Default and a nil
// sanitizer masks with an empty registry.
func NewLogger(log *slog.Logger, sanitizer *masking.Sanitizer, opts Options) *Logger {
	if log == nil {
		log = slog.Default()
	}
	if sanitizer == nil {
		sanitizer = masking.NewSanitizer(nil, masking.Options{})
	}
	return &Logger{log: log, sanitizer: sanitizer, opts: opts}
}

// Sanitizer returns the sanitizer events are masked with.
func (l *Logger) Sanitizer() *masking.Sanitizer {
	return l.sanitizer
}

// LogIncoming logs a request received by this process.
func (l *Logger) LogIncoming(ctx context.Context, rec *Record) {
	ctx = masking.WithMasks(ctx, rec.Masks...)
	s := l.sanitizer

	ev := newEvent(Incoming, rec)

	var msg string
	if in := rec.Incoming; in != nil {
		path := s.URL(ctx, in.Path)
		ev.Request = map[string]any{
			"method":      in.Method,
			"remote_addr": in.RemoteAddr,
			"url_scheme":  in.Scheme,
			"path":        path,
			"POST":        s.Data(ctx, flattenValues(in.Form)),
			"GET":         s.Data(ctx, flattenValues(in.Query)),
			"data":        s.Data(ctx, in.Data),
			"headers":     l.headers(ctx, in.Header),
		}
		msg = fmt.Sprintf("INCOMING (%s): %s %s", edgeLabel(rec.Edge), in.Method, path)
	} else {
		msg = fmt.Sprintf("INCOMING (%s): %s %s", edgeLabel(rec.Edge), rec.Method, s.URL(ctx, rec.URL))
	}

	if rec.Edge == EdgeEnd && rec.Response != nil {
		resp := rec.Response
		msg += fmt.Sprintf(" (%d)", resp.StatusCode)
		ev.Response["status_code"] = resp.StatusCode

		switch {
		case resp.SkipData:
			ev.Response["data"] = copyMap(NotLoggedData)
		case l.opts.LogResponseContent && isJSON(resp.Header):
			if data := s.Body(ctx, resp.Body); data != "" {
				ev.Response["data"] = data
			}
		}
	}

	l.emit(ctx, msg, ev)
}

// LogOutgoing logs a request sent by this process.
func (l *Logger) LogOutgoing(ctx context.Context, rec *Record) {
	ctx = masking.WithMasks(ctx, rec.Masks...)
	s := l.sanitizer

	ev := newEvent(Outgoing, rec)

	method := strings.ToUpper(rec.Method)
	rawURL := rec.URL
	if out := rec.Outgoing; out != nil {
		if method == "" {
			method = strings.ToUpper(out.Method)
		}
		if rawURL == "" {
			rawURL = out.URL
		}
	}
	url := s.URL(ctx, rawURL)

	var msg string
	if rec.Edge == EdgeStart {
		ev.Request = map[string]any{
			"method": method,
			"url":    url,
		}
		msg = fmt.Sprintf("OUTGOING (start): %s %s", method, url)
	} else {
		if out := rec.Outgoing; out != nil {
			url = s.URL(ctx, out.URL)
			ev.Request = map[string]any{
				"method":  out.Method,
				"url":     url,
				"path":    s.URL(ctx, out.Path),
				"headers": l.headers(ctx, out.Header),
			}
			if len(out.Body) > 0 {
				ev.Request["data"] = s.Body(ctx, out.Body)
			}
			method = out.Method
		}
		msg = fmt.Sprintf("OUTGOING (end): %s %s", method, url)

		if resp := rec.Response; resp != nil {
			msg += fmt.Sprintf(" (%d)", resp.StatusCode)
			ev.Response["status_code"] = resp.StatusCode
			if resp.SkipData {
				ev.Response["data"] = copyMap(NotLoggedData)
			} else {
				ev.Response["data"] = s.Body(ctx, resp.Body)
			}
		}
	}

	l.emit(ctx, msg, ev)
}

func (l *Logger) emit(ctx context.Context, msg string, ev *Event) {
	level := slog.LevelInfo
	if ev.Err != nil {
		level = slog.LevelError
	}

	metrics.Events.WithLabelValues(ev.Direction.String(), ev.Edge.String(), level.String()).Inc()
	l.log.LogAttrs(ctx, level, msg, slog.Any(EventKey, ev))
}

// headers flattens and masks a header map. The Referer URL is sanitized like
// any other URL.
func (l *Logger) headers(ctx context.Context, h http.Header) any {
	flat := flattenValues(h)
	if ref, ok := flat["Referer"].(string); ok {
		flat["Referer"] = l.sanitizer.URL(ctx, ref)
	}

	var names []string
	if l.opts.RedactHeaders {
		names = append(names, masking.Headers)
	}
	return l.sanitizer.Data(ctx, flat, names...)
}

func newEvent(dir Direction, rec *Record) *Event {
	return &Event{
		Direction: dir,
		Edge:      rec.Edge,
		Start:     rec.Start,
		End:       rec.End,
		Request:   map[string]any{},
		Response:  map[string]any{},
		Notes:     rec.Notes,
		Err:       rec.Err,
	}
}

func edgeLabel(e Edge) string {
	if e == EdgeStart {
		return "start"
	}
	return "end"
}

// flattenValues turns a multi-value map into a JSON-like map where single
// values are plain strings.
func flattenValues(values map[string][]string) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		switch len(v) {
		case 0:
			out[k] = ""
		case 1:
			out[k] = v[0]
		default:
			list := make([]any, len(v))
			for i, s := range v {
				list[i] = s
			}
			out[k] = list
		}
	}
	return out
}

func isJSON(h http.Header) bool {
	if h == nil {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
