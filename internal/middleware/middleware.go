// Package middleware logs incoming HTTP requests handled by echo.
package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"reqlog/internal/capture"
	"reqlog/internal/masking"
	"reqlog/internal/requestlog"
)

const (
	// RequestIDHeader carries the request ID in both directions.
	RequestIDHeader = "X-Request-ID"

	logContextKey = "reqlog.log_context"
	skipDataKey   = "reqlog.skip_response_data"
)

// Config controls the incoming request logging middleware.
type Config struct {
	// Enabled turns the middleware on. It can be changed at runtime with
	// SetEnabled on the returned Switch.
	Enabled bool

	// Blocklist holds echo route names and path prefixes (entries starting
	// with '/') that are never logged.
	Blocklist []string

	// RouteMasks maps path prefixes to mask names applied to every request
	// under that prefix, on both edges.
	RouteMasks map[string][]string

	// MaxBodyCapture caps the request and response bytes kept for logging.
	MaxBodyCapture int64

	// CaptureResponseBody keeps a copy of the response body.
	CaptureResponseBody bool
}

// Switch turns a running middleware on and off.
type Switch struct {
	enabled atomic.Bool
}

// SetEnabled turns logging on or off.
func (s *Switch) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
}

// Enabled reports whether logging is on.
func (s *Switch) Enabled() bool {
	return s.enabled.Load()
}

// Middleware creates an echo middleware that logs the START and END edges
// of each request through logger.
func Middleware(logger *requestlog.Logger, cfg Config) echo.MiddlewareFunc {
	mw, _ := New(logger, cfg)
	return mw
}

// New is Middleware plus a Switch to toggle it at runtime.
func New(logger *requestlog.Logger, cfg Config) (echo.MiddlewareFunc, *Switch) {
	sw := &Switch{}
	sw.SetEnabled(cfg.Enabled)

	if cfg.MaxBodyCapture <= 0 {
		cfg.MaxBodyCapture = capture.DefaultMaxBody
	}

	mw := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if logger == nil || !sw.Enabled() {
				return next(c)
			}
			if blocklisted(c, cfg.Blocklist) {
				return next(c)
			}

			req := c.Request()

			// Generate request ID if not present
			requestID := req.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
				req.Header.Set(RequestIDHeader, requestID)
			}
			c.Response().Header().Set(RequestIDHeader, requestID)

			routeMasks := masksFor(req.URL.Path, cfg.RouteMasks)
			ctx := masking.WithMasks(req.Context(), routeMasks...)
			req = req.WithContext(ctx)
			c.SetRequest(req)

			body, replacement, _, err := capture.Body(req.Body, cfg.MaxBodyCapture)
			if err != nil {
				slog.Warn("failed to read request body for logging", "error", err, "request_id", requestID)
			} else {
				req.Body = replacement
			}

			incoming := incomingRequest(ctx, c, logger.Sanitizer(), body)

			lc := requestlog.Begin(ctx, logger.LogIncoming, requestlog.Record{
				Incoming: incoming,
				Masks:    routeMasks,
			})
			c.Set(logContextKey, lc)

			var rw *capture.ResponseWriter
			if cfg.CaptureResponseBody {
				rw = capture.NewResponseWriter(c.Response().Writer, cfg.MaxBodyCapture)
				c.Response().Writer = rw
			}

			// END is logged before the panic reaches an outer Recover.
			defer func() {
				if r := recover(); r != nil {
					lc.SetResponse(&requestlog.Response{
						StatusCode: http.StatusInternalServerError,
						Header:     c.Response().Header().Clone(),
					})
					lc.Finish(ctx, fmt.Errorf("panic: %v", r))
					panic(r)
				}
			}()

			handlerErr := next(c)
			if handlerErr != nil {
				// Commit the error response so its status is logged.
				c.Error(handlerErr)
			}

			resp := &requestlog.Response{
				StatusCode: c.Response().Status,
				Header:     c.Response().Header().Clone(),
			}
			if skip, _ := c.Get(skipDataKey).(bool); skip {
				resp.SkipData = true
			} else if rw != nil {
				resp.Body = rw.Body()
				if enc := resp.Header.Get("Content-Encoding"); enc != "" {
					resp.Body, _ = capture.Decompress(resp.Body, enc)
				}
			}
			lc.SetResponse(resp)
			lc.Finish(ctx, handlerErr)

			return nil
		}
	}
	return mw, sw
}

// SetNotes attaches notes to the END event of the current request.
func SetNotes(c echo.Context, notes any) {
	if lc := logContext(c); lc != nil {
		lc.SetNotes(notes)
	}
}

// SkipResponseData keeps the response body of the current request out of
// the log.
func SkipResponseData(c echo.Context) {
	c.Set(skipDataKey, true)
}

// ApplyMasks adds mask names to the END event of the current request.
func ApplyMasks(c echo.Context, names ...string) {
	if lc := logContext(c); lc != nil {
		lc.AddMasks(names...)
	}
}

func logContext(c echo.Context) *requestlog.LogContext {
	lc, _ := c.Get(logContextKey).(*requestlog.LogContext)
	return lc
}

// blocklisted reports whether the request path starts with a blocklisted
// route path. Route names that do not resolve are ignored.
func blocklisted(c echo.Context, blocklist []string) bool {
	path := c.Request().URL.Path
	for _, entry := range blocklist {
		prefix := entry
		if !strings.HasPrefix(entry, "/") {
			prefix = c.Echo().Reverse(entry)
			if prefix == "" {
				continue
			}
		}
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func masksFor(path string, routeMasks map[string][]string) []string {
	var names []string
	for prefix, masks := range routeMasks {
		if strings.HasPrefix(path, prefix) {
			names = append(names, masks...)
		}
	}
	return names
}

func incomingRequest(ctx context.Context, c echo.Context, s *masking.Sanitizer, body []byte) *requestlog.IncomingRequest {
	req := c.Request()
	in := &requestlog.IncomingRequest{
		Method:     req.Method,
		RemoteAddr: c.RealIP(),
		Scheme:     c.Scheme(),
		Path:       req.URL.Path,
		Query:      req.URL.Query(),
		Form:       url.Values{},
		Header:     req.Header.Clone(),
	}

	mediaType, params, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))

	switch mediaType {
	case "application/x-www-form-urlencoded":
		if form, err := url.ParseQuery(string(body)); err == nil {
			in.Form = form
		}
	case "multipart/form-data":
		form, files := parseMultipart(body, params["boundary"])
		in.Form = form
		if len(files) > 0 {
			in.Data = map[string]any{"file_list": files}
			return in
		}
	}

	if data, ok := decodeJSON(body); ok {
		in.Data = data
		return in
	}
	in.Data = map[string]any{"raw_body": s.RequestData(ctx, toValidUTF8(body))}
	return in
}

// parseMultipart returns the plain fields and uploaded file names of a
// multipart body. A truncated body yields whatever was read before the cut.
func parseMultipart(body []byte, boundary string) (url.Values, []any) {
	form := url.Values{}
	var files []any
	if boundary == "" {
		return form, files
	}

	r := multipart.NewReader(bytes.NewReader(body), boundary)
	for {
		part, err := r.NextPart()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("stopped reading multipart body", "error", err)
			}
			return form, files
		}
		if name := part.FileName(); name != "" {
			files = append(files, name)
		} else if field := part.FormName(); field != "" {
			value, _ := io.ReadAll(io.LimitReader(part, int64(len(body))))
			form.Add(field, toValidUTF8(value))
		}
		_ = part.Close()
	}
}

func decodeJSON(body []byte) (any, bool) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	return out, true
}

func toValidUTF8(b []byte) string {
	return strings.ToValidUTF8(string(b), "\uFFFD")
}
