package httpclient

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"reqlog/internal/capture"
	"reqlog/internal/requestlog"
)

type notesKey struct{}

// WithNotes attaches notes to the log events of outgoing calls made with
// ctx.
func WithNotes(ctx context.Context, notes any) context.Context {
	return context.WithValue(ctx, notesKey{}, notes)
}

func notesFromContext(ctx context.Context) any {
	return ctx.Value(notesKey{})
}

// Transport is an http.RoundTripper that logs each call it makes through a
// requestlog.Logger. Request and response bodies are copied for the log and
// handed back to the caller intact.
type Transport struct {
	// Base performs the actual calls. Nil means http.DefaultTransport.
	Base   http.RoundTripper
	Logger *requestlog.Logger

	// MaxBodyCapture caps the body bytes kept for logging.
	MaxBodyCapture int64

	disabled atomic.Bool
}

// SetEnabled turns logging on or off without removing the transport.
func (t *Transport) SetEnabled(enabled bool) {
	t.disabled.Store(!enabled)
}

// Enabled reports whether calls are logged.
func (t *Transport) Enabled() bool {
	return !t.disabled.Load()
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Logger == nil || !t.Enabled() {
		return t.base().RoundTrip(req)
	}

	ctx := req.Context()
	lc := requestlog.Begin(ctx, t.Logger.LogOutgoing, requestlog.Record{
		Method: req.Method,
		URL:    req.URL.String(),
		Notes:  notesFromContext(ctx),
	})

	out := &requestlog.OutgoingRequest{
		Method: req.Method,
		URL:    req.URL.String(),
		Path:   req.URL.RequestURI(),
		Header: req.Header.Clone(),
	}

	if req.Body != nil && req.Body != http.NoBody {
		body, replacement, _, err := capture.Body(req.Body, t.MaxBodyCapture)
		if err != nil {
			lc.SetOutgoing(out)
			lc.Finish(ctx, err)
			return nil, err
		}
		out.Body = body
		// RoundTrip must not modify the caller's request.
		req = req.Clone(ctx)
		req.Body = replacement
	}
	lc.SetOutgoing(out)

	resp, err := t.base().RoundTrip(req)
	if err != nil {
		lc.Finish(ctx, err)
		return nil, err
	}

	logged := &requestlog.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
	}
	if resp.Body == nil {
		lc.SetResponse(logged)
		lc.Finish(ctx, nil)
		return resp, nil
	}

	// END is logged once the caller has drained or closed the body, so
	// streamed responses are handed over as soon as headers arrive.
	decompress := !resp.Uncompressed
	resp.Body = capture.NewTee(resp.Body, t.MaxBodyCapture, func(body []byte, _ bool, readErr error) {
		if enc := logged.Header.Get("Content-Encoding"); enc != "" && decompress {
			body, _ = capture.Decompress(body, enc)
		}
		logged.Body = body
		lc.SetResponse(logged)
		lc.Finish(ctx, readErr)
	})
	return resp, nil
}

var (
	installMu sync.Mutex
	installed *Transport
	original  http.RoundTripper
)

// Install wraps http.DefaultTransport with a logging Transport, so clients
// that do not set their own transport are logged. Installing again replaces
// the logger. It returns the installed transport.
func Install(logger *requestlog.Logger) *Transport {
	installMu.Lock()
	defer installMu.Unlock()

	if installed == nil {
		original = http.DefaultTransport
	}
	installed = &Transport{Base: original, Logger: logger}
	http.DefaultTransport = installed
	return installed
}

// Uninstall restores the http.DefaultTransport replaced by Install.
func Uninstall() {
	installMu.Lock()
	defer installMu.Unlock()

	if installed == nil {
		return
	}
	http.DefaultTransport = original
	installed = nil
	original = nil
}

// Installed returns the transport set by Install, or nil.
func Installed() *Transport {
	installMu.Lock()
	defer installMu.Unlock()
	return installed
}
