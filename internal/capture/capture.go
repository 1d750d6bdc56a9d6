// Package capture reads request and response bodies for logging without
// taking them away from the code that actually handles them.
package capture

import (
	"bufio"
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// DefaultMaxBody is the default number of body bytes kept for logging.
const DefaultMaxBody int64 = 1024 * 1024

// maxDecompressedSize guards against compression bombs.
const maxDecompressedSize = 2 * 1024 * 1024

// Body reads up to limit bytes of rc for logging and returns a replacement
// reader that still yields the whole body. truncated reports whether the
// body was longer than limit.
func Body(rc io.ReadCloser, limit int64) (captured []byte, replacement io.ReadCloser, truncated bool, err error) {
	if rc == nil || rc == http.NoBody {
		return nil, rc, false, nil
	}
	if limit <= 0 {
		limit = DefaultMaxBody
	}

	captured, err = io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, rc, false, err
	}

	if int64(len(captured)) > limit {
		replacement = readCloser{
			Reader: io.MultiReader(bytes.NewReader(captured), rc),
			Closer: rc,
		}
		return captured[:limit], replacement, true, nil
	}

	_ = rc.Close()
	return captured, io.NopCloser(bytes.NewReader(captured)), false, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// ResponseWriter wraps http.ResponseWriter to keep a copy of the response
// body. It implements http.Flusher and http.Hijacker by delegating to the
// underlying ResponseWriter if it supports those interfaces.
type ResponseWriter struct {
	http.ResponseWriter
	body      bytes.Buffer
	limit     int
	truncated bool
}

// NewResponseWriter wraps w, keeping at most limit body bytes.
func NewResponseWriter(w http.ResponseWriter, limit int64) *ResponseWriter {
	if limit <= 0 {
		limit = DefaultMaxBody
	}
	return &ResponseWriter{ResponseWriter: w, limit: int(limit)}
}

func (r *ResponseWriter) Write(b []byte) (int, error) {
	if room := r.limit - r.body.Len(); room > 0 {
		if len(b) > room {
			r.body.Write(b[:room])
			r.truncated = true
		} else {
			r.body.Write(b)
		}
	} else if len(b) > 0 {
		r.truncated = true
	}
	return r.ResponseWriter.Write(b)
}

// Body returns the captured bytes.
func (r *ResponseWriter) Body() []byte {
	return r.body.Bytes()
}

// Truncated reports whether the body exceeded the capture limit.
func (r *ResponseWriter) Truncated() bool {
	return r.truncated
}

// Flush implements http.Flusher. It is a no-op when the underlying writer
// cannot flush.
func (r *ResponseWriter) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker.
func (r *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := r.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *ResponseWriter) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Decompress decodes body according to contentEncoding.
// Returns the original body unchanged if no decompression is needed or if
// decompression fails. Supports gzip, deflate, and brotli (br) encodings.
// Stacked codings such as "gzip, br" are listed in the order applied, so
// they are undone from last to first.
func Decompress(body []byte, contentEncoding string) ([]byte, bool) {
	if len(body) == 0 || contentEncoding == "" {
		return body, false
	}

	codings := strings.Split(contentEncoding, ",")
	out := body
	decoded := false
	for i := len(codings) - 1; i >= 0; i-- {
		coding := strings.ToLower(strings.TrimSpace(codings[i]))
		if coding == "" || coding == "identity" {
			continue
		}
		next, ok := decode(out, coding)
		if !ok {
			return body, false
		}
		out = next
		decoded = true
	}
	return out, decoded
}

func decode(body []byte, coding string) ([]byte, bool) {
	var reader io.ReadCloser
	var err error

	switch coding {
	case "gzip", "x-gzip":
		reader, err = gzip.NewReader(bytes.NewReader(body))
	case "deflate":
		reader = flate.NewReader(bytes.NewReader(body))
	case "br":
		reader = io.NopCloser(brotli.NewReader(bytes.NewReader(body)))
	default:
		return nil, false
	}
	if err != nil {
		return nil, false
	}
	defer reader.Close()

	decompressed, err := io.ReadAll(io.LimitReader(reader, maxDecompressedSize))
	if err != nil {
		return nil, false
	}
	return decompressed, true
}

// TeeReadCloser copies up to limit bytes of everything read through it and
// reports them once the stream ends. Unlike Body it never reads ahead, so
// streamed responses reach the caller as they arrive.
type TeeReadCloser struct {
	rc     io.ReadCloser
	limit  int
	onDone func(body []byte, truncated bool, err error)

	mu        sync.Mutex
	buf       bytes.Buffer
	truncated bool
	done      bool
}

// NewTee wraps rc. onDone is called exactly once: on io.EOF, on the first
// other read error, or on Close, whichever comes first.
func NewTee(rc io.ReadCloser, limit int64, onDone func(body []byte, truncated bool, err error)) *TeeReadCloser {
	if limit <= 0 {
		limit = DefaultMaxBody
	}
	return &TeeReadCloser{rc: rc, limit: int(limit), onDone: onDone}
}

func (t *TeeReadCloser) Read(p []byte) (int, error) {
	n, err := t.rc.Read(p)
	if n > 0 {
		t.mu.Lock()
		if room := t.limit - t.buf.Len(); room > 0 {
			if n > room {
				t.buf.Write(p[:room])
				t.truncated = true
			} else {
				t.buf.Write(p[:n])
			}
		} else {
			t.truncated = true
		}
		t.mu.Unlock()
	}
	switch {
	case err == io.EOF:
		t.finish(nil)
	case err != nil:
		t.finish(err)
	}
	return n, err
}

// Close closes the underlying body and reports whatever was read so far.
func (t *TeeReadCloser) Close() error {
	err := t.rc.Close()
	t.finish(nil)
	return err
}

func (t *TeeReadCloser) finish(err error) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	body := bytes.Clone(t.buf.Bytes())
	truncated := t.truncated
	t.mu.Unlock()

	if t.onDone != nil {
		t.onDone(body, truncated, err)
	}
}
