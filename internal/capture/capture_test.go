package capture

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBody(t *testing.T) {
	t.Run("nil and NoBody", func(t *testing.T) {
		captured, rc, truncated, err := Body(nil, 10)
		require.NoError(t, err)
		assert.Nil(t, captured)
		assert.Nil(t, rc)
		assert.False(t, truncated)

		captured, rc, _, err = Body(http.NoBody, 10)
		require.NoError(t, err)
		assert.Nil(t, captured)
		assert.Equal(t, http.NoBody, rc)
	})

	t.Run("within limit", func(t *testing.T) {
		captured, rc, truncated, err := Body(io.NopCloser(strings.NewReader("hello")), 10)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(captured))
		assert.False(t, truncated)

		rest, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(rest))
	})

	t.Run("over limit keeps full body for the reader", func(t *testing.T) {
		captured, rc, truncated, err := Body(io.NopCloser(strings.NewReader("hello world")), 5)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(captured))
		assert.True(t, truncated)

		rest, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(rest))
	})
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewResponseWriter(rec, 4)

	_, err := w.Write([]byte("ab"))
	require.NoError(t, err)
	assert.False(t, w.Truncated())

	_, err = w.Write([]byte("cdef"))
	require.NoError(t, err)

	assert.Equal(t, "abcd", string(w.Body()))
	assert.True(t, w.Truncated())
	assert.Equal(t, "abcdef", rec.Body.String())

	w.Flush()
	assert.True(t, rec.Flushed)

	_, _, err = w.Hijack()
	assert.ErrorIs(t, err, http.ErrNotSupported)
	assert.Equal(t, http.ResponseWriter(rec), w.Unwrap())
}

func TestDecompress(t *testing.T) {
	payload := []byte(`{"hello":"world"}`)

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write(payload)
	_ = gw.Close()

	var fl bytes.Buffer
	fw, err := flate.NewWriter(&fl, flate.DefaultCompression)
	require.NoError(t, err)
	_, _ = fw.Write(payload)
	_ = fw.Close()

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	_, _ = bw.Write(payload)
	_ = bw.Close()

	// gzip applied first, then br over the gzip stream.
	var stacked bytes.Buffer
	sw := brotli.NewWriter(&stacked)
	_, _ = sw.Write(gz.Bytes())
	_ = sw.Close()

	tests := []struct {
		name     string
		body     []byte
		encoding string
		want     []byte
		ok       bool
	}{
		{"gzip", gz.Bytes(), "gzip", payload, true},
		{"stacked gzip then br", stacked.Bytes(), "GZIP, br", payload, true},
		{"stacked order mismatch", gz.Bytes(), "gzip, br", gz.Bytes(), false},
		{"identity alongside gzip", gz.Bytes(), "identity, gzip", payload, true},
		{"deflate", fl.Bytes(), "deflate", payload, true},
		{"brotli", br.Bytes(), "br", payload, true},
		{"identity", payload, "identity", payload, false},
		{"unknown", payload, "zstd", payload, false},
		{"no encoding", payload, "", payload, false},
		{"corrupt gzip", []byte("not gzip"), "gzip", []byte("not gzip"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Decompress(tt.body, tt.encoding)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

type closeCounter struct {
	io.Reader
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func TestTee(t *testing.T) {
	t.Run("reports on EOF", func(t *testing.T) {
		var calls int
		var got []byte
		tee := NewTee(io.NopCloser(strings.NewReader("hello world")), 5, func(body []byte, truncated bool, err error) {
			calls++
			got = body
			assert.True(t, truncated)
			assert.NoError(t, err)
		})

		all, err := io.ReadAll(tee)
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(all))
		assert.Equal(t, 1, calls)
		assert.Equal(t, "hello", string(got))

		require.NoError(t, tee.Close())
		assert.Equal(t, 1, calls)
	})

	t.Run("reports partial body on Close", func(t *testing.T) {
		src := &closeCounter{Reader: strings.NewReader("abcdef")}
		var got []byte
		var calls int
		tee := NewTee(src, 0, func(body []byte, truncated bool, err error) {
			calls++
			got = body
			assert.False(t, truncated)
		})

		buf := make([]byte, 3)
		n, err := tee.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Equal(t, 0, calls)

		require.NoError(t, tee.Close())
		assert.Equal(t, 1, src.closed)
		assert.Equal(t, 1, calls)
		assert.Equal(t, "abc", string(got))
	})

	t.Run("reports read errors", func(t *testing.T) {
		boom := errors.New("connection reset")
		var gotErr error
		tee := NewTee(io.NopCloser(io.MultiReader(strings.NewReader("ab"), iotest.ErrReader(boom))), 0, func(body []byte, truncated bool, err error) {
			gotErr = err
			assert.Equal(t, "ab", string(body))
		})

		_, err := io.ReadAll(tee)
		require.ErrorIs(t, err, boom)
		assert.ErrorIs(t, gotErr, boom)
	})
}
