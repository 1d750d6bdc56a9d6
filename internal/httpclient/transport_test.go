package httpclient

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reqlog/internal/masking"
	"reqlog/internal/requestlog"
)

type recorded struct {
	level slog.Level
	msg   string
	event *requestlog.Event
}

type recordingHandler struct {
	mu      sync.Mutex
	records []recorded
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	ev, ok := requestlog.FromRecord(r)
	if !ok {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, recorded{level: r.Level, msg: r.Message, event: ev})
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) all() []recorded {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]recorded(nil), h.records...)
}

func newLogger() (*requestlog.Logger, *recordingHandler) {
	r := masking.NewRegistry()
	r.Add("Token", masking.NewPaths("token"), masking.Global())
	s := masking.NewSanitizer(r, masking.Options{Enabled: true})
	h := &recordingHandler{}
	return requestlog.NewLogger(slog.New(h), s, requestlog.Options{}), h
}

func TestTransportLogsBothEdges(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"token":"abc","name":"n"}`, string(body))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"token":"xyz","id":1}`))
	}))
	defer srv.Close()

	logger, h := newLogger()
	client := NewHTTPClient(nil, logger)

	resp, err := client.Post(srv.URL+"/items?token=secret", "application/json",
		strings.NewReader(`{"token":"abc","name":"n"}`))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, `{"token":"xyz","id":1}`, string(body))

	recs := h.all()
	require.Len(t, recs, 2)

	start := recs[0]
	assert.Equal(t, requestlog.EdgeStart, start.event.Edge)
	assert.Equal(t, requestlog.Outgoing, start.event.Direction)
	assert.True(t, strings.HasPrefix(start.msg, "OUTGOING (start): POST "+srv.URL+"/items?token="))
	assert.NotContains(t, start.msg, "secret")

	end := recs[1]
	assert.Equal(t, slog.LevelInfo, end.level)
	assert.Equal(t, requestlog.EdgeEnd, end.event.Edge)
	assert.True(t, strings.HasSuffix(end.msg, "(201)"))
	assert.Equal(t, "POST", end.event.Request["method"])
	assert.Equal(t, 201, end.event.Response["status_code"])

	reqData, ok := end.event.Request["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, masking.MaskString, reqData["token"])
	assert.Equal(t, "n", reqData["name"])

	respData, ok := end.event.Response["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, masking.MaskString, respData["token"])
	assert.False(t, end.event.End.IsZero())
}

func TestTransportStreamsWithoutBlocking(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: first\n\n"))
		w.(http.Flusher).Flush()
		<-release
		_, _ = w.Write([]byte("data: second\n\n"))
	}))
	defer srv.Close()
	defer func() {
		select {
		case <-release:
		default:
			close(release)
		}
	}()

	logger, h := newLogger()
	client := NewHTTPClient(nil, logger)

	type result struct {
		resp *http.Response
		err  error
	}
	got := make(chan result, 1)
	go func() {
		resp, err := client.Get(srv.URL + "/events")
		got <- result{resp, err}
	}()

	var resp *http.Response
	select {
	case res := <-got:
		require.NoError(t, res.err)
		resp = res.resp
	case <-time.After(5 * time.Second):
		t.Fatal("response was held back until the stream ended")
	}

	first := make([]byte, len("data: first\n\n"))
	_, err := io.ReadFull(resp.Body, first)
	require.NoError(t, err)
	assert.Equal(t, "data: first\n\n", string(first))
	assert.Len(t, h.all(), 1, "END must wait for the body")

	close(release)
	rest, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "data: second\n\n", string(rest))
	require.NoError(t, resp.Body.Close())

	recs := h.all()
	require.Len(t, recs, 2)
	end := recs[1]
	assert.Equal(t, requestlog.EdgeEnd, end.event.Edge)
	assert.True(t, strings.HasSuffix(end.msg, "(200)"))
	data, ok := end.event.Response["data"].(string)
	require.True(t, ok)
	assert.Contains(t, data, "first")
	assert.Contains(t, data, "second")
}

func TestTransportLogsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	logger, h := newLogger()
	client := NewHTTPClient(&ClientConfig{Timeout: time.Second}, logger)

	_, err := client.Get(url + "/gone")
	require.Error(t, err)

	recs := h.all()
	require.Len(t, recs, 2)
	assert.Equal(t, slog.LevelError, recs[1].level)
	assert.Error(t, recs[1].event.Err)
	assert.Nil(t, recs[1].event.Response["status_code"])
}

func TestTransportDecompressesForLog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		_, _ = gw.Write([]byte(`{"ok":true}`))
		_ = gw.Close()
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	logger, h := newLogger()
	transport := NewTransport(DefaultConfig())
	transport.DisableCompression = true
	client := &http.Client{Transport: &Transport{Base: transport, Logger: logger}}

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := client.Do(req)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	// the caller still sees the encoded body
	assert.NotEqual(t, `{"ok":true}`, string(raw))

	recs := h.all()
	require.Len(t, recs, 2)
	assert.Equal(t, map[string]any{"ok": true}, recs[1].event.Response["data"])
}

func TestTransportNotes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("plain"))
	}))
	defer srv.Close()

	logger, h := newLogger()
	client := NewHTTPClient(nil, logger)

	ctx := WithNotes(context.Background(), map[string]any{"job": "sync"})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	recs := h.all()
	require.Len(t, recs, 2)
	assert.Equal(t, map[string]any{"job": "sync"}, recs[1].event.Notes)
}

func TestTransportSetEnabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	logger, h := newLogger()
	tr := &Transport{Base: NewTransport(DefaultConfig()), Logger: logger}
	client := &http.Client{Transport: tr}

	tr.SetEnabled(false)
	assert.False(t, tr.Enabled())
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Empty(t, h.all())

	tr.SetEnabled(true)
	resp, err = client.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Len(t, h.all(), 2)
}

func TestInstallUninstall(t *testing.T) {
	before := http.DefaultTransport
	logger, _ := newLogger()

	tr := Install(logger)
	assert.Same(t, tr, Installed())
	assert.Same(t, before, tr.Base)
	assert.Equal(t, http.RoundTripper(tr), http.DefaultTransport)

	again := Install(logger)
	assert.Same(t, before, again.Base)

	Uninstall()
	assert.Nil(t, Installed())
	assert.Equal(t, before, http.DefaultTransport)

	Uninstall()
	assert.Equal(t, before, http.DefaultTransport)
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name string
		val  string
		want time.Duration
	}{
		{"unset", "", 5 * time.Second},
		{"seconds", "12", 12 * time.Second},
		{"duration", "1m30s", 90 * time.Second},
		{"invalid", "soon", 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("REQLOG_TEST_DURATION", tt.val)
			assert.Equal(t, tt.want, getEnvDuration("REQLOG_TEST_DURATION", 5*time.Second))
		})
	}
}
