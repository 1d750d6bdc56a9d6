package middleware

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reqlog/internal/masking"
	"reqlog/internal/requestlog"
)

type logged struct {
	level slog.Level
	msg   string
	event *requestlog.Event
}

type recordingHandler struct {
	mu      sync.Mutex
	entries []logged
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	ev, ok := requestlog.FromRecord(r)
	if !ok {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, logged{level: r.Level, msg: r.Message, event: ev})
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) all() []logged {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]logged(nil), h.entries...)
}

func setup(t *testing.T, cfg Config) (*echo.Echo, *recordingHandler, *Switch) {
	t.Helper()

	registry := masking.NewRegistry()
	registry.Add("Obj1", masking.NewPaths("obj1/key1"))
	registry.Add("Password", masking.NewPaths("password"), masking.Global())
	sanitizer := masking.NewSanitizer(registry, masking.Options{Enabled: true})

	h := &recordingHandler{}
	logger := requestlog.NewLogger(slog.New(h), sanitizer, requestlog.Options{
		LogResponseContent: true,
		RedactHeaders:      true,
	})

	e := echo.New()
	mw, sw := New(logger, cfg)
	e.Use(mw)

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"obj1": map[string]any{"key1": "value"}})
	}).Name = "index"
	e.GET("/masked", func(c echo.Context) error {
		ApplyMasks(c, "Obj1")
		SetNotes(c, map[string]any{"user": 42})
		return c.JSON(http.StatusOK, map[string]any{"obj1": map[string]any{"key1": "value"}})
	})
	e.GET("/log_no_resp_data", func(c echo.Context) error {
		SkipResponseData(c)
		return c.JSON(http.StatusOK, map[string]any{"obj1": map[string]any{"key1": "value"}})
	})
	e.GET("/metrics", func(c echo.Context) error {
		return c.String(http.StatusOK, "metrics")
	}).Name = "metrics"
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/echo", func(c echo.Context) error {
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return err
		}
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, body)
	})
	e.POST("/upload", func(c echo.Context) error {
		return c.NoContent(http.StatusCreated)
	})
	e.GET("/fail", func(_ echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "short and stout")
	})
	e.GET("/gzip", func(c echo.Context) error {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		_, _ = zw.Write([]byte(`{"obj1":{"key1":"zipped"}}`))
		_ = zw.Close()
		c.Response().Header().Set("Content-Encoding", "gzip")
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, buf.Bytes())
	})

	return e, h, sw
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_StartAndEnd(t *testing.T) {
	e, h, _ := setup(t, Config{Enabled: true, CaptureResponseBody: true})

	req := httptest.NewRequest(http.MethodGet, "/?password=hunter2&page=1", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := serve(e, req)
	require.Equal(t, http.StatusOK, rec.Code)

	entries := h.all()
	require.Len(t, entries, 2)

	start, end := entries[0], entries[1]
	assert.Equal(t, "INCOMING (start): GET /", start.msg)
	assert.Equal(t, requestlog.EdgeStart, start.event.Edge)
	assert.Equal(t, "INCOMING (end): GET / (200)", end.msg)
	assert.Equal(t, requestlog.EdgeEnd, end.event.Edge)
	assert.GreaterOrEqual(t, end.event.ResponseTimeMS(), int64(0))

	request := end.event.Request
	assert.Equal(t, "GET", request["method"])
	assert.Equal(t, "http", request["url_scheme"])
	assert.Equal(t, map[string]any{"password": masking.MaskString, "page": "1"}, request["GET"])
	assert.Equal(t, map[string]any{"raw_body": ""}, request["data"])
	headers := request["headers"].(map[string]any)
	assert.Equal(t, masking.MaskString, headers["Authorization"])

	assert.Equal(t, http.StatusOK, end.event.Response["status_code"])
	assert.Equal(t, map[string]any{"obj1": map[string]any{"key1": "value"}}, end.event.Response["data"])
}

func TestMiddleware_RequestID(t *testing.T) {
	e, _, _ := setup(t, Config{Enabled: true})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec = serve(e, req)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
}

func TestMiddleware_HandlerMasksAndNotes(t *testing.T) {
	e, h, _ := setup(t, Config{Enabled: true, CaptureResponseBody: true})

	serve(e, httptest.NewRequest(http.MethodGet, "/masked", nil))

	entries := h.all()
	require.Len(t, entries, 2)
	end := entries[1].event
	assert.Equal(t, map[string]any{"obj1": map[string]any{"key1": masking.MaskString}}, end.Response["data"])
	assert.Equal(t, map[string]any{"user": 42}, end.Notes)
	assert.Nil(t, entries[0].event.Notes)
}

func TestMiddleware_RouteMasks(t *testing.T) {
	e, h, _ := setup(t, Config{
		Enabled:             true,
		CaptureResponseBody: true,
		RouteMasks:          map[string][]string{"/echo": {"Obj1"}},
	})

	body := `{"obj1":{"key1":"hide","key2":"show"},"password":"p"}`
	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := serve(e, req)

	// The handler still sees the original body.
	assert.Equal(t, body, rec.Body.String())

	entries := h.all()
	require.Len(t, entries, 2)

	want := map[string]any{
		"obj1":     map[string]any{"key1": masking.MaskString, "key2": "show"},
		"password": masking.MaskString,
	}
	assert.Equal(t, want, entries[0].event.Request["data"])
	assert.Equal(t, want, entries[1].event.Request["data"])
	assert.Equal(t, want, entries[1].event.Response["data"])
}

func TestMiddleware_FormBody(t *testing.T) {
	e, h, _ := setup(t, Config{Enabled: true})

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("user=bob&password=hunter2"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	serve(e, req)

	end := h.all()[1].event
	assert.Equal(t, map[string]any{"user": "bob", "password": masking.MaskString}, end.Request["POST"])
	assert.Equal(t,
		map[string]any{"raw_body": "user=bob&password=%2A%2A%2A+masked+%2A%2A%2A"},
		end.Request["data"])
}

func TestMiddleware_FileUpload(t *testing.T) {
	e, h, _ := setup(t, Config{Enabled: true})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("title", "report"))
	fw, err := mw.CreateFormFile("file", "report.csv")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("a,b\n1,2\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	rec := serve(e, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	end := h.all()[1].event
	assert.Equal(t, map[string]any{"file_list": []any{"report.csv"}}, end.Request["data"])
	assert.Equal(t, map[string]any{"title": "report"}, end.Request["POST"])
}

func TestMiddleware_SkipResponseData(t *testing.T) {
	e, h, _ := setup(t, Config{Enabled: true, CaptureResponseBody: true})

	serve(e, httptest.NewRequest(http.MethodGet, "/log_no_resp_data", nil))

	end := h.all()[1].event
	assert.Equal(t, requestlog.NotLoggedData, end.Response["data"])
}

func TestMiddleware_HandlerError(t *testing.T) {
	e, h, _ := setup(t, Config{Enabled: true})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	entries := h.all()
	require.Len(t, entries, 2)
	assert.Equal(t, slog.LevelInfo, entries[0].level)
	assert.Equal(t, slog.LevelError, entries[1].level)
	assert.Equal(t, "INCOMING (end): GET /fail (418)", entries[1].msg)
	assert.Error(t, entries[1].event.Err)
}

func TestMiddleware_HandlerPanic(t *testing.T) {
	e, h, _ := setup(t, Config{Enabled: true})
	// Pre middleware wraps the logging middleware, like the server's Recover.
	e.Pre(echomw.Recover())
	e.GET("/boom", func(echo.Context) error {
		panic("boom")
	})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	entries := h.all()
	require.Len(t, entries, 2)
	assert.Equal(t, "INCOMING (start): GET /boom", entries[0].msg)
	assert.Equal(t, slog.LevelError, entries[1].level)
	assert.Equal(t, "INCOMING (end): GET /boom (500)", entries[1].msg)
	require.Error(t, entries[1].event.Err)
	assert.Contains(t, entries[1].event.Err.Error(), "panic: boom")
}

func TestMiddleware_DecompressesResponse(t *testing.T) {
	e, h, _ := setup(t, Config{Enabled: true, CaptureResponseBody: true})

	serve(e, httptest.NewRequest(http.MethodGet, "/gzip", nil))

	end := h.all()[1].event
	assert.Equal(t, map[string]any{"obj1": map[string]any{"key1": "zipped"}}, end.Response["data"])
}

func TestMiddleware_Blocklist(t *testing.T) {
	tests := []struct {
		name      string
		blocklist []string
		path      string
		logged    bool
	}{
		{"route name", []string{"metrics"}, "/metrics", false},
		{"unknown route name ignored", []string{"swagger"}, "/metrics", true},
		{"path prefix", []string{"/heal"}, "/health", false},
		{"other path logged", []string{"metrics"}, "/health", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, h, _ := setup(t, Config{Enabled: true, Blocklist: tt.blocklist})
			serve(e, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if tt.logged {
				assert.Len(t, h.all(), 2)
			} else {
				assert.Empty(t, h.all())
			}
		})
	}
}

func TestMiddleware_Switch(t *testing.T) {
	e, h, sw := setup(t, Config{Enabled: false})

	serve(e, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, h.all())

	sw.SetEnabled(true)
	serve(e, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, h.all(), 2)
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name string
		body string
		ok   bool
	}{
		{"object", `{"a":1}`, true},
		{"array", `[1,2]`, true},
		{"empty", ``, false},
		{"spaces", `   `, false},
		{"form", `a=1&b=2`, false},
		{"trailing garbage", `{"a":1} x`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := decodeJSON([]byte(tt.body))
			assert.Equal(t, tt.ok, ok)
		})
	}
}
