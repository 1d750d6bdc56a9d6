// Package server is a small echo application whose traffic is logged in
// both directions.
package server

import (
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"reqlog/internal/middleware"
)

// Handler holds the HTTP handlers
type Handler struct {
	client   *http.Client
	upstream string
}

// NewHandler creates the handlers. Calls to /upstream/* go to upstream
// through client.
func NewHandler(client *http.Client, upstream string) *Handler {
	if client == nil {
		client = http.DefaultClient
	}
	return &Handler{
		client:   client,
		upstream: strings.TrimRight(upstream, "/"),
	}
}

func sample() map[string]any {
	return map[string]any{"obj1": map[string]any{"key1": "value"}}
}

// Index handles GET /
func (h *Handler) Index(c echo.Context) error {
	return c.JSON(http.StatusOK, sample())
}

// LogNoRespData handles GET /log_no_resp_data. Its response body is kept
// out of the log.
func (h *Handler) LogNoRespData(c echo.Context) error {
	middleware.SkipResponseData(c)
	return c.JSON(http.StatusOK, sample())
}

// Echo handles POST /echo by returning the request body unchanged.
func (h *Handler) Echo(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	contentType := c.Request().Header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	return c.Blob(http.StatusOK, contentType, body)
}

// Upstream handles /upstream/* by forwarding the call to the configured
// upstream and relaying its answer.
func (h *Handler) Upstream(c echo.Context) error {
	if h.upstream == "" {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no upstream configured")
	}

	target, err := url.Parse(h.upstream + "/" + strings.TrimLeft(c.Param("*"), "/"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid upstream path")
	}
	target.RawQuery = c.Request().URL.RawQuery

	in := c.Request()
	var body io.Reader
	if in.ContentLength != 0 {
		body = in.Body
	}
	req, err := http.NewRequestWithContext(in.Context(), in.Method, target.String(), body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid upstream request")
	}
	req.ContentLength = in.ContentLength
	if ct := in.Header.Get(echo.HeaderContentType); ct != "" {
		req.Header.Set(echo.HeaderContentType, ct)
	}
	if id := in.Header.Get(middleware.RequestIDHeader); id != "" {
		req.Header.Set(middleware.RequestIDHeader, id)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "upstream request failed").SetInternal(err)
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	return c.Stream(resp.StatusCode, contentType, resp.Body)
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
