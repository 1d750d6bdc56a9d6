package server

import (
	"context"
	"net/http"
	"path"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reqlog/internal/middleware"
	"reqlog/internal/requestlog"
)

// DefaultBodySizeLimit caps request bodies when Config.BodySizeLimit is empty.
const DefaultBodySizeLimit = "10M"

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
	logging *middleware.Switch
}

// Config holds server configuration options
type Config struct {
	MetricsEnabled  bool   // Whether to expose the Prometheus metrics endpoint
	MetricsEndpoint string // HTTP path for the metrics endpoint (default: /metrics)
	BodySizeLimit   string // Max request body size, e.g. "10M"
	UpstreamURL     string // Target of /upstream/*

	Logging middleware.Config
}

// New creates the HTTP server. Incoming requests are logged through logger
// and /upstream/* calls go out through client.
func New(logger *requestlog.Logger, client *http.Client, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	handler := NewHandler(client, cfg.UpstreamURL)

	bodySizeLimit := cfg.BodySizeLimit
	if bodySizeLimit == "" {
		bodySizeLimit = DefaultBodySizeLimit
	}

	logMiddleware, logSwitch := middleware.New(logger, cfg.Logging)

	// Global middleware stack (order matters)
	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit(bodySizeLimit))
	e.Use(logMiddleware)

	e.GET("/", handler.Index).Name = "index"
	e.GET("/log_no_resp_data", handler.LogNoRespData).Name = "log_no_resp_data"
	e.POST("/echo", handler.Echo).Name = "echo"
	for _, r := range e.Match([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}, "/upstream/*", handler.Upstream) {
		r.Name = "upstream"
	}
	e.GET("/health", handler.Health).Name = "health"

	if cfg.MetricsEnabled {
		metricsPath := "/metrics"
		if cfg.MetricsEndpoint != "" {
			metricsPath = path.Clean("/" + cfg.MetricsEndpoint)
		}
		e.GET(metricsPath, echo.WrapHandler(promhttp.Handler())).Name = "metrics"
	}

	return &Server{
		echo:    e,
		handler: handler,
		logging: logSwitch,
	}
}

// LoggingSwitch turns incoming request logging on and off at runtime.
func (s *Server) LoggingSwitch() *middleware.Switch {
	return s.logging
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
