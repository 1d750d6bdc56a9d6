// Package app wires the request loggers, masking rules, sink and demo
// server together and controls their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"reqlog/config"
	"reqlog/internal/httpclient"
	"reqlog/internal/logging"
	"reqlog/internal/masking"
	"reqlog/internal/middleware"
	"reqlog/internal/requestlog"
	"reqlog/internal/server"
	"reqlog/internal/sink"
)

// App represents the main application with all its dependencies.
type App struct {
	config    *config.Config
	handler   slog.Handler
	sanitizer *masking.Sanitizer
	logger    *requestlog.Logger
	client    *http.Client
	sink      *sink.Result
	installed bool
	server    *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// Config holds the options for creating an App.
type Config struct {
	// AppConfig holds the loaded settings.
	AppConfig *config.Config

	// Output receives console log lines (default: os.Stderr).
	Output io.Writer
}

// New creates an App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("app config is required")
	}
	appCfg := cfg.AppConfig
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	level, err := logging.ParseLevel(appCfg.LogLevel)
	if err != nil {
		return nil, err
	}

	console, err := logging.NewHandler(out, logging.Options{
		Format:                 appCfg.LogFormat,
		Level:                  level,
		LoggerName:             appCfg.LoggerName,
		DefaultExtra:           appCfg.DefaultExtra,
		MaxJSONDataToLog:       appCfg.MaxJSONDataToLog,
		MaxVerboseOutputLength: appCfg.MaxVerboseOutputLength,
	})
	if err != nil {
		return nil, err
	}

	sinkResult, err := sink.New(ctx, appCfg.Sink)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize request log sink: %w", err)
	}

	handler := console
	if h := sinkResult.Handler(level); h != nil {
		handler = logging.NewFanout(console, h)
	}

	registry, err := NewRegistry(appCfg.Masks)
	if err != nil {
		closeErr := sinkResult.Close()
		return nil, errors.Join(err, closeErr)
	}
	sanitizer := masking.NewSanitizer(registry, masking.Options{
		Enabled:            appCfg.EnableSensitivePathsProcessor,
		ShowNestedKeys:     appCfg.ShowNestedKeysInSensitivePaths,
		PreferTextFallback: appCfg.PreferTextFallbackMasking,
	})

	logger := requestlog.NewLogger(slog.New(handler), sanitizer, requestlog.Options{
		LogResponseContent: appCfg.LogResponseContent,
		RedactHeaders:      appCfg.RedactSensitiveHeaders,
	})

	clientCfg := httpclient.DefaultConfig()
	clientCfg.MaxBodyCapture = appCfg.Server.MaxBodyCapture
	client := httpclient.NewHTTPClient(&clientCfg, logger)
	if t, ok := client.Transport.(*httpclient.Transport); ok {
		t.SetEnabled(appCfg.EnableOutboundRequestLogging)
	}

	a := &App{
		config:    appCfg,
		handler:   handler,
		sanitizer: sanitizer,
		logger:    logger,
		client:    client,
		sink:      sinkResult,
	}

	if appCfg.EnableRequestsLogging {
		httpclient.Install(logger)
		a.installed = true
	}

	a.server = server.New(logger, a.client, &server.Config{
		MetricsEnabled:  appCfg.Metrics.Enabled,
		MetricsEndpoint: appCfg.Metrics.Endpoint,
		BodySizeLimit:   appCfg.Server.BodySizeLimit,
		UpstreamURL:     appCfg.Server.UpstreamURL,
		Logging: middleware.Config{
			Enabled:             appCfg.EnableLoggingMiddleware,
			Blocklist:           appCfg.MiddlewareBlocklist,
			RouteMasks:          appCfg.RouteMasks,
			MaxBodyCapture:      appCfg.Server.MaxBodyCapture,
			CaptureResponseBody: appCfg.LogResponseContent,
		},
	})

	a.logStartupInfo()
	return a, nil
}

// Apply updates the settings that can change while the server runs:
// incoming and outgoing logging switches. Everything else needs a restart.
func (a *App) Apply(cfg *config.Config) {
	a.server.LoggingSwitch().SetEnabled(cfg.EnableLoggingMiddleware)
	if t, ok := a.client.Transport.(*httpclient.Transport); ok {
		t.SetEnabled(cfg.EnableOutboundRequestLogging)
	}

	a.shutdownMu.Lock()
	switch {
	case a.shutdown:
	case a.installed:
		if t := httpclient.Installed(); t != nil {
			t.SetEnabled(bool(cfg.EnableRequestsLogging))
		}
	case cfg.EnableRequestsLogging:
		httpclient.Install(a.logger)
		a.installed = true
	}
	a.shutdownMu.Unlock()

	slog.Info("request logging reconfigured",
		"incoming", cfg.EnableLoggingMiddleware,
		"outgoing", cfg.EnableOutboundRequestLogging,
		"default_transport", bool(cfg.EnableRequestsLogging),
	)
}

// Handler returns the slog.Handler request events are written to.
func (a *App) Handler() slog.Handler {
	return a.handler
}

// Logger returns the request logger.
func (a *App) Logger() *requestlog.Logger {
	return a.logger
}

// Client returns the HTTP client used for outgoing calls.
func (a *App) Client() *http.Client {
	return a.client
}

// ServeHTTP serves the demo application.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.server.ServeHTTP(w, r)
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown stops the server, restores http.DefaultTransport and flushes
// the sink, in that order. It is idempotent and attempts every step.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error

	if err := a.server.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}

	a.shutdownMu.Lock()
	if a.installed {
		httpclient.Uninstall()
		a.installed = false
	}
	a.shutdownMu.Unlock()

	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			slog.Error("request log sink close error", "error", err)
			errs = append(errs, fmt.Errorf("sink close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	slog.Info("application shutdown complete")
	return nil
}

func (a *App) logStartupInfo() {
	cfg := a.config
	registry := a.sanitizer.Registry()

	slog.Info("masking rules loaded",
		"enabled", cfg.EnableSensitivePathsProcessor,
		"rules", registry.Names(),
		"global", registry.GlobalNames(),
		"fingerprint", registry.Fingerprint(),
	)

	if cfg.Metrics.Enabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	if a.sink.Writer != nil {
		slog.Info("request log sink enabled",
			"type", cfg.Sink.Type,
			"buffer_size", cfg.Sink.BufferSize,
			"flush_interval", cfg.Sink.FlushInterval,
			"retention_days", cfg.Sink.RetentionDays,
		)
	} else {
		slog.Info("request log sink disabled")
	}

	slog.Info("request logging configured",
		"incoming", cfg.EnableLoggingMiddleware,
		"outgoing", cfg.EnableOutboundRequestLogging,
		"default_transport", bool(cfg.EnableRequestsLogging),
		"format", cfg.LogFormat,
	)
}
