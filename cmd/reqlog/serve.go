package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"reqlog/internal/app"
	"reqlog/internal/logging"
	"reqlog/internal/version"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the demo server with request logging enabled",
		Long: `Run an HTTP server whose incoming requests and outgoing calls are logged.
Send SIGHUP to reload the logging switches from the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, *configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if port != "" {
				cfg.Server.Port = port
			}

			level, err := logging.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			bootstrap, err := logging.NewHandler(os.Stderr, logging.Options{
				Format:     cfg.LogFormat,
				Level:      level,
				LoggerName: cfg.LoggerName,
			})
			if err != nil {
				return err
			}
			slog.SetDefault(slog.New(bootstrap))

			slog.Info("starting reqlog",
				"version", version.Version,
				"commit", version.Commit,
				"build_date", version.Date,
				"config", cfg.Source(),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, app.Config{AppConfig: cfg})
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			slog.SetDefault(slog.New(a.Handler()))

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)

			done := make(chan struct{})
			go func() {
				defer close(done)
				for {
					select {
					case <-ctx.Done():
						shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
						defer cancel()
						if err := a.Shutdown(shutdownCtx); err != nil {
							slog.Error("shutdown error", "error", err)
						}
						return
					case <-hup:
						if err := cfg.Reconfigure(); err != nil {
							slog.Error("failed to reload config", "error", err)
							continue
						}
						a.Apply(cfg)
					}
				}
			}()

			err = a.Start(":" + cfg.Server.Port)
			stop()
			<-done
			return err
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides config)")
	return cmd
}
