package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pagegate/pagegate/internal/config"
	"github.com/pagegate/pagegate/internal/executor"
	"github.com/pagegate/pagegate/internal/server"
)

var (
	serveHost   string
	servePort   string
	waitBackend time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway server",
	Long: `Start the gateway HTTP server.

The server provides:
  - /health              - Gateway liveness check
  - /health/ready        - Backend readiness check (server and models)
  - /{operation}         - POST, invoke a backend model
  - /restructure-pages   - POST, merge per-page parsing results

Examples:
  pagegate serve                       # Start on default port 8080
  pagegate serve --port 3000           # Start on custom port
  pagegate serve --wait-backend 60s    # Block until the backend is up`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := cm.Get()
		if serveHost != "" {
			cfg.Host = serveHost
		}
		if servePort != "" {
			cfg.Port = servePort
		}

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.SlogLevel(),
		}))

		if waitBackend > 0 {
			client := executor.NewHTTPClient(executor.HTTPConfig{BaseURL: cfg.ExecutorURL})
			logger.Info("waiting for backend", "executorUrl", cfg.ExecutorURL, "timeout", waitBackend)
			if err := executor.WaitReady(ctx, client, waitBackend); err != nil {
				return err
			}
		}

		srv, err := server.New(server.Config{
			Gateway: cfg,
			Logger:  logger,
		})
		if err != nil {
			return err
		}

		cm.OnChange(func(c *config.Config) {
			logger.Info("configuration file changed; serving settings apply on restart",
				"logLevel", c.LogLevel)
		})
		cm.WatchConfig()

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (overrides config)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (overrides config)")
	serveCmd.Flags().DurationVar(&waitBackend, "wait-backend", 0, "Wait up to this long for the backend before serving")

	rootCmd.AddCommand(serveCmd)
}
