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

	"github.com/youtonghy/Voice-transcript/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and WebSocket event stream",
	Long: `Run the service. Recording sessions, media jobs and text operations are
driven over the HTTP API; events are pushed to WebSocket clients on /events
and Prometheus metrics are exposed on /metrics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	logger.Info("Starting voice transcription service",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
	)

	a, err := newApp(cfg, logger, appOptions{capture: true, hub: true})
	if err != nil {
		return err
	}

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, server.Deps{
			Sessions:      a.sessions,
			Conversations: a.store,
			Config:        a.holder,
			Providers:     a.router,
			Hub:           a.hub,
			Gatherer:      a.registry,
			Metrics:       a.metrics,
		})
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)

		if err := httpServer.Start(); err != nil {
			a.close(context.Background())
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	} else {
		logger.Warn("HTTP API disabled, nothing can drive the service")
	}

	// Setup signal handling for graceful shutdown; SIGHUP reloads settings
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	logger.Info("Service started successfully, waiting for signals...")

wait:
	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				a.reload(configPath)
				continue
			}
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
			break wait
		case <-cmd.Context().Done():
			logger.Info("Context cancelled, shutting down")
			break wait
		}
	}

	logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stops a running recording, which may still emit a summary
	a.close(shutdownCtx)

	logger.Info("Service stopped")
	return nil
}
