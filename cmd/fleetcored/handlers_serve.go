package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shipwrecked/fleetcore/internal/config"
	"github.com/shipwrecked/fleetcore/internal/orchestrator"
	"github.com/spf13/cobra"
)

// runServe implements the serve command: load config, build and start an
// orchestrator.Server, and block until a shutdown signal arrives.
func runServe(cmd *cobra.Command, configPath string, debug bool) error {
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	slog.Info("starting fleetcored",
		"version", version,
		"commit", commit,
		"config", configPath,
		"debug", debug,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	server, err := orchestrator.New(orchestrator.ServerConfig{
		Config:     cfg,
		ConfigPath: configPath,
		Logger:     slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("failed to build orchestrator: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}

	slog.Info("fleetcored started", "agents", len(cfg.Agents))

	<-ctx.Done()
	slog.Info("shutdown signal received, stopping orchestrator")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
