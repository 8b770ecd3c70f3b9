// Command fleetcored is the CLI entry point for the FleetCore multi-agent
// orchestrator.
//
// FleetCore runs a roster of long-lived AI agents, each with its own
// identity and memory, reachable over Telegram, Discord, Slack, and a
// bare web channel, and driven by an interactive LLM CLI subprocess per
// conversation.
//
// # Basic Usage
//
// Start the orchestrator:
//
//	fleetcored serve --config config.json
//
// Manage agents:
//
//	fleetcored agent add --slug researcher --model claude-opus-4
//	fleetcored agent list
//
// List scheduled cron jobs:
//
//	fleetcored cron list
//
// # Environment Variables
//
//   - FLEETCORE_CONFIG: path to config.json (default: config.json)
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() so tests can exercise it without os.Exit.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fleetcored",
		Short: "FleetCore - multi-agent orchestrator",
		Long: `FleetCore runs a roster of persistent AI agents over Telegram, Discord,
Slack, and a web channel, each driven by an interactive LLM CLI subprocess.

Documentation: config.json schema, agent on-disk layout, and the RALPH
autonomous work loop are described in this repository's design notes.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildAgentCmd(),
		buildCronCmd(),
	)
	return rootCmd
}

func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("FLEETCORE_CONFIG"); env != "" {
		return env
	}
	return "config.json"
}
