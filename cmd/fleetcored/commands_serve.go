package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that starts the orchestrator.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the FleetCore orchestrator",
		Long: `Start the FleetCore orchestrator with every configured agent, channel
adapter, and scheduler primitive running.

The process will:
1. Load and validate config.json
2. Ensure every configured agent's on-disk directory exists
3. Start all enabled channel adapters (web, Telegram, Slack, Discord)
4. Start the IPC hub, cron scheduler, heartbeat runner, and task queue
5. Fan inbound messages into the session manager and reply on each channel

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # Start with default config
  fleetcored serve

  # Start with a custom config path
  fleetcored serve --config /etc/fleetcore/config.json

  # Start with debug logging
  fleetcored serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runServe(cmd, configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config.json (default: $FLEETCORE_CONFIG or config.json)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}
