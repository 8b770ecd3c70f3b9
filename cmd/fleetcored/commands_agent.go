package main

import (
	"github.com/spf13/cobra"
)

// buildAgentCmd creates the "agent" command group for managing agents
// registered in config.json.
func buildAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage agents",
		Long: `Add, list, and remove the agents config.json defines.

Adding an agent also creates its on-disk directory (SOUL.md,
HEARTBEAT.md, MEMORY.md, TOOLS.md).`,
	}

	cmd.AddCommand(buildAgentListCmd(), buildAgentAddCmd(), buildAgentRemoveCmd())
	return cmd
}

func buildAgentListCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgentList(cmd, resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config.json")
	return cmd
}

func buildAgentAddCmd() *cobra.Command {
	var (
		configPath string
		slug       string
		displayName string
		model      string
		preset     string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a new agent to config.json",
		Example: `  fleetcored agent add --slug researcher --model claude-opus-4 --preset coding`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgentAdd(cmd, resolveConfigPath(configPath), slug, displayName, model, preset)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config.json")
	cmd.Flags().StringVar(&slug, "slug", "", "Agent slug, e.g. \"researcher\" (required)")
	cmd.Flags().StringVar(&displayName, "display-name", "", "Human-readable agent name (defaults to slug)")
	cmd.Flags().StringVar(&model, "model", "", "Model identifier (required)")
	cmd.Flags().StringVar(&preset, "preset", "none", "Tool preset: none, coding, messaging, full, custom")
	cobra.CheckErr(cmd.MarkFlagRequired("slug"))
	cobra.CheckErr(cmd.MarkFlagRequired("model"))
	return cmd
}

func buildAgentRemoveCmd() *cobra.Command {
	var (
		configPath  string
		deleteFiles bool
	)
	cmd := &cobra.Command{
		Use:   "remove [slug]",
		Short: "Remove an agent from config.json",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgentRemove(cmd, resolveConfigPath(configPath), args[0], deleteFiles)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config.json")
	cmd.Flags().BoolVar(&deleteFiles, "delete-files", false, "Also delete the agent's on-disk directory")
	return cmd
}
