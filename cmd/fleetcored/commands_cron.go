package main

import (
	"github.com/spf13/cobra"
)

// buildCronCmd creates the "cron" command group for inspecting scheduled
// jobs persisted in the orchestrator's store.
func buildCronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Inspect scheduled cron jobs",
	}
	cmd.AddCommand(buildCronListCmd())
	return cmd
}

func buildCronListCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cron jobs stored in the orchestrator database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCronList(cmd, resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config.json")
	return cmd
}
