package main

import (
	"fmt"
	"path/filepath"

	"github.com/shipwrecked/fleetcore/internal/config"
	"github.com/shipwrecked/fleetcore/internal/store"
	"github.com/spf13/cobra"
)

func runCronList(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	dataRoot := cfg.Gateway.DataRoot
	if dataRoot == "" {
		dataRoot = "."
	}
	st, err := store.Open(filepath.Join(dataRoot, "orchestrator.db"))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	jobs, err := st.ListCronJobs(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list cron jobs: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No cron jobs defined.")
		return nil
	}

	fmt.Fprintln(out, "NAME                 EXPRESSION     AGENT           ENABLED  LAST RUN")
	fmt.Fprintln(out, "-------------------  -------------  --------------  -------  -------------------------")
	for _, job := range jobs {
		lastRun := "never"
		if !job.LastRunAt.IsZero() {
			lastRun = job.LastRunAt.Format("2006-01-02T15:04:05Z07:00")
		}
		fmt.Fprintf(out, "%-19s  %-13s  %-14s  %-7t  %s\n", job.Name, job.Expression, job.AgentID, job.Enabled, lastRun)
	}
	return nil
}
