package main

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/shipwrecked/fleetcore/internal/apperr"
	"github.com/shipwrecked/fleetcore/internal/config"
	"github.com/shipwrecked/fleetcore/internal/registry"
	"github.com/shipwrecked/fleetcore/pkg/models"
	"github.com/spf13/cobra"
)

func runAgentList(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(cfg.Agents) == 0 {
		fmt.Fprintln(out, "No agents defined.")
		return nil
	}

	slugs := make([]string, 0, len(cfg.Agents))
	for slug := range cfg.Agents {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	fmt.Fprintln(out, "SLUG            DISPLAY NAME         MODEL                          PRESET")
	fmt.Fprintln(out, "--------------  -------------------  -----------------------------  --------")
	for _, slug := range slugs {
		a := cfg.Agents[slug]
		fmt.Fprintf(out, "%-14s  %-19s  %-29s  %s\n", a.Slug, a.DisplayName, a.Model, a.ToolPreset)
	}
	return nil
}

func runAgentAdd(cmd *cobra.Command, configPath, slug, displayName, model, preset string) error {
	if !registry.ValidSlug(slug) {
		return apperr.ConfigError(fmt.Sprintf("invalid agent slug %q", slug), nil)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if _, exists := cfg.Agents[slug]; exists {
		return apperr.ConfigError(fmt.Sprintf("agent %q already exists", slug), nil)
	}

	if displayName == "" {
		displayName = slug
	}
	agent := models.AgentConfig{
		Slug:        slug,
		DisplayName: displayName,
		Model:       model,
		ToolPreset:  models.ToolPreset(preset),
		Heartbeat:   models.HeartbeatConfig{Enabled: false, Interval: "1h", Mode: "check"},
	}

	if cfg.Agents == nil {
		cfg.Agents = map[string]models.AgentConfig{}
	}
	cfg.Agents[slug] = agent

	if err := config.Save(configPath, cfg); err != nil {
		return err
	}

	dataRoot := cfg.Gateway.DataRoot
	if dataRoot == "" {
		dataRoot = "."
	}
	if err := os.MkdirAll(dataRoot, 0o755); err != nil {
		return fmt.Errorf("agent added to config but failed to create data root: %w", err)
	}
	reg := registry.New(dataRoot, slog.Default())
	if err := reg.Ensure(agent); err != nil {
		return fmt.Errorf("agent added to config but failed to create its directory: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "agent %q added\n", slug)
	return nil
}

func runAgentRemove(cmd *cobra.Command, configPath, slug string, deleteFiles bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if _, exists := cfg.Agents[slug]; !exists {
		return apperr.AgentNotFound(slug)
	}
	delete(cfg.Agents, slug)

	if err := config.Save(configPath, cfg); err != nil {
		return err
	}

	if deleteFiles {
		dataRoot := cfg.Gateway.DataRoot
		if dataRoot == "" {
			dataRoot = "."
		}
		reg := registry.New(dataRoot, slog.Default())
		if err := reg.RemoveFiles(slug); err != nil {
			return fmt.Errorf("agent removed from config but failed to delete its directory: %w", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "agent %q removed\n", slug)
	return nil
}
