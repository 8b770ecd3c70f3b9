package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/shipwrecked/fleetcore/internal/ralph"
	"github.com/shipwrecked/fleetcore/internal/sessionmgr"
)

// Defaults applied when a ralph.run request omits them.
const (
	defaultRalphMaxIterations = 50
	defaultRalphMaxRetries    = 3
)

// RalphAgent is the subset of internal/registry.Registry the ralph.run
// handler needs to locate an agent's PLAN.md/progress.md pair.
type RalphAgent interface {
	AgentDir(slug string) string
}

// RegisterRalphHandlers wires ralph.run: it launches an autonomous
// plan-driven work loop over an agent's PLAN.md in a detached goroutine
// and returns immediately. Callers observe progress via
// the agent's progress.md and PLAN.md on disk rather than blocking the
// IPC request for the loop's full duration.
func RegisterRalphHandlers(h *Hub, manager *sessionmgr.Manager, agents RalphAgent, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ralph")

	h.Register("ralph.run", func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req struct {
			AgentID        string `json:"agentId"`
			ConversationID string `json:"conversationId"`
			VerifyCommand  string `json:"verifyCommand"`
			Domain         string `json:"domain"`
			MaxIterations  int    `json:"maxIterations"`
			MaxRetries     int    `json:"maxRetries"`
		}
		if err := unmarshalPayload(payload, &req); err != nil {
			return nil, err
		}
		if req.AgentID == "" || req.ConversationID == "" {
			return nil, fmt.Errorf("agentId and conversationId are required")
		}

		if req.MaxIterations <= 0 {
			req.MaxIterations = defaultRalphMaxIterations
		}
		if req.MaxRetries <= 0 {
			req.MaxRetries = defaultRalphMaxRetries
		}

		dir := agents.AgentDir(req.AgentID)
		runner := &ralph.ManagerRunner{
			Manager:        manager,
			AgentID:        req.AgentID,
			ConversationID: req.ConversationID,
			ChannelContext: sessionmgr.Context{},
		}
		cfg := ralph.RunConfig{
			PlanPath:      filepath.Join(dir, "PLAN.md"),
			ProgressPath:  filepath.Join(dir, "progress.md"),
			WorkDir:       dir,
			VerifyCommand: req.VerifyCommand,
			Domain:        ralph.Domain(req.Domain),
			MaxIterations: req.MaxIterations,
			MaxRetries:    req.MaxRetries,
		}
		loop := ralph.NewLoop(cfg, runner, logger)

		go func() {
			result, err := loop.Run(context.Background())
			if err != nil {
				logger.Error("ralph run failed", "agent", req.AgentID, "error", err)
				return
			}
			logger.Info("ralph run finished", "agent", req.AgentID,
				"iterations", result.TotalIterations,
				"completed", result.TasksCompleted,
				"blocked", result.TasksBlocked,
				"remaining", result.TasksRemaining)
		}()

		return map[string]any{"started": true, "planPath": cfg.PlanPath}, nil
	})
}
