package ralph

import (
	"context"

	"github.com/shipwrecked/fleetcore/internal/sessionmgr"
)

// ManagerRunner adapts a sessionmgr.Manager into an LLMRunner, driving
// one agent's session for the lifetime of a single RALPH run.
type ManagerRunner struct {
	Manager        *sessionmgr.Manager
	AgentID        string
	ConversationID string
	ChannelContext sessionmgr.Context
}

// Run implements LLMRunner.
func (r *ManagerRunner) Run(ctx context.Context, prompt string) (string, error) {
	result, err := r.Manager.SendMessage(ctx, r.AgentID, r.ConversationID, prompt, r.ChannelContext)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}
