package ipc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shipwrecked/fleetcore/internal/channels"
	"github.com/shipwrecked/fleetcore/internal/sessionmgr"
	"github.com/shipwrecked/fleetcore/pkg/models"
)

// SessionLister is the subset of internal/store.Store the sessions.list
// handler needs.
type SessionLister interface {
	ListSessions(ctx context.Context) ([]*models.Session, error)
	GetSession(ctx context.Context, conversationID string) (*models.Session, error)
}

// AgentLister is the subset of internal/registry.Registry the
// agents.list handler needs.
type AgentLister interface {
	List() []string
}

// Sender runs a turn, shared by sessions.spawn and sessions.send —
// both are the same underlying operation (Manager.SendMessage creates
// a session on first use and resumes it thereafter).
type Sender interface {
	SendMessage(ctx context.Context, agentID, conversationID, prompt string, chCtx sessionmgr.Context) (*sessionmgr.Result, error)
}

// RegisterSessionHandlers wires sessions.list/spawn/send/status.
func RegisterSessionHandlers(h *Hub, sender Sender, store SessionLister) {
	h.Register("sessions.list", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return store.ListSessions(ctx)
	})

	h.Register("sessions.status", func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req struct {
			ConversationID string `json:"conversationId"`
		}
		if err := unmarshalPayload(payload, &req); err != nil {
			return nil, err
		}
		if req.ConversationID == "" {
			return nil, fmt.Errorf("conversationId is required")
		}
		return store.GetSession(ctx, req.ConversationID)
	})

	sendFn := func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req struct {
			AgentID        string `json:"agentId"`
			ConversationID string `json:"conversationId"`
			Prompt         string `json:"prompt"`
			Channel        string `json:"channel"`
			UserID         string `json:"userId"`
			ChatID         string `json:"chatId"`
		}
		if err := unmarshalPayload(payload, &req); err != nil {
			return nil, err
		}
		if req.AgentID == "" || req.ConversationID == "" || req.Prompt == "" {
			return nil, fmt.Errorf("agentId, conversationId and prompt are required")
		}
		return sender.SendMessage(ctx, req.AgentID, req.ConversationID, req.Prompt, sessionmgr.Context{
			Channel: models.ChannelType(req.Channel),
			UserID:  req.UserID,
			ChatID:  req.ChatID,
		})
	}
	h.Register("sessions.spawn", sendFn)
	h.Register("sessions.send", sendFn)
}

// RegisterAgentHandlers wires agents.list.
func RegisterAgentHandlers(h *Hub, agents AgentLister) {
	h.Register("agents.list", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return agents.List(), nil
	})
}

// RegisterMessagingHandlers wires messaging.send/typing/channel_info
// against a channels.Registry.
func RegisterMessagingHandlers(h *Hub, reg *channels.Registry) {
	h.Register("messaging.send", func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req struct {
			Channel string `json:"channel"`
			ChatID  string `json:"chatId"`
			Text    string `json:"text"`
		}
		if err := unmarshalPayload(payload, &req); err != nil {
			return nil, err
		}
		if req.Channel == "" || req.ChatID == "" || req.Text == "" {
			return nil, fmt.Errorf("channel, chatId and text are required")
		}
		out, ok := reg.GetOutbound(models.ChannelType(req.Channel))
		if !ok {
			return nil, fmt.Errorf("channel %q has no outbound adapter registered", req.Channel)
		}
		if err := out.Send(ctx, req.ChatID, req.Text); err != nil {
			return nil, err
		}
		return map[string]bool{"sent": true}, nil
	})

	h.Register("messaging.typing", func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req struct {
			Channel string `json:"channel"`
			ChatID  string `json:"chatId"`
		}
		if err := unmarshalPayload(payload, &req); err != nil {
			return nil, err
		}
		a, ok := reg.Get(models.ChannelType(req.Channel))
		if !ok {
			return nil, fmt.Errorf("channel %q is not registered", req.Channel)
		}
		typing, ok := a.(channels.TypingAdapter)
		if !ok {
			// Adapters that cannot express typing silently no-op (§4.G).
			return map[string]bool{"sent": false}, nil
		}
		if err := typing.SendTyping(ctx, req.ChatID); err != nil {
			return nil, err
		}
		return map[string]bool{"sent": true}, nil
	})

	h.Register("messaging.channel_info", func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req struct {
			Channel string `json:"channel"`
			ChatID  string `json:"chatId"`
		}
		if err := unmarshalPayload(payload, &req); err != nil {
			return nil, err
		}
		a, ok := reg.Get(models.ChannelType(req.Channel))
		if !ok {
			return nil, fmt.Errorf("channel %q is not registered", req.Channel)
		}
		info, ok := a.(channels.ChannelInfoAdapter)
		if !ok {
			return map[string]any{"channel": req.Channel}, nil
		}
		return info.ChannelInfo(ctx, req.ChatID)
	})
}

func unmarshalPayload(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return fmt.Errorf("missing payload")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	return nil
}
