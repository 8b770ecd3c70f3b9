package orchestrator

import (
	"context"

	"github.com/shipwrecked/fleetcore/internal/sessionmgr"
	"github.com/shipwrecked/fleetcore/pkg/models"
)

// maxConcurrentTurns bounds how many inbound messages are dispatched to
// the LLM CLI at once, grounded on gateway/processing.go's semaphore
// pattern over the aggregated inbound channel.
const maxConcurrentTurns = 8

// processInbound fans in every registered channel's inbound messages
// and, for each, resolves a route and runs one session turn — each on
// its own goroutine, bounded by a semaphore so a burst of inbound
// traffic can't spawn unbounded LLM CLI subprocesses.
func (s *Server) processInbound(ctx context.Context) {
	messages := s.channels.AggregateMessages(ctx)
	sem := make(chan struct{}, maxConcurrentTurns)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			select {
			case sem <- struct{}{}:
				go func(m models.InboundMessage) {
					defer func() { <-sem }()
					s.handleInbound(ctx, m)
				}(msg)
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Server) handleInbound(ctx context.Context, msg models.InboundMessage) {
	route, err := s.router.Route(ctx, msg)
	if err != nil {
		s.logger.Warn("failed to route inbound message", "channel", msg.Channel, "error", err)
		return
	}

	result, err := s.sessions.SendMessage(ctx, route.AgentID, route.SessionKey, route.Text, sessionmgr.Context{
		Channel: msg.Channel,
		UserID:  msg.UserID,
		ChatID:  msg.ChatID,
	})
	if err != nil {
		s.logger.Error("session turn failed", "agent", route.AgentID, "error", err)
		return
	}
	if result.Text == "" {
		return
	}

	out, ok := s.channels.GetOutbound(msg.Channel)
	if !ok {
		s.logger.Warn("no outbound adapter for channel", "channel", msg.Channel)
		return
	}
	// DMs carry no chat id; the reply goes back to the sender directly.
	to := msg.ChatID
	if to == "" {
		to = msg.UserID
	}
	if err := out.Send(ctx, to, result.Text); err != nil {
		s.logger.Error("failed to deliver reply", "channel", msg.Channel, "error", err)
	}
}
