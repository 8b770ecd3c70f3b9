// Package router implements message routing (§4.F): resolving an
// inbound message to an agent and a conversation session key.
package router

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shipwrecked/fleetcore/pkg/models"
)

// UserMappingLookup resolves a channel-scoped user identity to an agent
// slug, consulted only when no @mention or routing rule matches.
// Implemented by internal/store.Store.
type UserMappingLookup interface {
	LookupUser(ctx context.Context, channel models.ChannelType, channelUserID string) (string, bool, error)
}

// Route is the result of resolving an InboundMessage: the agent to
// dispatch to, the conversation session key, and the message text with
// any leading @mention token stripped.
type Route struct {
	AgentID    string
	SessionKey string
	Text       string
}

// Router resolves InboundMessages to Routes using, in order: @mention,
// declared routing rules, a user-mapping DB lookup, then a default
// agent.
type Router struct {
	mu     sync.RWMutex
	agents map[string]bool // registered, mentionable agent slugs
	rules  []models.RoutingRule

	defaultAgent string
	users        UserMappingLookup
}

// New builds a Router over the given routing rules, default agent, and
// user-mapping lookup.
func New(rules []models.RoutingRule, defaultAgent string, users UserMappingLookup) *Router {
	return &Router{
		agents:       make(map[string]bool),
		rules:        rules,
		defaultAgent: defaultAgent,
		users:        users,
	}
}

// AddAgent registers a slug as mentionable.
func (r *Router) AddAgent(slug string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[strings.ToLower(slug)] = true
}

// RemoveAgent unregisters a slug; it stops matching @mentions.
func (r *Router) RemoveAgent(slug string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, strings.ToLower(slug))
}

func (r *Router) isRegistered(slug string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.agents[strings.ToLower(slug)]
}

// Route resolves msg to an agent, a session key, and mention-stripped
// text, per the §4.F resolution order.
func (r *Router) Route(ctx context.Context, msg models.InboundMessage) (Route, error) {
	text := msg.Text
	agentID, text, ok := r.matchMention(text)
	if !ok {
		agentID, ok = r.matchRule(msg)
	}
	if !ok {
		agentID, ok = r.matchUserMapping(ctx, msg)
	}
	if !ok {
		agentID = r.defaultAgent
	}
	if agentID == "" {
		return Route{}, fmt.Errorf("router: no agent resolved for channel %q and no default agent configured", msg.Channel)
	}

	return Route{
		AgentID:    agentID,
		SessionKey: sessionKey(msg, agentID),
		Text:       text,
	}, nil
}

// matchMention looks for a leading "@slug" token naming a currently
// registered agent. On match it returns the agent and the text with the
// "@slug" token (plus one trailing space) stripped.
func (r *Router) matchMention(text string) (agentID, rest string, ok bool) {
	trimmed := strings.TrimLeft(text, " ")
	if !strings.HasPrefix(trimmed, "@") {
		return "", text, false
	}
	body := trimmed[1:]
	end := strings.IndexAny(body, " \t\n")
	var slug string
	if end == -1 {
		slug = body
	} else {
		slug = body[:end]
	}
	if slug == "" || !r.isRegistered(slug) {
		return "", text, false
	}

	rest = body
	if end != -1 {
		rest = body[end:]
		rest = strings.TrimPrefix(rest, " ")
	} else {
		rest = ""
	}
	return strings.ToLower(slug), rest, true
}

// matchRule evaluates routing rules in declared order; the first rule
// whose channel, optional channelUserId, and optional chatId all match
// wins.
func (r *Router) matchRule(msg models.InboundMessage) (string, bool) {
	for _, rule := range r.rules {
		if rule.Channel != msg.Channel {
			continue
		}
		if rule.ChannelUserID != "" && rule.ChannelUserID != msg.UserID {
			continue
		}
		if rule.ChatID != "" && rule.ChatID != msg.ChatID {
			continue
		}
		return rule.AgentID, true
	}
	return "", false
}

func (r *Router) matchUserMapping(ctx context.Context, msg models.InboundMessage) (string, bool) {
	if r.users == nil {
		return "", false
	}
	agentID, ok, err := r.users.LookupUser(ctx, msg.Channel, msg.UserID)
	if err != nil || !ok {
		return "", false
	}
	return agentID, true
}

// sessionKey synthesizes the deterministic conversation key for msg:
// chat-scoped when a chat id is present (group contexts share a
// conversation), user-scoped otherwise (DMs are per-user). The same
// participant in a DM and in a group produces different keys.
func sessionKey(msg models.InboundMessage, agentID string) string {
	if msg.ChatID != "" {
		return fmt.Sprintf("%s:%s:%s", msg.Channel, msg.ChatID, agentID)
	}
	return fmt.Sprintf("%s:%s:%s", msg.Channel, msg.UserID, agentID)
}
