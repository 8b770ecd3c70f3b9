// Package discord implements the channels.Adapter contract over
// bwmarrin/discordgo's gateway session.
package discord

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/shipwrecked/fleetcore/internal/apperr"
	"github.com/shipwrecked/fleetcore/internal/channels"
	"github.com/shipwrecked/fleetcore/pkg/models"
)

var errAdapterNotStarted = errors.New("discord adapter not started")

// Config holds the Discord adapter's connection settings.
type Config struct {
	Token  string
	Logger *slog.Logger
}

func (c *Config) validate() error {
	if c.Token == "" {
		return apperr.ConfigError("discord: token is required", nil)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Adapter implements channels.FullAdapter for Discord.
type Adapter struct {
	config   Config
	session  *discordgo.Session
	messages chan models.InboundMessage
	logger   *slog.Logger

	mu        sync.RWMutex
	connected bool
	lastErr   string
	lastPing  time.Time
}

// NewAdapter validates config and constructs an Adapter. The gateway
// connection is opened by Start.
func NewAdapter(config Config) (*Adapter, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &Adapter{
		config:   config,
		messages: make(chan models.InboundMessage, 100),
		logger:   config.Logger.With("adapter", "discord"),
	}, nil
}

// Type implements channels.Adapter.
func (a *Adapter) Type() models.ChannelType { return models.ChannelDiscord }

// Start opens the gateway session and registers the message handler.
func (a *Adapter) Start(ctx context.Context) error {
	session, err := discordgo.New("Bot " + a.config.Token)
	if err != nil {
		a.setStatus(false, err.Error())
		return apperr.ChannelConnectionError("discord", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent
	session.AddHandler(a.handleMessageCreate)

	if err := session.Open(); err != nil {
		a.setStatus(false, err.Error())
		return apperr.ChannelConnectionError("discord", err)
	}
	a.session = session
	a.setStatus(true, "")
	a.logger.Info("discord adapter started")
	return nil
}

// Stop closes the gateway session.
func (a *Adapter) Stop(ctx context.Context) error {
	if a.session == nil {
		return nil
	}
	if err := a.session.Close(); err != nil {
		return apperr.ChannelConnectionError("discord", err)
	}
	a.setStatus(false, "")
	close(a.messages)
	return nil
}

func (a *Adapter) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Content == "" {
		return
	}
	msg := models.InboundMessage{
		Channel:   models.ChannelDiscord,
		UserID:    m.Author.ID,
		ChatID:    m.ChannelID,
		Text:      m.Content,
		Timestamp: time.Now(),
		Raw:       m.Message,
	}
	a.mu.Lock()
	a.lastPing = time.Now()
	a.mu.Unlock()

	select {
	case a.messages <- msg:
	default:
		a.logger.Warn("inbound buffer full, dropping message", "channel_id", m.ChannelID)
	}
}

// Send implements channels.OutboundAdapter.
func (a *Adapter) Send(ctx context.Context, chatID, text string) error {
	if a.session == nil {
		return apperr.ChannelSendError("discord", errAdapterNotStarted)
	}
	if _, err := a.session.ChannelMessageSend(chatID, text); err != nil {
		return apperr.ChannelSendError("discord", err)
	}
	return nil
}

// SendTyping implements channels.TypingAdapter. Typing indicators are
// best-effort; a failure is reported but carries no retry obligation.
func (a *Adapter) SendTyping(ctx context.Context, chatID string) error {
	if a.session == nil {
		return apperr.ChannelSendError("discord", errAdapterNotStarted)
	}
	if err := a.session.ChannelTyping(chatID); err != nil {
		return apperr.ChannelSendError("discord", err)
	}
	return nil
}

// Messages implements channels.InboundAdapter.
func (a *Adapter) Messages() <-chan models.InboundMessage { return a.messages }

// Status implements channels.HealthAdapter.
func (a *Adapter) Status() channels.Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return channels.Status{Connected: a.connected, Error: a.lastErr, LastPing: a.lastPing}
}

// HealthCheck confirms the gateway session is open.
func (a *Adapter) HealthCheck(ctx context.Context) channels.HealthStatus {
	start := time.Now()
	a.mu.RLock()
	connected := a.connected
	a.mu.RUnlock()
	if !connected {
		return channels.HealthStatus{LastCheck: start, Message: "not connected"}
	}
	return channels.HealthStatus{Healthy: true, LastCheck: start, Message: "healthy"}
}

func (a *Adapter) setStatus(connected bool, errMsg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = connected
	a.lastErr = errMsg
}
