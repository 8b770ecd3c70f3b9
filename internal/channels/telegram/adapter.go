// Package telegram implements the channels.Adapter contract over the
// go-telegram/bot long-polling client.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/shipwrecked/fleetcore/internal/apperr"
	"github.com/shipwrecked/fleetcore/internal/channels"
	"github.com/shipwrecked/fleetcore/pkg/models"
)

// Config holds the Telegram adapter's connection settings.
type Config struct {
	Token  string
	Logger *slog.Logger
}

func (c *Config) validate() error {
	if c.Token == "" {
		return apperr.ConfigError("telegram: token is required", nil)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Adapter implements channels.FullAdapter for Telegram.
type Adapter struct {
	config   Config
	bot      *bot.Bot
	messages chan models.InboundMessage
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *slog.Logger

	mu        sync.RWMutex
	connected bool
	lastErr   string
	lastPing  time.Time
}

// NewAdapter validates config and constructs an Adapter, without
// connecting to Telegram yet; Start does that.
func NewAdapter(config Config) (*Adapter, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &Adapter{
		config:   config,
		messages: make(chan models.InboundMessage, 100),
		logger:   config.Logger.With("adapter", "telegram"),
	}, nil
}

// Type implements channels.Adapter.
func (a *Adapter) Type() models.ChannelType { return models.ChannelTelegram }

// Start creates the bot client, registers the text handler, and begins
// long polling in the background. It returns once bot.New succeeds;
// polling itself runs for the lifetime of ctx.
func (a *Adapter) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	b, err := bot.New(a.config.Token)
	if err != nil {
		a.setStatus(false, err.Error())
		return apperr.ChannelConnectionError("telegram", err)
	}
	b.RegisterHandler(bot.HandlerTypeMessageText, "", bot.MatchTypePrefix, a.handleUpdate)
	a.bot = b

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer close(a.messages)
		a.setStatus(true, "")
		a.logger.Info("telegram adapter started")
		b.Start(runCtx)
		a.setStatus(false, "")
	}()
	return nil
}

// Stop cancels the polling context and waits for the receive loop to
// exit, or for ctx to expire first.
func (a *Adapter) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return apperr.ChannelConnectionError("telegram", ctx.Err())
	}
}

func (a *Adapter) handleUpdate(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	msg := models.InboundMessage{
		Channel:   models.ChannelTelegram,
		UserID:    strconv.FormatInt(update.Message.From.ID, 10),
		ChatID:    strconv.FormatInt(update.Message.Chat.ID, 10),
		Text:      update.Message.Text,
		Timestamp: time.Unix(int64(update.Message.Date), 0),
		Raw:       update.Message,
	}
	if update.Message.MessageThreadID != 0 {
		msg.ThreadID = strconv.Itoa(update.Message.MessageThreadID)
	}
	a.mu.Lock()
	a.lastPing = time.Now()
	a.mu.Unlock()

	select {
	case a.messages <- msg:
	case <-ctx.Done():
	default:
		a.logger.Warn("inbound buffer full, dropping message", "chat_id", msg.ChatID)
	}
}

// Send implements channels.OutboundAdapter.
func (a *Adapter) Send(ctx context.Context, chatID, text string) error {
	if a.bot == nil {
		return apperr.ChannelSendError("telegram", fmt.Errorf("adapter not started"))
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return apperr.ChannelSendError("telegram", fmt.Errorf("invalid chat id %q: %w", chatID, err))
	}
	_, err = a.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: id, Text: text})
	if err != nil {
		return apperr.ChannelSendError("telegram", err)
	}
	return nil
}

// SendTyping implements channels.TypingAdapter via Telegram's
// sendChatAction.
func (a *Adapter) SendTyping(ctx context.Context, chatID string) error {
	if a.bot == nil {
		return apperr.ChannelSendError("telegram", fmt.Errorf("adapter not started"))
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return apperr.ChannelSendError("telegram", fmt.Errorf("invalid chat id %q: %w", chatID, err))
	}
	if _, err := a.bot.SendChatAction(ctx, &bot.SendChatActionParams{ChatID: id, Action: tgmodels.ChatActionTyping}); err != nil {
		return apperr.ChannelSendError("telegram", err)
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

// HealthCheck pings Telegram's getMe endpoint to confirm the bot token
// is still valid and the API is reachable.
func (a *Adapter) HealthCheck(ctx context.Context) channels.HealthStatus {
	start := time.Now()
	if a.bot == nil {
		return channels.HealthStatus{LastCheck: start, Message: "not started"}
	}
	_, err := a.bot.GetMe(ctx)
	latency := time.Since(start)
	if err != nil {
		return channels.HealthStatus{LastCheck: start, Latency: latency, Message: err.Error()}
	}
	return channels.HealthStatus{Healthy: true, LastCheck: start, Latency: latency, Message: "healthy"}
}

func (a *Adapter) setStatus(connected bool, errMsg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = connected
	a.lastErr = errMsg
}
