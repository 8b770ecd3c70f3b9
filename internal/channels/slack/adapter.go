// Package slack implements the channels.Adapter contract over
// slack-go/slack's Socket Mode client.
package slack

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/shipwrecked/fleetcore/internal/apperr"
	"github.com/shipwrecked/fleetcore/internal/channels"
	"github.com/shipwrecked/fleetcore/pkg/models"
)

// Config holds the Slack adapter's connection settings: a bot token
// (xoxb-) for Web API calls and an app-level token (xapp-) for Socket
// Mode.
type Config struct {
	BotToken string
	AppToken string
	Logger   *slog.Logger
}

func (c *Config) validate() error {
	if c.BotToken == "" || c.AppToken == "" {
		return apperr.ConfigError("slack: botToken and appToken are required", nil)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Adapter implements channels.FullAdapter for Slack over Socket Mode.
type Adapter struct {
	config       Config
	client       *slack.Client
	socketClient *socketmode.Client
	messages     chan models.InboundMessage
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	logger       *slog.Logger

	mu        sync.RWMutex
	connected bool
	lastErr   string
	lastPing  time.Time
}

// NewAdapter validates config and constructs the slack.Client and
// socketmode.Client; Start opens the connection.
func NewAdapter(config Config) (*Adapter, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	client := slack.New(config.BotToken, slack.OptionAppLevelToken(config.AppToken))
	return &Adapter{
		config:       config,
		client:       client,
		socketClient: socketmode.New(client),
		messages:     make(chan models.InboundMessage, 100),
		logger:       config.Logger.With("adapter", "slack"),
	}, nil
}

// Type implements channels.Adapter.
func (a *Adapter) Type() models.ChannelType { return models.ChannelSlack }

// Start authenticates, then runs the Socket Mode event loop in the
// background until ctx is cancelled.
func (a *Adapter) Start(ctx context.Context) error {
	if _, err := a.client.AuthTestContext(ctx); err != nil {
		a.setStatus(false, err.Error())
		return apperr.ChannelConnectionError("slack", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.handleEvents(runCtx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.socketClient.Run(); err != nil {
			a.setStatus(false, err.Error())
		}
	}()

	a.setStatus(true, "")
	a.logger.Info("slack adapter started")
	return nil
}

// Stop cancels the event loop and waits for both goroutines to exit.
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
		a.setStatus(false, "")
		close(a.messages)
		return nil
	case <-ctx.Done():
		return apperr.ChannelConnectionError("slack", ctx.Err())
	}
}

func (a *Adapter) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-a.socketClient.Events:
			if !ok {
				return
			}
			a.mu.Lock()
			a.lastPing = time.Now()
			a.mu.Unlock()

			switch event.Type {
			case socketmode.EventTypeConnected:
				a.setStatus(true, "")
			case socketmode.EventTypeConnectionError:
				a.setStatus(false, "connection error")
			case socketmode.EventTypeEventsAPI:
				a.handleEventsAPI(event)
			case socketmode.EventTypeSlashCommand, socketmode.EventTypeInteractive:
				if event.Request != nil {
					a.socketClient.Ack(*event.Request)
				}
			}
		}
	}
}

func (a *Adapter) handleEventsAPI(event socketmode.Event) {
	eventsAPIEvent, ok := event.Data.(slackevents.EventsAPIEvent)
	if !ok {
		if event.Request != nil {
			a.socketClient.Ack(*event.Request)
		}
		return
	}
	if event.Request != nil {
		a.socketClient.Ack(*event.Request)
	}

	if eventsAPIEvent.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := eventsAPIEvent.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		a.deliver(ev.Channel, ev.User, ev.Text, ev.ThreadTimeStamp, ev)
	case *slackevents.MessageEvent:
		if ev.BotID != "" || (ev.SubType != "" && ev.SubType != "file_share") {
			return
		}
		a.deliver(ev.Channel, ev.User, ev.Text, ev.ThreadTimeStamp, ev)
	}
}

func (a *Adapter) deliver(channel, user, text, threadTS string, raw any) {
	msg := models.InboundMessage{
		Channel:   models.ChannelSlack,
		UserID:    user,
		ChatID:    channel,
		Text:      text,
		ThreadID:  threadTS,
		Timestamp: time.Now(),
		Raw:       raw,
	}
	select {
	case a.messages <- msg:
	default:
		a.logger.Warn("inbound buffer full, dropping message", "channel_id", channel)
	}
}

// Send implements channels.OutboundAdapter.
func (a *Adapter) Send(ctx context.Context, chatID, text string) error {
	_, _, err := a.client.PostMessageContext(ctx, chatID, slack.MsgOptionText(text, false))
	if err != nil {
		return apperr.ChannelSendError("slack", err)
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

// HealthCheck re-runs auth.test to confirm the token is still valid.
func (a *Adapter) HealthCheck(ctx context.Context) channels.HealthStatus {
	start := time.Now()
	_, err := a.client.AuthTestContext(ctx)
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
