// Package web implements the channels.Adapter contract over a plain
// net/http listener: a single POST endpoint accepts inbound JSON
// messages, and outbound replies are appended to a per-chat buffer a
// companion GET endpoint drains. There is no third-party websocket/chat
// SDK in the pack for this channel, so it follows the teacher's own
// net/http mux + JSON handler style (gateway/http_server.go) rather than
// reaching for an external library.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/shipwrecked/fleetcore/internal/apperr"
	"github.com/shipwrecked/fleetcore/internal/channels"
	"github.com/shipwrecked/fleetcore/pkg/models"
)

// Config holds the web adapter's listen address.
type Config struct {
	Addr   string // e.g. ":8088"
	Logger *slog.Logger
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return apperr.ConfigError("web: addr is required", nil)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

type inboundPayload struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
	Text   string `json:"text"`
}

// Adapter implements channels.FullAdapter over a local HTTP listener.
type Adapter struct {
	config   Config
	server   *http.Server
	messages chan models.InboundMessage
	logger   *slog.Logger

	mu        sync.RWMutex
	connected bool
	lastErr   string
	lastPing  time.Time

	outMu sync.Mutex
	out   map[string][]string // chatID -> pending outbound messages
}

// NewAdapter validates config and constructs an Adapter; Start binds
// the listener.
func NewAdapter(config Config) (*Adapter, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &Adapter{
		config:   config,
		messages: make(chan models.InboundMessage, 100),
		logger:   config.Logger.With("adapter", "web"),
		out:      make(map[string][]string),
	}, nil
}

// Type implements channels.Adapter.
func (a *Adapter) Type() models.ChannelType { return models.ChannelWeb }

// Start binds the HTTP listener and begins serving in the background.
func (a *Adapter) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/messages", a.handleInbound)
	mux.HandleFunc("/outbound", a.handleDrainOutbound)
	mux.HandleFunc("/healthz", a.handleHealthz)

	listener, err := net.Listen("tcp", a.config.Addr)
	if err != nil {
		a.setStatus(false, err.Error())
		return apperr.ChannelConnectionError("web", err)
	}

	a.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.setStatus(false, err.Error())
			a.logger.Error("web adapter listener stopped", "error", err)
		}
	}()

	a.setStatus(true, "")
	a.logger.Info("web adapter started", "addr", a.config.Addr)
	return nil
}

// Stop shuts down the HTTP listener gracefully.
func (a *Adapter) Stop(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	if err := a.server.Shutdown(ctx); err != nil {
		return apperr.ChannelConnectionError("web", err)
	}
	a.setStatus(false, "")
	close(a.messages)
	return nil
}

func (a *Adapter) handleInbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var payload inboundPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if payload.ChatID == "" || payload.Text == "" {
		http.Error(w, "chatId and text are required", http.StatusBadRequest)
		return
	}

	msg := models.InboundMessage{
		Channel:   models.ChannelWeb,
		UserID:    payload.UserID,
		ChatID:    payload.ChatID,
		Text:      payload.Text,
		Timestamp: time.Now(),
	}
	a.mu.Lock()
	a.lastPing = time.Now()
	a.mu.Unlock()

	select {
	case a.messages <- msg:
		w.WriteHeader(http.StatusAccepted)
	default:
		http.Error(w, "inbound buffer full", http.StatusServiceUnavailable)
	}
}

func (a *Adapter) handleDrainOutbound(w http.ResponseWriter, r *http.Request) {
	chatID := r.URL.Query().Get("chatId")
	if chatID == "" {
		http.Error(w, "chatId is required", http.StatusBadRequest)
		return
	}
	a.outMu.Lock()
	pending := a.out[chatID]
	delete(a.out, chatID)
	a.outMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(pending)
}

func (a *Adapter) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Send implements channels.OutboundAdapter by buffering text for the
// chat's next drain poll.
func (a *Adapter) Send(ctx context.Context, chatID, text string) error {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	a.out[chatID] = append(a.out[chatID], text)
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

// HealthCheck reports healthy as long as the listener is up; there is
// no remote provider to probe for this channel.
func (a *Adapter) HealthCheck(ctx context.Context) channels.HealthStatus {
	a.mu.RLock()
	connected := a.connected
	a.mu.RUnlock()
	return channels.HealthStatus{Healthy: connected, LastCheck: time.Now()}
}

func (a *Adapter) setStatus(connected bool, errMsg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = connected
	a.lastErr = errMsg
}
