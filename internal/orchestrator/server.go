// Package orchestrator wires every internal package into a single
// running process: the agent registry, the SQLite store, channel
// adapters, the router, the session manager, the tool supervisor, the
// IPC hub, and the three scheduler primitives. It mirrors the
// teacher's gateway.Server/ManagedServer split (internal/gateway/
// server.go, managed_server.go) — one struct built once at startup,
// Start/Stop driving every component's own lifecycle in order.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shipwrecked/fleetcore/internal/channels"
	"github.com/shipwrecked/fleetcore/internal/channels/discord"
	"github.com/shipwrecked/fleetcore/internal/channels/slack"
	"github.com/shipwrecked/fleetcore/internal/channels/telegram"
	"github.com/shipwrecked/fleetcore/internal/channels/web"
	"github.com/shipwrecked/fleetcore/internal/config"
	"github.com/shipwrecked/fleetcore/internal/ipc"
	"github.com/shipwrecked/fleetcore/internal/registry"
	"github.com/shipwrecked/fleetcore/internal/router"
	"github.com/shipwrecked/fleetcore/internal/scheduler"
	"github.com/shipwrecked/fleetcore/internal/sessionmgr"
	"github.com/shipwrecked/fleetcore/internal/store"
	"github.com/shipwrecked/fleetcore/internal/toolserver"
)

const taskQueuePollInterval = 15 * time.Second

// ServerConfig configures a Server.
type ServerConfig struct {
	Config     *config.Config
	ConfigPath string
	Logger     *slog.Logger
}

// Server holds every wired component for one orchestrator process.
type Server struct {
	cfg     *config.Config
	cfgPath string
	logger  *slog.Logger

	registry   *registry.Registry
	store      *store.Store
	router     *router.Router
	channels   *channels.Registry
	sessions   *sessionmgr.Manager
	tools      *toolserver.Supervisor
	ipcHub     *ipc.Hub
	cron       *scheduler.CronScheduler
	heartbeats *scheduler.HeartbeatRunner
	tasks      *scheduler.TaskQueue
	memory     *memoryMaintainer

	watchStop chan struct{}
	procCancel context.CancelFunc
}

// New builds a Server from cfg, opening the store and registering
// every configured agent and channel adapter. It does not start any
// background loop; call Start for that.
func New(sc ServerConfig) (*Server, error) {
	logger := sc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := sc.Config

	dataRoot := cfg.Gateway.DataRoot
	if dataRoot == "" {
		dataRoot = "."
	}
	if err := os.MkdirAll(dataRoot, 0o755); err != nil {
		return nil, fmt.Errorf("orchestrator: create data root: %w", err)
	}

	reg := registry.New(dataRoot, logger)
	for _, agent := range cfg.Agents {
		if err := reg.Ensure(agent); err != nil {
			return nil, fmt.Errorf("orchestrator: register agent %q: %w", agent.Slug, err)
		}
	}
	if err := reg.EnsureUserProfile(); err != nil {
		return nil, fmt.Errorf("orchestrator: ensure user profile: %w", err)
	}

	st, err := store.Open(filepath.Join(dataRoot, "orchestrator.db"))
	if err != nil {
		return nil, fmt.Errorf("orchestrator: open store: %w", err)
	}

	rtr := router.New(cfg.Routing.Rules, cfg.Routing.DefaultAgent, st)
	for slug := range cfg.Agents {
		rtr.AddAgent(slug)
	}

	chanReg := channels.NewRegistry()
	if err := registerChannels(chanReg, cfg, logger); err != nil {
		st.Close()
		return nil, err
	}

	socketPath := ipc.SocketPath(dataRoot, os.Getpid())
	if err := ipc.CleanStaleSockets(dataRoot, socketPath); err != nil {
		logger.Warn("failed to clean stale IPC sockets", "error", err)
	}

	tools := toolserver.New(&cfg.MCP, dataRoot, socketPath, logger)
	sessions := sessionmgr.New(reg, st, cfg.Gateway.LLMCmd, dataRoot)
	sessions.SetToolLauncher(tools)

	hub := ipc.New(socketPath, logger)
	ipc.RegisterSessionHandlers(hub, sessions, st)
	ipc.RegisterAgentHandlers(hub, reg)
	ipc.RegisterMessagingHandlers(hub, chanReg)
	ipc.RegisterRalphHandlers(hub, sessions, reg, logger)

	delivery := &channelDelivery{channels: chanReg}
	cron := scheduler.NewCronScheduler(st, sessions, delivery, logger)
	cron.SetExecutionStore(scheduler.NewMemoryExecutionStore())
	heartbeats := scheduler.NewHeartbeatRunner(reg, sessions, delivery, logger)
	taskQueue := scheduler.NewTaskQueue(st, sessions, taskQueuePollInterval, logger)
	memoryMaint := newMemoryMaintainer(reg, logger)

	return &Server{
		cfg:        cfg,
		cfgPath:    sc.ConfigPath,
		logger:     logger.With("component", "orchestrator"),
		registry:   reg,
		store:      st,
		router:     rtr,
		channels:   chanReg,
		sessions:   sessions,
		tools:      tools,
		ipcHub:     hub,
		cron:       cron,
		heartbeats: heartbeats,
		tasks:      taskQueue,
		memory:     memoryMaint,
	}, nil
}

// registerChannels instantiates and registers one adapter per enabled
// channel in cfg, grounded on gateway.Server.registerChannelsFromConfig's
// enabled-flag-driven construction.
func registerChannels(reg *channels.Registry, cfg *config.Config, logger *slog.Logger) error {
	if w := cfg.Channels.Web; w != nil && w.Enabled {
		a, err := web.NewAdapter(web.Config{Addr: w.Addr, Logger: logger})
		if err != nil {
			return fmt.Errorf("orchestrator: configure web channel: %w", err)
		}
		reg.Register(a)
	}
	if t := cfg.Channels.Telegram; t != nil && t.Enabled {
		a, err := telegram.NewAdapter(telegram.Config{Token: t.BotToken, Logger: logger})
		if err != nil {
			return fmt.Errorf("orchestrator: configure telegram channel: %w", err)
		}
		reg.Register(a)
	}
	if sc := cfg.Channels.Slack; sc != nil && sc.Enabled {
		a, err := slack.NewAdapter(slack.Config{BotToken: sc.BotToken, AppToken: sc.AppToken, Logger: logger})
		if err != nil {
			return fmt.Errorf("orchestrator: configure slack channel: %w", err)
		}
		reg.Register(a)
	}
	if d := cfg.Channels.Discord; d != nil && d.Enabled {
		a, err := discord.NewAdapter(discord.Config{Token: d.BotToken, Logger: logger})
		if err != nil {
			return fmt.Errorf("orchestrator: configure discord channel: %w", err)
		}
		reg.Register(a)
	}
	return nil
}

// Start brings up every background component: channel adapters, the
// IPC hub, the three scheduler primitives, and the inbound-message
// processing loop. It returns once everything is running; callers
// drive shutdown via Stop.
func (s *Server) Start(ctx context.Context) error {
	if err := s.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("orchestrator: start channels: %w", err)
	}

	if err := s.ipcHub.Start(ctx); err != nil {
		return fmt.Errorf("orchestrator: start ipc hub: %w", err)
	}

	if err := s.cron.Start(ctx); err != nil {
		return fmt.Errorf("orchestrator: start cron scheduler: %w", err)
	}
	go s.tasks.Run(ctx)
	for slug := range s.cfg.Agents {
		s.heartbeats.Register(ctx, slug)
		s.memory.Register(ctx, slug)
	}

	procCtx, procCancel := context.WithCancel(ctx)
	s.procCancel = procCancel
	go s.processInbound(procCtx)

	if cfgPath := s.configPathOrEmpty(); cfgPath != "" {
		stop := make(chan struct{})
		s.watchStop = stop
		if err := config.Watch(cfgPath, s.logger, s.onConfigChange, stop); err != nil {
			s.logger.Warn("config hot-reload disabled", "error", err)
		}
	}

	s.logger.Info("orchestrator started", "data_root", s.cfg.Gateway.DataRoot)
	return nil
}

func (s *Server) configPathOrEmpty() string {
	return s.cfgPath
}

// onConfigChange is invoked by config.Watch on a validated config.json
// rewrite. Agent/channel topology changes require a restart; only the
// routing table is hot-swappable without one.
func (s *Server) onConfigChange(newCfg *config.Config) {
	s.logger.Info("config changed, updating routing table")
	s.cfg = newCfg
	s.router = router.New(newCfg.Routing.Rules, newCfg.Routing.DefaultAgent, s.store)
	for slug := range newCfg.Agents {
		s.router.AddAgent(slug)
	}
}

// Stop shuts down every background component, best-effort, collecting
// but not short-circuiting on the first error so one stuck component
// doesn't block the rest.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping orchestrator")

	if s.watchStop != nil {
		close(s.watchStop)
	}
	if s.procCancel != nil {
		s.procCancel()
	}

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.cron.Stop()
	s.memory.StopAll()
	s.ipcHub.Stop()
	s.tools.Stop()
	record(s.channels.StopAll(ctx))
	record(s.store.Close())

	return firstErr
}
