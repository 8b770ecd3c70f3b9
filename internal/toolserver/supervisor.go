// Package toolserver implements the Tool Supervisor (§4.E): composing
// the per-invocation tool-server manifest the LLM CLI consumes, and
// launching the selected tool-server subprocesses with the per-agent
// environment they need (agent slug, data root, IPC socket path).
package toolserver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/shipwrecked/fleetcore/internal/apperr"
	"github.com/shipwrecked/fleetcore/internal/config"
)

// Manifest is the on-disk document the LLM CLI reads to learn which
// tool servers are available for this invocation.
type Manifest struct {
	Servers []ManifestServer `json:"servers"`
}

// ManifestServer is one entry in a Manifest.
type ManifestServer struct {
	ID      string            `json:"id"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Supervisor owns the lifecycle of tool-server subprocesses selected by
// an agent's configured ToolServers list, mirroring the teacher's
// internal/mcp.Manager (config-driven connect/disconnect over a map of
// running clients) but operating on long-lived subprocess handles
// instead of a tool-protocol client.
type Supervisor struct {
	cfg      *config.MCPConfig
	dataRoot string
	socket   string
	logger   *slog.Logger

	mu        sync.Mutex
	processes map[string]*process
}

type process struct {
	serverID string
	cmd      *exec.Cmd
}

// New builds a Supervisor. socket is the IPC hub's Unix-domain socket
// path, injected into every tool-server process's environment.
func New(cfg *config.MCPConfig, dataRoot, socket string, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		cfg:       cfg,
		dataRoot:  dataRoot,
		socket:    socket,
		logger:    logger.With("component", "toolserver"),
		processes: make(map[string]*process),
	}
}

// BuildManifest composes the manifest for one invocation: the named
// serverIDs (an agent's ToolServers list), resolved against the MCP
// config's server table, each carrying the per-agent environment.
func (s *Supervisor) BuildManifest(agentSlug string, serverIDs []string) (*Manifest, error) {
	m := &Manifest{}
	for _, id := range serverIDs {
		entry, ok := s.cfg.Servers[id]
		if !ok {
			return nil, apperr.ConfigError(fmt.Sprintf("tool server %q is not configured", id), nil)
		}
		env := map[string]string{
			"FLEETCORE_AGENT_SLUG": agentSlug,
			"FLEETCORE_DATA_ROOT":  s.dataRoot,
			"FLEETCORE_IPC_SOCKET": s.socket,
		}
		for k, v := range entry.Env {
			env[k] = v
		}
		m.Servers = append(m.Servers, ManifestServer{
			ID:      id,
			Command: entry.Command,
			Args:    entry.Args,
			Env:     env,
		})
	}
	return m, nil
}

// WriteManifest writes m as the invocation's manifest file under the
// agent's directory, atomically (temp file + rename).
func (s *Supervisor) WriteManifest(agentDir string, m *Manifest) (string, error) {
	path := filepath.Join(agentDir, "mcp-servers-manifest.json")
	if err := writeJSONAtomic(path, m); err != nil {
		return "", err
	}
	return path, nil
}

// Start launches every server named in m that isn't already running,
// one subprocess per server id, passing its composed environment.
func (s *Supervisor) Start(ctx context.Context, m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, srv := range m.Servers {
		if _, running := s.processes[srv.ID]; running {
			continue
		}
		cmd := exec.CommandContext(ctx, srv.Command, srv.Args...)
		cmd.Env = envSlice(srv.Env)
		if err := cmd.Start(); err != nil {
			s.logger.Error("failed to start tool server", "server", srv.ID, "error", err)
			continue
		}
		s.processes[srv.ID] = &process{serverID: srv.ID, cmd: cmd}
		s.logger.Info("started tool server", "server", srv.ID, "pid", cmd.Process.Pid)
	}
	return nil
}

// Stop terminates every running tool-server subprocess.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.processes {
		if p.cmd.Process != nil {
			if err := p.cmd.Process.Kill(); err != nil {
				s.logger.Error("failed to kill tool server", "server", id, "error", err)
			}
		}
		delete(s.processes, id)
	}
}

// Running reports whether serverID currently has a live subprocess.
func (s *Supervisor) Running(serverID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processes[serverID]
	return ok
}

func envSlice(env map[string]string) []string {
	out := append([]string(nil), os.Environ()...)
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
