// Package sessionmgr implements the Session Manager (§4.D): spawning
// and resuming the per-conversation LLM CLI subprocess, composing its
// system prompt from an agent's on-disk artifacts, and persisting the
// resulting session state.
package sessionmgr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shipwrecked/fleetcore/internal/apperr"
	"github.com/shipwrecked/fleetcore/internal/config"
	"github.com/shipwrecked/fleetcore/internal/skills"
	"github.com/shipwrecked/fleetcore/internal/toolserver"
	"github.com/shipwrecked/fleetcore/pkg/models"
)

// timeNow is overridden in tests.
var timeNow = time.Now

// llmTurnTimeout bounds one LLM CLI invocation. On expiry the
// subprocess is signalled SIGTERM (see runLLMProcess) and the send
// surfaces SessionSpawnError.
const llmTurnTimeout = 10 * time.Minute

// Registry is the subset of internal/registry.Registry the Manager
// depends on.
type Registry interface {
	Get(slug string) (models.AgentConfig, error)
	AgentDir(slug string) string
	ReadFile(slug, relPath string) (string, error)
}

// SessionStore is the subset of internal/store.Store the Manager
// depends on for session persistence.
type SessionStore interface {
	GetSession(ctx context.Context, conversationID string) (*models.Session, error)
	UpsertSession(ctx context.Context, sess *models.Session) error
}

// Context carries the channel/user framing injected into a turn's system
// prompt (§4.D step 3).
type Context struct {
	Channel models.ChannelType
	UserID  string
	ChatID  string
}

// Result is what SendMessage returns to its caller (a channel adapter,
// a cron tick, or an IPC request handler).
type Result struct {
	Text       string
	ExternalID string
	ToolCalls  []string
}

// Spawner runs the LLM CLI and returns its parsed transcript. Production
// code uses runLLMProcess; tests substitute a fake.
type Spawner func(ctx context.Context, cmdPath string, args []string, workDir string) (*spawnResult, error)

// ToolLauncher is the subset of internal/toolserver.Supervisor the
// Manager needs to bring up an agent's declared tool-server
// subprocesses before the LLM CLI depends on them.
type ToolLauncher interface {
	BuildManifest(agentSlug string, serverIDs []string) (*toolserver.Manifest, error)
	WriteManifest(agentDir string, m *toolserver.Manifest) (string, error)
	Start(ctx context.Context, m *toolserver.Manifest) error
}

// Manager owns per-conversation subprocess spawns and serializes turns
// within a conversation so two concurrent messages to the same session
// never race on the same external LLM session id.
type Manager struct {
	registry Registry
	store    SessionStore
	llmCmd   string
	dataRoot string
	spawn    Spawner
	sessions *sessionMap
	tools    ToolLauncher

	convMu sync.Mutex
	locks  map[string]*sync.Mutex
	skills *skills.Loader
}

// New builds a Manager. llmCmd is the path to the interactive LLM CLI
// binary (config.GatewayConfig.LLMCmd); dataRoot is the orchestrator's
// data root directory.
func New(registry Registry, store SessionStore, llmCmd, dataRoot string) *Manager {
	return &Manager{
		registry: registry,
		store:    store,
		llmCmd:   llmCmd,
		dataRoot: dataRoot,
		spawn:    runLLMProcess,
		sessions: newSessionMap(dataRoot),
		locks:    make(map[string]*sync.Mutex),
		skills:   skills.NewLoader(dataRoot),
	}
}

// SetToolLauncher wires a Tool Supervisor into the Manager so each turn
// brings up the agent's declared tool-server subprocesses before the
// LLM CLI is spawned. Optional: a Manager with none configured simply
// skips this step (an agent with no ToolServers never needed it).
func (m *Manager) SetToolLauncher(tools ToolLauncher) {
	m.tools = tools
}

func (m *Manager) convLock(conversationID string) *sync.Mutex {
	m.convMu.Lock()
	defer m.convMu.Unlock()
	l, ok := m.locks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[conversationID] = l
	}
	return l
}

// SendMessage runs one turn of a conversation with agentID, per the
// §4.D seven-step sequence: resolve agent, assemble tool-server config,
// compose the system prompt, spawn (or resume) the LLM CLI, parse its
// transcript, persist the session mapping, and update the session row.
func (m *Manager) SendMessage(ctx context.Context, agentID, conversationID, prompt string, chCtx Context) (*Result, error) {
	lock := m.convLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	agent, err := m.registry.Get(agentID)
	if err != nil {
		return nil, err
	}

	manifestPath, err := m.writeToolManifest(agent)
	if err != nil {
		return nil, err
	}

	if m.tools != nil && len(agent.ToolServers) > 0 {
		if err := m.launchToolServers(ctx, agent); err != nil {
			return nil, err
		}
	}

	systemPrompt, err := m.composeSystemPrompt(agent, chCtx)
	if err != nil {
		return nil, err
	}

	existing, _ := m.store.GetSession(ctx, conversationID)
	var resumeID string
	if existing != nil {
		resumeID, _ = m.sessions.Get(conversationID)
	}

	turnCtx, cancelTurn := context.WithTimeout(ctx, llmTurnTimeout)
	defer cancelTurn()

	args := m.buildArgs(agent, systemPrompt, prompt, manifestPath, resumeID)
	res, err := m.spawn(turnCtx, m.llmCmd, args, m.registry.AgentDir(agentID))
	if err != nil && resumeID != "" && turnCtx.Err() == nil {
		// The CLI rejected the stored session id (expired or unknown).
		// Fall back to a fresh session; the new id overwrites the
		// mapping below.
		args = m.buildArgs(agent, systemPrompt, prompt, manifestPath, "")
		res, err = m.spawn(turnCtx, m.llmCmd, args, m.registry.AgentDir(agentID))
	}
	if err != nil {
		msg := fmt.Sprintf("spawn LLM CLI for agent %q", agentID)
		if tail := stderrTailOf(err); len(tail) > 0 {
			msg = fmt.Sprintf("%s (stderr tail: %s)", msg, strings.Join(tail, " | "))
		}
		return nil, apperr.SessionSpawnError(msg, err)
	}

	externalID := res.ExternalID
	if externalID == "" {
		externalID = resumeID
	}
	if externalID == "" {
		return nil, apperr.SessionSpawnError(fmt.Sprintf("LLM CLI for agent %q produced no session id", agentID), nil)
	}
	if err := m.sessions.Set(conversationID, externalID); err != nil {
		return nil, err
	}

	now := timeNow()
	turnCount := 1
	if existing != nil {
		turnCount = existing.TurnCount + 1
	}
	createdAt := now
	if existing != nil {
		createdAt = existing.CreatedAt
	}
	sess := &models.Session{
		ConversationID: conversationID,
		ExternalID:     externalID,
		AgentID:        agentID,
		Channel:        chCtx.Channel,
		Status:         models.SessionActive,
		CreatedAt:      createdAt,
		LastActiveAt:   now,
		TurnCount:      turnCount,
	}
	if err := m.store.UpsertSession(ctx, sess); err != nil {
		return nil, err
	}

	return &Result{Text: res.FinalText, ExternalID: externalID, ToolCalls: res.ToolCalls}, nil
}

// ResumeSession re-enters an existing conversation by its stored
// external session id (§4.D). The spawn path inside SendMessage handles
// the resume flag and the fresh-session fallback; this method only
// resolves which agent the conversation belongs to.
func (m *Manager) ResumeSession(ctx context.Context, conversationID, text string) (*Result, error) {
	sess, err := m.store.GetSession(ctx, conversationID)
	if err != nil || sess == nil {
		return nil, apperr.SessionNotFound(conversationID)
	}
	return m.SendMessage(ctx, sess.AgentID, conversationID, text, Context{Channel: sess.Channel})
}

// composeSystemPrompt assembles SOUL.md ⊕ a MEMORY.md excerpt ⊕ the
// global USER.md profile ⊕ channel/user context (§4.D step 3). The
// memory excerpt and user profile are read at invocation time, so an
// edit between turns is visible on the next turn.
func (m *Manager) composeSystemPrompt(agent models.AgentConfig, chCtx Context) (string, error) {
	soul, err := m.registry.ReadFile(agent.Slug, "SOUL.md")
	if err != nil {
		return "", err
	}
	memory, err := m.registry.ReadFile(agent.Slug, "MEMORY.md")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(soul)
	b.WriteString("\n\n## Consolidated memory\n\n")
	b.WriteString(memory)
	if profile, err := os.ReadFile(filepath.Join(m.dataRoot, "USER.md")); err == nil && len(profile) > 0 {
		b.WriteString("\n\n## User profile\n\n")
		b.Write(profile)
	}
	if len(agent.Skills) > 0 {
		entries, err := m.skills.Load(agent.Skills)
		if err != nil {
			return "", err
		}
		for _, entry := range entries {
			fmt.Fprintf(&b, "\n\n## Skill: %s\n\n%s\n\n%s", entry.Name, entry.Description, entry.Content)
		}
	}
	b.WriteString("\n\n## Context\n\n")
	fmt.Fprintf(&b, "channel: %s\n", chCtx.Channel)
	if chCtx.ChatID != "" {
		fmt.Fprintf(&b, "chat: %s\n", chCtx.ChatID)
	}
	fmt.Fprintf(&b, "user: %s\n", chCtx.UserID)
	return b.String(), nil
}

// writeToolManifest generates the per-invocation tool-server manifest
// (§4.E) listing the agent's resolved allowed tools, so the Tool
// Supervisor can launch only what this turn is permitted to use.
func (m *Manager) writeToolManifest(agent models.AgentConfig) (string, error) {
	tools := config.ResolveTools(agent)
	path := filepath.Join(m.registry.AgentDir(agent.Slug), "tools-manifest.json")
	if err := writeJSONAtomic(path, struct {
		AllowedTools []string `json:"allowedTools"`
		ToolServers  []string `json:"toolServers"`
	}{AllowedTools: tools, ToolServers: agent.ToolServers}); err != nil {
		return "", err
	}
	return path, nil
}

// launchToolServers brings up the subprocesses backing agent's declared
// ToolServers, so they're already accepting connections by the time the
// LLM CLI starts dialing them through the manifest.
func (m *Manager) launchToolServers(ctx context.Context, agent models.AgentConfig) error {
	manifest, err := m.tools.BuildManifest(agent.Slug, agent.ToolServers)
	if err != nil {
		return err
	}
	if _, err := m.tools.WriteManifest(m.registry.AgentDir(agent.Slug), manifest); err != nil {
		return err
	}
	return m.tools.Start(ctx, manifest)
}

// buildArgs composes the LLM CLI invocation arguments — model,
// resolved allowed-tools list, max-turns, tool-server config path —
// passing the prior external session id via the CLI's resume flag when
// one exists for this conversation (§4.D step 4).
func (m *Manager) buildArgs(agent models.AgentConfig, systemPrompt, prompt, manifestPath, resumeID string) []string {
	args := []string{
		"--system", systemPrompt,
		"--tools-manifest", manifestPath,
		"--prompt", prompt,
	}
	if agent.Model != "" {
		args = append(args, "--model", agent.Model)
	}
	if tools := config.ResolveTools(agent); len(tools) > 0 {
		args = append(args, "--allowed-tools", strings.Join(tools, ","))
	}
	if agent.MaxAutonomousTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(agent.MaxAutonomousTurns))
	}
	if resumeID != "" {
		args = append(args, "--resume", resumeID)
	}
	return args
}

func stderrTailOf(err error) []string {
	var se *stderrError
	if e, ok := err.(*stderrError); ok {
		se = e
	}
	if se == nil {
		return nil
	}
	return se.stderrTail
}
