// Package config loads and validates the orchestrator's config.json, and
// resolves tool presets to concrete allowed-tool lists.
package config

import "github.com/shipwrecked/fleetcore/pkg/models"

// CurrentVersion is the config schema version this build understands.
const CurrentVersion = 5

// Config is the top-level config.json document.
type Config struct {
	Version  int                           `json:"version" jsonschema:"required"`
	Agents   map[string]models.AgentConfig `json:"agents"`
	Channels ChannelsConfig                `json:"channels"`
	Gateway  GatewayConfig                 `json:"gateway"`
	Routing  RoutingConfig                 `json:"routing"`
	MCP      MCPConfig                     `json:"mcp"`
	Skills   SkillsConfig                  `json:"skills"`
	Browser  BrowserConfig                 `json:"browser"`
	Backup   BackupConfig                  `json:"backup"`
}

// ChannelsConfig configures the enabled channel adapters.
type ChannelsConfig struct {
	Web      *WebChannelConfig      `json:"web,omitempty"`
	Telegram *TelegramChannelConfig `json:"telegram,omitempty"`
	Slack    *SlackChannelConfig    `json:"slack,omitempty"`
	Discord  *DiscordChannelConfig  `json:"discord,omitempty"`
}

type WebChannelConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
}

type TelegramChannelConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"botToken"`
}

type SlackChannelConfig struct {
	Enabled   bool   `json:"enabled"`
	AppToken  string `json:"appToken"`
	BotToken  string `json:"botToken"`
}

type DiscordChannelConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"botToken"`
}

// GatewayConfig holds data-root-relative paths and process settings.
type GatewayConfig struct {
	DataRoot string `json:"dataRoot"`
	LLMCmd   string `json:"llmCmd"` // path to the interactive LLM CLI binary
}

// RoutingConfig configures message routing (§4.F).
type RoutingConfig struct {
	Rules        []models.RoutingRule `json:"rules"`
	DefaultAgent string                `json:"defaultAgent"`
}

// MCPConfig configures tool-server auto-approval and launch manifests.
type MCPConfig struct {
	AutoApprove []string               `json:"autoApprove,omitempty"`
	Servers     map[string]ServerEntry `json:"servers"`
}

// ServerEntry is one tool-server's launch recipe.
type ServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// SkillsConfig lists skill names available for agents to declare.
type SkillsConfig struct {
	Names []string `json:"names,omitempty"`
}

// BrowserConfig is a stub for the out-of-scope browser tool; carried so
// config documents from the wider system validate without stripping the
// field.
type BrowserConfig struct {
	Enabled bool `json:"enabled"`
}

// BackupConfig is a stub for the out-of-scope git-based backup tool.
type BackupConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`
}

// Default returns a Config populated with typed defaults.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Agents:  map[string]models.AgentConfig{},
		Routing: RoutingConfig{Rules: []models.RoutingRule{}},
		MCP:     MCPConfig{Servers: map[string]ServerEntry{}},
	}
}
