package config

import "github.com/shipwrecked/fleetcore/pkg/models"

// presetTable is the static preset -> allowed-tools mapping (§4.A).
// "custom" and "none" are handled specially in ResolveTools.
var presetTable = map[models.ToolPreset][]string{
	models.PresetCoding: {
		"read_file", "write_file", "edit_file", "list_dir", "run_shell",
		"mcp__memory__*", "mcp__files__*",
	},
	models.PresetMessaging: {
		"send_message", "send_typing", "channel_info",
		"mcp__memory__*",
	},
	models.PresetFull: {
		"read_file", "write_file", "edit_file", "list_dir", "run_shell",
		"send_message", "send_typing", "channel_info",
		"mcp__*",
	},
}

// ResolveTools returns the concrete allowed-tool list for an agent's
// configured preset. "custom" returns the agent's explicit list
// (nil-safe, never nil); "none" returns an empty, non-nil slice.
func ResolveTools(agent models.AgentConfig) []string {
	switch agent.ToolPreset {
	case models.PresetCustom:
		out := make([]string, len(agent.CustomTools))
		copy(out, agent.CustomTools)
		return out
	case models.PresetNone, "":
		return []string{}
	default:
		tools, ok := presetTable[agent.ToolPreset]
		if !ok {
			return []string{}
		}
		out := make([]string, len(tools))
		copy(out, tools)
		return out
	}
}
