package main

import "testing"

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"serve", "agent", "cron"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestResolveConfigPathDefaultsWhenUnset(t *testing.T) {
	t.Setenv("FLEETCORE_CONFIG", "")
	if got := resolveConfigPath(""); got != "config.json" {
		t.Fatalf("resolveConfigPath(\"\") = %q, want config.json", got)
	}
}

func TestResolveConfigPathPrefersExplicitFlag(t *testing.T) {
	t.Setenv("FLEETCORE_CONFIG", "/env/config.json")
	if got := resolveConfigPath("/flag/config.json"); got != "/flag/config.json" {
		t.Fatalf("resolveConfigPath = %q, want /flag/config.json", got)
	}
}

func TestResolveConfigPathFallsBackToEnv(t *testing.T) {
	t.Setenv("FLEETCORE_CONFIG", "/env/config.json")
	if got := resolveConfigPath(""); got != "/env/config.json" {
		t.Fatalf("resolveConfigPath = %q, want /env/config.json", got)
	}
}
