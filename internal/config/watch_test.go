package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchFiresOnConfigRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"version":5}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	changes := make(chan *Config, 1)
	stop := make(chan struct{})
	defer close(stop)

	if err := Watch(path, nil, func(c *Config) { changes <- c }, stop); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	// Atomic rewrite: temp file + rename, same idiom the rest of the
	// codebase uses for on-disk state.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(`{"version":5,"routing":{"defaultAgent":"jarvis"}}`), 0o644); err != nil {
		t.Fatalf("WriteFile tmp: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	select {
	case cfg := <-changes:
		if cfg.Routing.DefaultAgent != "jarvis" {
			t.Fatalf("want reloaded config with defaultAgent jarvis, got %+v", cfg.Routing)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config change notification")
	}
}
