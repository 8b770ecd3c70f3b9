// Package registry owns each agent's on-disk directory layout and
// ensures it exists with default content before the agent is used.
package registry

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/shipwrecked/fleetcore/internal/apperr"
	"github.com/shipwrecked/fleetcore/pkg/models"
)

// timeNow is overridden in tests.
var timeNow = time.Now

// slugPattern enforces the Agent entity's slug invariant (§3).
var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidSlug reports whether s is a well-formed agent slug.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

const (
	soulDefault = "# SOUL\n\nNo identity has been authored for this agent yet.\n"
	heartbeatDefault = "# Heartbeat checklist\n\n- [ ] Review open work\n"
	memoryDefault = "# Memory\n\nNo consolidated facts yet.\n"
	toolsDefault = "# Tools scratchpad\n"
)

// Registry tracks every agent's directory under dataRoot/agents/<slug>/
// and keeps an in-memory index of configured agents for fast lookup
// (used by the router's @mention resolution and IPC's agents.list).
type Registry struct {
	dataRoot string
	logger   *slog.Logger

	mu     sync.RWMutex
	agents map[string]models.AgentConfig
}

// New creates a Registry rooted at dataRoot (which must already exist).
func New(dataRoot string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		dataRoot: dataRoot,
		logger:   logger.With("component", "registry"),
		agents:   make(map[string]models.AgentConfig),
	}
}

// AgentDir returns the directory an agent's on-disk artifacts live under.
func (r *Registry) AgentDir(slug string) string {
	return filepath.Join(r.dataRoot, "agents", slug)
}

// Ensure registers slug (if not already known) and guarantees its
// on-disk artifacts exist with default content. Mutation is atomic per
// agent: create the directory, write any missing defaults, then publish
// the in-memory record — a crash partway through leaves no agent
// visible to lookups that didn't already succeed.
func (r *Registry) Ensure(cfg models.AgentConfig) error {
	if !ValidSlug(cfg.Slug) {
		return apperr.ConfigError(fmt.Sprintf("invalid agent slug %q", cfg.Slug), nil)
	}

	dir := r.AgentDir(cfg.Slug)
	if err := os.MkdirAll(filepath.Join(dir, "memory", "archive"), 0o755); err != nil {
		return apperr.StoreError("create agent directory", err)
	}

	defaults := map[string]string{
		"SOUL.md":      soulDefault,
		"HEARTBEAT.md": heartbeatDefault,
		"MEMORY.md":    memoryDefault,
		"TOOLS.md":     toolsDefault,
	}
	for name, content := range defaults {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return apperr.StoreError(fmt.Sprintf("write default %s", name), err)
			}
		} else if err != nil {
			return apperr.StoreError(fmt.Sprintf("stat %s", name), err)
		}
	}

	r.mu.Lock()
	r.agents[cfg.Slug] = cfg
	r.mu.Unlock()
	return nil
}

// Remove unregisters slug. Per §3 this never deletes on-disk artifacts
// unless explicitly requested by the caller via RemoveFiles.
func (r *Registry) Remove(slug string) {
	r.mu.Lock()
	delete(r.agents, slug)
	r.mu.Unlock()
}

// RemoveFiles unregisters slug and deletes its on-disk directory.
func (r *Registry) RemoveFiles(slug string) error {
	r.Remove(slug)
	if err := os.RemoveAll(r.AgentDir(slug)); err != nil {
		return apperr.StoreError("remove agent directory", err)
	}
	return nil
}

// Get looks up an agent's configuration, failing loudly per §4.A.
func (r *Registry) Get(slug string) (models.AgentConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.agents[slug]
	if !ok {
		return models.AgentConfig{}, apperr.AgentNotFound(slug)
	}
	return cfg, nil
}

// Has reports whether slug is currently registered, without erroring.
func (r *Registry) Has(slug string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[slug]
	return ok
}

// List returns every registered agent slug, unordered.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.agents))
	for slug := range r.agents {
		out = append(out, slug)
	}
	return out
}

// ReadFile reads one of an agent's on-disk artifacts (SOUL.md,
// HEARTBEAT.md, MEMORY.md, TOOLS.md) relative to its directory.
func (r *Registry) ReadFile(slug, relPath string) (string, error) {
	if _, err := r.Get(slug); err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(r.AgentDir(slug), relPath))
	if err != nil {
		return "", apperr.StoreError(fmt.Sprintf("read %s for %s", relPath, slug), err)
	}
	return string(data), nil
}

// WriteFile writes one of an agent's on-disk artifacts atomically
// (temp file + rename) so a concurrent reader never observes a partial
// write. The replaced content is snapshotted into the artifact's
// version-history directory first, so an edit is never destructive.
func (r *Registry) WriteFile(slug, relPath, content string) error {
	if _, err := r.Get(slug); err != nil {
		return err
	}
	target := filepath.Join(r.AgentDir(slug), relPath)
	if err := snapshotVersion(r.AgentDir(slug), relPath, target); err != nil {
		return err
	}
	tmp := target + ".tmp-" + strings.ReplaceAll(relPath, "/", "_")
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return apperr.StoreError(fmt.Sprintf("write %s for %s", relPath, slug), err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return apperr.StoreError(fmt.Sprintf("publish %s for %s", relPath, slug), err)
	}
	return nil
}

// snapshotVersion copies target's current content (if any) into
// <root>/history/<name>/<timestamp>.md before it is replaced.
func snapshotVersion(root, relPath, target string) error {
	prev, err := os.ReadFile(target)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return apperr.StoreError(fmt.Sprintf("read %s for versioning", relPath), err)
	}
	name := strings.TrimSuffix(filepath.Base(relPath), filepath.Ext(relPath))
	dir := filepath.Join(root, "history", name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperr.StoreError("create version-history directory", err)
	}
	stamp := timeNow().UTC().Format("20060102-150405.000000000")
	if err := os.WriteFile(filepath.Join(dir, stamp+".md"), prev, 0o644); err != nil {
		return apperr.StoreError(fmt.Sprintf("snapshot %s", relPath), err)
	}
	return nil
}

const userProfileDefault = "# User\n\nNothing is known about the user yet.\n"

// EnsureUserProfile guarantees the global USER.md profile and its
// user-history/ version directory exist at the data root.
func (r *Registry) EnsureUserProfile() error {
	if err := os.MkdirAll(filepath.Join(r.dataRoot, "user-history"), 0o755); err != nil {
		return apperr.StoreError("create user-history directory", err)
	}
	path := filepath.Join(r.dataRoot, "USER.md")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte(userProfileDefault), 0o644); err != nil {
			return apperr.StoreError("write default USER.md", err)
		}
	} else if err != nil {
		return apperr.StoreError("stat USER.md", err)
	}
	return nil
}

// WriteUserProfile replaces USER.md atomically, snapshotting the prior
// content into user-history/ first.
func (r *Registry) WriteUserProfile(content string) error {
	target := filepath.Join(r.dataRoot, "USER.md")
	if prev, err := os.ReadFile(target); err == nil {
		if err := os.MkdirAll(filepath.Join(r.dataRoot, "user-history"), 0o755); err != nil {
			return apperr.StoreError("create user-history directory", err)
		}
		stamp := timeNow().UTC().Format("20060102-150405.000000000")
		histPath := filepath.Join(r.dataRoot, "user-history", stamp+".md")
		if err := os.WriteFile(histPath, prev, 0o644); err != nil {
			return apperr.StoreError("snapshot USER.md", err)
		}
	} else if !os.IsNotExist(err) {
		return apperr.StoreError("read USER.md for versioning", err)
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return apperr.StoreError("write USER.md", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return apperr.StoreError("publish USER.md", err)
	}
	return nil
}
