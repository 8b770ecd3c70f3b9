package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shipwrecked/fleetcore/internal/memory"
	"github.com/shipwrecked/fleetcore/internal/registry"
)

// maintenanceInterval is how often each agent's memory index is brought
// up to date and its MEMORY.md considered for consolidation/archival.
const maintenanceInterval = 24 * time.Hour

// memoryMaintainer runs each agent's recurring memory upkeep on its own
// ticker, opening and closing the agent's memory.db for each pass, mirroring scheduler.HeartbeatRunner's
// per-agent context-cancel-to-stop shape but for a maintenance pass
// instead of an LLM CLI turn.
type memoryMaintainer struct {
	reg    *registry.Registry
	logger *slog.Logger

	cancels map[string]context.CancelFunc
}

func newMemoryMaintainer(reg *registry.Registry, logger *slog.Logger) *memoryMaintainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &memoryMaintainer{
		reg:     reg,
		logger:  logger.With("component", "memory-maintainer"),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Register starts slug's recurring maintenance ticker.
func (m *memoryMaintainer) Register(ctx context.Context, slug string) {
	m.Unregister(slug)

	tickCtx, cancel := context.WithCancel(ctx)
	m.cancels[slug] = cancel
	go m.run(tickCtx, slug)
}

// Unregister stops slug's maintenance ticker, if any.
func (m *memoryMaintainer) Unregister(slug string) {
	if cancel, ok := m.cancels[slug]; ok {
		cancel()
		delete(m.cancels, slug)
	}
}

// StopAll stops every registered agent's maintenance ticker.
func (m *memoryMaintainer) StopAll() {
	for slug := range m.cancels {
		m.Unregister(slug)
	}
}

func (m *memoryMaintainer) run(ctx context.Context, slug string) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(slug)
		}
	}
}

func (m *memoryMaintainer) tick(slug string) {
	agentDir := m.reg.AgentDir(slug)
	memoryDir := filepath.Join(agentDir, "memory")
	memoryMDPath := filepath.Join(agentDir, "MEMORY.md")
	archiveDir := filepath.Join(memoryDir, "archive")

	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		m.logger.Error("failed to ensure memory directory", "agent", slug, "error", err)
		return
	}

	engine, err := memory.Open(filepath.Join(agentDir, "memory.db"), agentDir)
	if err != nil {
		m.logger.Error("failed to open memory index", "agent", slug, "error", err)
		return
	}
	defer engine.Close()

	reindexResult, err := engine.IncrementalReindex()
	if err != nil {
		m.logger.Error("incremental reindex failed", "agent", slug, "error", err)
	} else {
		m.logger.Info("reindexed agent memory", "agent", slug,
			"indexed", reindexResult.FilesIndexed, "skipped", reindexResult.FilesSkipped,
			"removed", reindexResult.FilesRemoved)
	}

	now := time.Now()
	consolidation, err := memory.Consolidate(memoryDir, memoryMDPath, memory.DefaultLookbackDays, now)
	if err != nil {
		m.logger.Error("memory consolidation failed", "agent", slug, "error", err)
	} else if consolidation.FactsAdded > 0 {
		m.logger.Info("consolidated agent memory", "agent", slug,
			"facts_added", consolidation.FactsAdded, "days_processed", consolidation.DaysProcessed)
	}

	archived, err := memory.ArchiveIfNeeded(memoryMDPath, archiveDir, memory.DefaultArchiveThreshold, now)
	if err != nil {
		m.logger.Error("memory archival failed", "agent", slug, "error", err)
	} else if archived.Archived {
		m.logger.Info("archived agent memory sections", "agent", slug,
			"sections", archived.SectionsArchived, "new_size", archived.NewSize)
	}
}
