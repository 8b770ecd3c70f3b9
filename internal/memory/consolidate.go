package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// DefaultLookbackDays is the consolidation window when the caller doesn't
// override it.
const DefaultLookbackDays = 7

var (
	dailyLogName  = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\.md$`)
	boldFactLine  = regexp.MustCompile(`^-\s*\*\*(.+?)\*\*\s*$`)
	labeledLine   = regexp.MustCompile(`^(Decision|Important|TODO|Note|Learned|Remember):\s*(.+)$`)
	headingLine   = regexp.MustCompile(`^##\s+(.+)$`)
	interesting   = []string{"key", "finding", "decision", "action", "insight"}
)

// ConsolidationResult summarizes one consolidation pass.
type ConsolidationResult struct {
	FactsExtracted int
	FactsAdded     int
	DaysProcessed  int
}

// Consolidate extracts facts from daily logs newer than lookbackDays and
// appends the ones not already present in MEMORY.md under a new
// "## Consolidated <date>" section. memoryDir is the agent's memory/
// directory (daily logs live directly under it, archive/ is excluded);
// memoryMDPath is the path to MEMORY.md.
func Consolidate(memoryDir, memoryMDPath string, lookbackDays int, today time.Time) (ConsolidationResult, error) {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	cutoff := today.AddDate(0, 0, -lookbackDays)

	entries, err := os.ReadDir(memoryDir)
	if err != nil {
		return ConsolidationResult{}, fmt.Errorf("read memory dir: %w", err)
	}

	var result ConsolidationResult
	var allFacts []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := dailyLogName.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		logDate, err := time.Parse("2006-01-02", m[1])
		if err != nil || logDate.Before(cutoff) {
			continue
		}
		content, err := os.ReadFile(filepath.Join(memoryDir, entry.Name()))
		if err != nil {
			return result, fmt.Errorf("read daily log %s: %w", entry.Name(), err)
		}
		facts := extractFacts(string(content))
		allFacts = append(allFacts, facts...)
		result.DaysProcessed++
	}
	result.FactsExtracted = len(allFacts)

	existing, err := os.ReadFile(memoryMDPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return result, fmt.Errorf("read MEMORY.md: %w", err)
		}
		existing = []byte("# Memory\n\n")
	}
	existingNorm := normalizeWhitespace(strings.ToLower(string(existing)))

	var toAdd []string
	seenThisPass := make(map[string]bool)
	for _, fact := range allFacts {
		norm := normalizeWhitespace(strings.ToLower(fact))
		if norm == "" || seenThisPass[norm] {
			continue
		}
		if strings.Contains(existingNorm, norm) {
			continue
		}
		seenThisPass[norm] = true
		toAdd = append(toAdd, fact)
	}
	result.FactsAdded = len(toAdd)

	if len(toAdd) == 0 {
		return result, nil
	}

	var b strings.Builder
	b.Write(existing)
	if !strings.HasSuffix(string(existing), "\n") {
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\n## Consolidated %s\n", today.Format("2006-01-02"))
	for _, fact := range toAdd {
		fmt.Fprintf(&b, "- %s\n", fact)
	}
	if err := os.WriteFile(memoryMDPath, []byte(b.String()), 0o644); err != nil {
		return result, fmt.Errorf("write MEMORY.md: %w", err)
	}
	return result, nil
}

// extractFacts applies the three fact-extraction rules, in order, to
// every line of a daily log's content.
func extractFacts(content string) []string {
	var facts []string
	currentHeadingQualifies := false

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		if h := headingLine.FindStringSubmatch(trimmed); h != nil {
			currentHeadingQualifies = headingIsInteresting(h[1])
			continue
		}

		if m := boldFactLine.FindStringSubmatch(trimmed); m != nil {
			facts = append(facts, strings.TrimSpace(m[1]))
			continue
		}
		if m := labeledLine.FindStringSubmatch(trimmed); m != nil {
			facts = append(facts, strings.TrimSpace(m[2]))
			continue
		}
		if trimmed != "" && currentHeadingQualifies {
			facts = append(facts, trimmed)
		}
	}
	return facts
}

func headingIsInteresting(heading string) bool {
	lower := strings.ToLower(heading)
	for _, kw := range interesting {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func normalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
