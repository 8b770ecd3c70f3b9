package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// DefaultArchiveThreshold is the MEMORY.md byte-length trigger when the
// caller doesn't override it.
const DefaultArchiveThreshold = 32 * 1024

var sectionHeading = regexp.MustCompile(`(?m)^## .*$`)

type section struct {
	heading string
	body    string // heading line + its body, up to (not including) the next heading
}

// ArchiveResult summarizes one archival pass.
type ArchiveResult struct {
	Archived        bool
	SectionsArchived int
	NewSize         int
}

// ArchiveIfNeeded checks MEMORY.md's size against threshold and, if it's
// over, moves middle "## " sections out to memory/archive/<today>.md,
// keeping the preamble, the first section, and as many trailing sections
// as fit under threshold.
func ArchiveIfNeeded(memoryMDPath, archiveDir string, threshold int, today time.Time) (ArchiveResult, error) {
	if threshold <= 0 {
		threshold = DefaultArchiveThreshold
	}
	data, err := os.ReadFile(memoryMDPath)
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("read MEMORY.md: %w", err)
	}
	if len(data) <= threshold {
		return ArchiveResult{NewSize: len(data)}, nil
	}

	preamble, sections := splitSections(string(data))
	if len(sections) <= 2 {
		return ArchiveResult{NewSize: len(data)}, nil
	}

	baseSize := len(preamble) + len(sections[0].body)

	// Walk backward from the end, keeping trailing sections while the
	// running total (preamble + first section + trailing kept so far)
	// still fits under threshold.
	firstTrailingIdx := len(sections)
	runningSize := baseSize
	for i := len(sections) - 1; i >= 1; i-- {
		next := runningSize + len(sections[i].body)
		if next > threshold {
			break
		}
		runningSize = next
		firstTrailingIdx = i
	}

	keptSet := make(map[int]bool)
	keptSet[0] = true
	for i := firstTrailingIdx; i < len(sections); i++ {
		keptSet[i] = true
	}

	var archived []section
	var archivedCount int
	var out strings.Builder
	out.WriteString(preamble)
	for i, s := range sections {
		if keptSet[i] {
			out.WriteString(s.body)
			continue
		}
		archived = append(archived, s)
		archivedCount++
		fmt.Fprintf(&out, "## %s\n\n_Sections archived to %s._\n\n", s.heading, filepath.Join("archive", today.Format("2006-01-02")+".md"))
	}

	if archivedCount == 0 {
		return ArchiveResult{NewSize: len(data)}, nil
	}

	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return ArchiveResult{}, fmt.Errorf("create archive dir: %w", err)
	}
	archivePath := filepath.Join(archiveDir, today.Format("2006-01-02")+".md")
	var archiveContent strings.Builder
	if existing, err := os.ReadFile(archivePath); err == nil {
		archiveContent.Write(existing)
		if !strings.HasSuffix(string(existing), "\n") {
			archiveContent.WriteString("\n")
		}
	} else if !os.IsNotExist(err) {
		return ArchiveResult{}, fmt.Errorf("read existing archive: %w", err)
	}
	for _, s := range archived {
		archiveContent.WriteString(s.body)
	}
	if err := os.WriteFile(archivePath, []byte(archiveContent.String()), 0o644); err != nil {
		return ArchiveResult{}, fmt.Errorf("write archive file: %w", err)
	}

	newContent := out.String()
	if err := os.WriteFile(memoryMDPath, []byte(newContent), 0o644); err != nil {
		return ArchiveResult{}, fmt.Errorf("write MEMORY.md: %w", err)
	}

	return ArchiveResult{Archived: true, SectionsArchived: archivedCount, NewSize: len(newContent)}, nil
}

// splitSections splits content into the preamble (everything before the
// first "## " heading) and a list of sections, each spanning its heading
// line through the byte before the next heading (or end of file).
func splitSections(content string) (string, []section) {
	locs := sectionHeading.FindAllStringIndex(content, -1)
	if len(locs) == 0 {
		return content, nil
	}
	preamble := content[:locs[0][0]]

	var sections []section
	for i, loc := range locs {
		end := len(content)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := content[loc[0]:end]
		heading := strings.TrimSpace(strings.TrimPrefix(content[loc[0]:loc[1]], "## "))
		sections = append(sections, section{heading: heading, body: body})
	}
	return preamble, sections
}
