// Package skills loads SKILL.md definitions — a YAML frontmatter block
// followed by a Markdown body — that an agent can declare by name in
// its AgentConfig.Skills list so the session manager can fold their
// content into a turn's system prompt.
package skills

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// frontmatterDelimiter marks the beginning and end of the YAML block.
const frontmatterDelimiter = "---"

// Entry is a parsed skill: its declared metadata plus Markdown body.
type Entry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Content     string `yaml:"-"`
	Path        string `yaml:"-"`
}

// Loader resolves an agent's declared skill names against SKILL.md files
// under <dataRoot>/skills/<name>/SKILL.md.
type Loader struct {
	dir string
}

// NewLoader builds a Loader rooted at <dataRoot>/skills.
func NewLoader(dataRoot string) *Loader {
	return &Loader{dir: filepath.Join(dataRoot, "skills")}
}

// Load parses the SKILL.md files for the given names, in order, skipping
// any name with no matching file on disk (a declared-but-unshipped
// skill is not an error — it simply contributes nothing to the prompt).
func (l *Loader) Load(names []string) ([]*Entry, error) {
	entries := make([]*Entry, 0, len(names))
	for _, name := range names {
		path := filepath.Join(l.dir, name, "SKILL.md")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		entry, err := ParseFile(path)
		if err != nil {
			return nil, fmt.Errorf("parse skill %q: %w", name, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ParseFile reads and parses a single SKILL.md file.
func ParseFile(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	entry, err := Parse(data)
	if err != nil {
		return nil, err
	}
	entry.Path = filepath.Dir(path)
	return entry, nil
}

// Parse splits SKILL.md content into its YAML frontmatter and Markdown
// body, validating that name and description are both present.
func Parse(data []byte) (*Entry, error) {
	frontmatter, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, fmt.Errorf("split frontmatter: %w", err)
	}

	var entry Entry
	if err := yaml.Unmarshal(frontmatter, &entry); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	if entry.Name == "" {
		return nil, fmt.Errorf("skill name is required")
	}
	if entry.Description == "" {
		return nil, fmt.Errorf("skill description is required")
	}
	entry.Content = strings.TrimSpace(string(body))
	return &entry, nil
}

func splitFrontmatter(data []byte) ([]byte, []byte, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))

	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("empty file")
	}
	if strings.TrimSpace(scanner.Text()) != frontmatterDelimiter {
		return nil, nil, fmt.Errorf("missing opening frontmatter delimiter")
	}

	var front []string
	closed := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == frontmatterDelimiter {
			closed = true
			break
		}
		front = append(front, line)
	}
	if !closed {
		return nil, nil, fmt.Errorf("missing closing frontmatter delimiter")
	}

	var body []string
	for scanner.Scan() {
		body = append(body, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("scanner error: %w", err)
	}

	return []byte(strings.Join(front, "\n")), []byte(strings.Join(body, "\n")), nil
}
