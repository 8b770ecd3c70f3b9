package skills

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseMinimal(t *testing.T) {
	data := `---
name: minimal
description: A minimal skill
---

Content here.
`
	entry, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if entry.Name != "minimal" {
		t.Errorf("Name = %q, want %q", entry.Name, "minimal")
	}
	if entry.Description != "A minimal skill" {
		t.Errorf("Description = %q, want %q", entry.Description, "A minimal skill")
	}
	if entry.Content != "Content here." {
		t.Errorf("Content = %q, want %q", entry.Content, "Content here.")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		errContains string
	}{
		{"empty file", "", "empty file"},
		{"missing frontmatter", "# Just markdown", "missing opening frontmatter delimiter"},
		{"unclosed frontmatter", "---\nname: test\n", "missing closing frontmatter delimiter"},
		{"missing name", "---\ndescription: x\n---\nbody\n", "name is required"},
		{"missing description", "---\nname: x\n---\nbody\n", "description is required"},
		{"invalid yaml", "---\nname: [oops\n---\nbody\n", "parse frontmatter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil {
				t.Fatal("expected error, got none")
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("error %q should contain %q", err.Error(), tt.errContains)
			}
		})
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "SKILL.md")
	content := "---\nname: test-skill\ndescription: does things\n---\n\n# Test Skill\n\nBody text.\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	entry, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile error: %v", err)
	}
	if entry.Name != "test-skill" {
		t.Errorf("Name = %q, want %q", entry.Name, "test-skill")
	}
	if entry.Path != dir {
		t.Errorf("Path = %q, want %q", entry.Path, dir)
	}
	if !strings.Contains(entry.Content, "Test Skill") {
		t.Errorf("Content should contain 'Test Skill', got %q", entry.Content)
	}
}

func TestLoaderSkipsMissing(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "alpha", "First skill")

	loader := NewLoader(root)
	entries, err := loader.Load([]string{"alpha", "ghost", "alpha"})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2 (ghost skipped)", len(entries))
	}
	if entries[0].Name != "alpha" || entries[1].Name != "alpha" {
		t.Errorf("entries = %+v, want both alpha", entries)
	}
}

func TestLoaderPreservesOrder(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "beta", "Second")
	writeSkill(t, root, "alpha", "First")

	loader := NewLoader(root)
	entries, err := loader.Load([]string{"beta", "alpha"})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "beta" || entries[1].Name != "alpha" {
		t.Fatalf("entries = %+v, want [beta alpha]", entries)
	}
}

func writeSkill(t *testing.T, root, name, desc string) {
	t.Helper()
	dir := filepath.Join(root, "skills", name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	content := "---\nname: " + name + "\ndescription: " + desc + "\n---\n\nBody for " + name + ".\n"
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(content), 0o644); err != nil {
		t.Fatalf("write skill: %v", err)
	}
}
