package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/shipwrecked/fleetcore/internal/apperr"
)

// envTokenPattern matches ${NAME} where NAME is [A-Za-z0-9_]+.
var envTokenPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// expandEnvTokens substitutes ${NAME} tokens with the named environment
// variable's value, or the empty string if it is unset. Unlike
// os.ExpandEnv this never expands bare $NAME (no braces), matching the
// spec's narrower token grammar.
func expandEnvTokens(raw string) string {
	return envTokenPattern.ReplaceAllStringFunc(raw, func(tok string) string {
		name := envTokenPattern.FindStringSubmatch(tok)[1]
		return os.Getenv(name)
	})
}

// Load reads, expands, parses and validates config.json at path.
// On any violation it returns a *apperr.Error of kind ConfigError whose
// message lists every JSON-Pointer path that failed, newline-separated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.ConfigError(fmt.Sprintf("read %s", path), err)
	}

	expanded := expandEnvTokens(string(data))

	var raw any
	dec := json.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, apperr.ConfigError("parse config.json", err)
	}

	if errs := ValidateDocument(raw); len(errs) > 0 {
		return nil, apperr.ConfigError(formatViolations(errs), nil)
	}

	cfg := Default()
	if err := json.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, apperr.ConfigError("decode config.json", err)
	}
	return cfg, nil
}

// Save writes cfg to path as indented JSON, atomically (temp file then
// os.Rename), matching the atomic-publish idiom used for every other
// on-disk document in this repo.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return apperr.ConfigError("marshal config.json", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperr.ConfigError("write "+path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return apperr.ConfigError("publish "+path, err)
	}
	return nil
}

// Violation is one schema validation failure at a JSON-Pointer path.
type Violation struct {
	Path    string
	Message string
}

func formatViolations(vs []Violation) string {
	sort.Slice(vs, func(i, j int) bool { return vs[i].Path < vs[j].Path })
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%d violation(s):", len(vs)))
	for _, v := range vs {
		b.WriteString(fmt.Sprintf("\n  %s: %s", v.Path, v.Message))
	}
	return b.String()
}
