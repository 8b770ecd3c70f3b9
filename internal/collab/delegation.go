// Package collab implements the file-based collaboration primitives
// (§4.J): inter-agent delegations, pub/sub topics, subscriptions, and
// shared-memory reads, all rooted under <dataRoot>/collaborations/.
package collab

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shipwrecked/fleetcore/internal/apperr"
	"github.com/shipwrecked/fleetcore/pkg/models"
)

// Store owns <dataRoot>/collaborations/: one delegation per file (single
// writer, many readers), one topic message per file (append-only), and a
// single subscriptions.json serialized through an in-process mutex so
// concurrent writers never lose an update (§5, §9).
type Store struct {
	root      string
	agentsDir string

	subMu sync.Mutex
}

// New roots a Store at <dataRoot>/collaborations and <dataRoot>/agents.
func New(dataRoot string) (*Store, error) {
	s := &Store{
		root:      filepath.Join(dataRoot, "collaborations"),
		agentsDir: filepath.Join(dataRoot, "agents"),
	}
	for _, dir := range []string{
		filepath.Join(s.root, "delegations"),
		filepath.Join(s.root, "topics"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperr.StoreError("create collaborations directory", err)
		}
	}
	return s, nil
}

func (s *Store) delegationPath(id string) string {
	return filepath.Join(s.root, "delegations", id+".json")
}

// CreateDelegation writes a new delegation file; the caller is the sole
// writer of this record going forward.
func (s *Store) CreateDelegation(from, to, task, context string) (*models.Delegation, error) {
	now := timeNow()
	d := &models.Delegation{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Task:      task,
		Context:   context,
		Status:    models.DelegationPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := writeJSONAtomic(s.delegationPath(d.ID), d); err != nil {
		return nil, err
	}
	return d, nil
}

// GetDelegation reads one delegation by id.
func (s *Store) GetDelegation(id string) (*models.Delegation, error) {
	var d models.Delegation
	if err := readJSON(s.delegationPath(id), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// UpdateDelegation rewrites a delegation's status and result, bumping
// UpdatedAt. The caller must be the delegation's recorded writer.
func (s *Store) UpdateDelegation(id string, status models.DelegationStatus, result string) (*models.Delegation, error) {
	d, err := s.GetDelegation(id)
	if err != nil {
		return nil, err
	}
	d.Status = status
	d.Result = result
	d.UpdatedAt = timeNow()
	if err := writeJSONAtomic(s.delegationPath(id), d); err != nil {
		return nil, err
	}
	return d, nil
}

// ListDelegations scans delegations/ and returns every record matching
// the optional from/to/status filters (empty string matches anything),
// applied in memory over the filesystem listing.
func (s *Store) ListDelegations(from, to string, status models.DelegationStatus) ([]*models.Delegation, error) {
	dir := filepath.Join(s.root, "delegations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperr.StoreError("list delegations", err)
	}
	var out []*models.Delegation
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		var d models.Delegation
		if err := readJSON(filepath.Join(dir, entry.Name()), &d); err != nil {
			continue // best-effort scan: skip unreadable/partial files
		}
		if from != "" && d.From != from {
			continue
		}
		if to != "" && d.To != to {
			continue
		}
		if status != "" && d.Status != status {
			continue
		}
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// timeNow is a package-level indirection so tests can override the clock.
var timeNow = time.Now

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return apperr.StoreError("marshal "+filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperr.StoreError("write "+filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return apperr.StoreError("publish "+filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return apperr.StoreError(fmt.Sprintf("%s not found", filepath.Base(path)), err)
		}
		return apperr.StoreError("read "+filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperr.StoreError("unmarshal "+filepath.Base(path), err)
	}
	return nil
}
