package collab

import (
	"os"
	"path/filepath"

	"github.com/shipwrecked/fleetcore/internal/apperr"
)

// GetSharedMemory returns the contents of target's MEMORY.md, the one
// file agents are allowed to read from each other (§4.J): it never
// returns SOUL.md or any other agent artifact. Both the requester's and
// the target's agent directories must exist, and the target must have a
// MEMORY.md.
func (s *Store) GetSharedMemory(requester, target string) (string, error) {
	requesterDir := filepath.Join(s.agentsDir, requester)
	if _, err := os.Stat(requesterDir); err != nil {
		return "", apperr.AgentNotFound(requester)
	}
	targetDir := filepath.Join(s.agentsDir, target)
	if _, err := os.Stat(targetDir); err != nil {
		return "", apperr.AgentNotFound(target)
	}

	data, err := os.ReadFile(filepath.Join(targetDir, "MEMORY.md"))
	if err != nil {
		return "", apperr.StoreError("read "+target+"/MEMORY.md", err)
	}
	return string(data), nil
}
