package sessionmgr

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/shipwrecked/fleetcore/internal/apperr"
)

// sessionMap persists the conversation_id -> external_session_id
// mapping (§4.D step 6) to a single JSON file, so a restarted
// orchestrator can resume every in-flight conversation's external LLM
// session.
type sessionMap struct {
	path string
	mu   sync.Mutex
}

func newSessionMap(dataRoot string) *sessionMap {
	return &sessionMap{path: filepath.Join(dataRoot, "session-map.json")}
}

func (m *sessionMap) load() (map[string]string, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, apperr.StoreError("read session-map.json", err)
	}
	out := map[string]string{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, apperr.StoreError("unmarshal session-map.json", err)
	}
	return out, nil
}

// Get returns the external session id for a conversation, if known.
func (m *sessionMap) Get(conversationID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all, err := m.load()
	if err != nil {
		return "", false
	}
	id, ok := all[conversationID]
	return id, ok
}

// Set records or overwrites the external session id for a conversation.
func (m *sessionMap) Set(conversationID, externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	all, err := m.load()
	if err != nil {
		return err
	}
	all[conversationID] = externalID
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return apperr.StoreError("marshal session-map.json", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperr.StoreError("write session-map.json", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return apperr.StoreError("publish session-map.json", err)
	}
	return nil
}
