package collab

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/shipwrecked/fleetcore/internal/apperr"
	"github.com/shipwrecked/fleetcore/pkg/models"
)

func (s *Store) subscriptionsPath() string {
	return filepath.Join(s.root, "subscriptions.json")
}

func (s *Store) loadSubscriptionsLocked() ([]models.Subscription, error) {
	data, err := os.ReadFile(s.subscriptionsPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.StoreError("read subscriptions.json", err)
	}
	var subs []models.Subscription
	if err := json.Unmarshal(data, &subs); err != nil {
		return nil, apperr.StoreError("unmarshal subscriptions.json", err)
	}
	return subs, nil
}

// Subscribe registers (agentID, topic). Idempotent: subscribing the same
// pair any number of times yields exactly one record (§8 invariant).
// The whole file is read, mutated, and atomically rewritten under a
// process-local mutex, per §5/§9's "serialize or atomic rename" rule for
// subscriptions.json specifically.
func (s *Store) Subscribe(agentID, topic string) (models.Subscription, error) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	subs, err := s.loadSubscriptionsLocked()
	if err != nil {
		return models.Subscription{}, err
	}
	for _, sub := range subs {
		if sub.AgentID == agentID && sub.Topic == topic {
			return sub, nil
		}
	}
	sub := models.Subscription{AgentID: agentID, Topic: topic, CreatedAt: timeNow()}
	subs = append(subs, sub)
	if err := writeJSONAtomic(s.subscriptionsPath(), subs); err != nil {
		return models.Subscription{}, err
	}
	return sub, nil
}

// Unsubscribe removes (agentID, topic) if present; a no-op otherwise.
func (s *Store) Unsubscribe(agentID, topic string) error {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	subs, err := s.loadSubscriptionsLocked()
	if err != nil {
		return err
	}
	out := subs[:0]
	for _, sub := range subs {
		if sub.AgentID == agentID && sub.Topic == topic {
			continue
		}
		out = append(out, sub)
	}
	return writeJSONAtomic(s.subscriptionsPath(), out)
}

// SubscribersOf returns every agent subscribed to topic.
func (s *Store) SubscribersOf(topic string) ([]string, error) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	subs, err := s.loadSubscriptionsLocked()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, sub := range subs {
		if sub.Topic == topic {
			out = append(out, sub.AgentID)
		}
	}
	return out, nil
}

// SubscriptionsOf returns every topic an agent is subscribed to.
func (s *Store) SubscriptionsOf(agentID string) ([]string, error) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	subs, err := s.loadSubscriptionsLocked()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, sub := range subs {
		if sub.AgentID == agentID {
			out = append(out, sub.Topic)
		}
	}
	return out, nil
}
