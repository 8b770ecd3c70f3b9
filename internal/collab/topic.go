package collab

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/shipwrecked/fleetcore/internal/apperr"
	"github.com/shipwrecked/fleetcore/pkg/models"
)

// unsafeFileChars matches characters that can't safely appear in a
// filename, used to sanitize the ISO timestamp embedded in a topic
// message's file name (§3, §4.J).
var unsafeFileChars = regexp.MustCompile(`[:.]`)

func sanitizeTimestamp(ts string) string {
	return unsafeFileChars.ReplaceAllString(ts, "-")
}

func (s *Store) topicDir(topic string) string {
	return filepath.Join(s.root, "topics", topic)
}

// Publish appends a new message to a topic. The file name embeds a
// sanitized ISO-8601 timestamp so that a plain directory listing sorts
// messages in publish order (§4.J).
func (s *Store) Publish(topic, sender, payload string) (*models.TopicMessage, error) {
	dir := s.topicDir(topic)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.StoreError("create topic directory", err)
	}

	msg := &models.TopicMessage{
		ID:        uuid.NewString(),
		Topic:     topic,
		Sender:    sender,
		Payload:   payload,
		Timestamp: timeNow().UTC(),
	}
	ts := msg.Timestamp.Format("2006-01-02T15:04:05.000Z")
	name := sanitizeTimestamp(ts) + "-" + msg.ID + ".json"
	if err := writeJSONAtomic(filepath.Join(dir, name), msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// GetMessages lists a topic's messages in timestamp order. When since is
// non-empty, only messages whose millisecond-precision UTC timestamp
// string (2006-01-02T15:04:05.000Z) sorts
// strictly after since are returned (§4.J, §8 scenario 3: strictly-after
// semantics, not "since-or-later").
func (s *Store) GetMessages(topic, since string) ([]*models.TopicMessage, error) {
	dir := s.topicDir(topic)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.StoreError("list topic messages", err)
	}

	var out []*models.TopicMessage
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		var msg models.TopicMessage
		if err := readJSON(filepath.Join(dir, entry.Name()), &msg); err != nil {
			continue
		}
		out = append(out, &msg)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	if since == "" {
		return out, nil
	}
	var filtered []*models.TopicMessage
	for _, msg := range out {
		if msg.Timestamp.Format("2006-01-02T15:04:05.000Z") > since {
			filtered = append(filtered, msg)
		}
	}
	return filtered, nil
}
