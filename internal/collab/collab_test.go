package collab

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shipwrecked/fleetcore/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestDelegationLifecycle(t *testing.T) {
	s := newTestStore(t)

	orig := timeNow
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return now }
	defer func() { timeNow = orig }()

	d, err := s.CreateDelegation("jarvis", "scout", "Review PR #42", "ctx")
	if err != nil {
		t.Fatalf("CreateDelegation: %v", err)
	}
	if d.Status != models.DelegationPending {
		t.Fatalf("want pending, got %s", d.Status)
	}

	now = now.Add(time.Minute)
	updated, err := s.UpdateDelegation(d.ID, models.DelegationCompleted, "LGTM")
	if err != nil {
		t.Fatalf("UpdateDelegation: %v", err)
	}
	if updated.Status != models.DelegationCompleted || updated.Result != "LGTM" {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if !updated.UpdatedAt.After(d.CreatedAt) {
		t.Fatalf("UpdatedAt %v should be after CreatedAt %v", updated.UpdatedAt, d.CreatedAt)
	}

	onDisk, err := s.GetDelegation(d.ID)
	if err != nil {
		t.Fatalf("GetDelegation: %v", err)
	}
	if onDisk.Status != models.DelegationCompleted || onDisk.Result != "LGTM" {
		t.Fatalf("disk record does not match update: %+v", onDisk)
	}
}

func TestListDelegationsFilters(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.CreateDelegation("a", "b", "t1", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateDelegation("a", "c", "t2", ""); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListDelegations("a", "", "")
	if err != nil {
		t.Fatalf("ListDelegations: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("want 2 delegations from a, got %d", len(list))
	}

	list, err = s.ListDelegations("a", "b", "")
	if err != nil {
		t.Fatalf("ListDelegations: %v", err)
	}
	if len(list) != 1 || list[0].To != "b" {
		t.Fatalf("unexpected filtered list: %+v", list)
	}
}

func TestTopicSinceFilterIsStrict(t *testing.T) {
	s := newTestStore(t)

	orig := timeNow
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return fixed }
	defer func() { timeNow = orig }()

	if _, err := s.Publish("exact", "agent-a", "hello"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	msgs, err := s.GetMessages("exact", "2024-06-01T12:00:00.000Z")
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("want 0 messages with since==timestamp, got %d", len(msgs))
	}

	msgs, err = s.GetMessages("exact", "")
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("want 1 message with no since filter, got %d", len(msgs))
	}
}

func TestTopicMessagesSortedByTimestamp(t *testing.T) {
	s := newTestStore(t)

	orig := timeNow
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return t0 }
	if _, err := s.Publish("ordered", "a", "first"); err != nil {
		t.Fatal(err)
	}
	timeNow = func() time.Time { return t0.Add(time.Second) }
	if _, err := s.Publish("ordered", "a", "second"); err != nil {
		t.Fatal(err)
	}
	timeNow = orig

	msgs, err := s.GetMessages("ordered", "")
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Payload != "first" || msgs[1].Payload != "second" {
		t.Fatalf("unexpected order: %+v", msgs)
	}
}

func TestSubscribeIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		if _, err := s.Subscribe("agent-a", "topic-x"); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
	}

	subs, err := s.SubscribersOf("topic-x")
	if err != nil {
		t.Fatalf("SubscribersOf: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("want exactly 1 subscription record, got %d: %v", len(subs), subs)
	}
}

func TestUnsubscribe(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Subscribe("a", "t"); err != nil {
		t.Fatal(err)
	}
	if err := s.Unsubscribe("a", "t"); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	subs, err := s.SubscribersOf("t")
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 0 {
		t.Fatalf("want 0 subscribers after unsubscribe, got %d", len(subs))
	}
}

func TestGetSharedMemoryOnlyReadsMemoryFile(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatal(err)
	}

	for _, agent := range []string{"requester", "target"} {
		if err := os.MkdirAll(filepath.Join(root, "agents", agent), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "agents", "target", "MEMORY.md"), []byte("shared notes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "agents", "target", "SOUL.md"), []byte("secret identity"), 0o644); err != nil {
		t.Fatal(err)
	}

	content, err := s.GetSharedMemory("requester", "target")
	if err != nil {
		t.Fatalf("GetSharedMemory: %v", err)
	}
	if content != "shared notes" {
		t.Fatalf("want shared notes, got %q", content)
	}

	if _, err := s.GetSharedMemory("requester", "nobody"); err == nil {
		t.Fatal("want error for nonexistent target agent")
	}
}
