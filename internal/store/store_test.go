package store

import (
	"context"
	"testing"
	"time"

	"github.com/shipwrecked/fleetcore/internal/apperr"
	"github.com/shipwrecked/fleetcore/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	sess := &models.Session{
		ConversationID: "telegram:123:jarvis",
		ExternalID:     "ext-1",
		AgentID:        "jarvis",
		Channel:        models.ChannelTelegram,
		Status:         models.SessionActive,
		CreatedAt:      now,
		LastActiveAt:   now,
		TurnCount:      1,
	}
	if err := s.UpsertSession(ctx, sess); err != nil {
		t.Fatalf("UpsertSession() error = %v", err)
	}

	got, err := s.GetSession(ctx, sess.ConversationID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.ExternalID != "ext-1" || got.TurnCount != 1 {
		t.Fatalf("GetSession() = %+v", got)
	}

	sess.TurnCount = 2
	sess.Status = models.SessionIdle
	if err := s.UpsertSession(ctx, sess); err != nil {
		t.Fatalf("UpsertSession() update error = %v", err)
	}
	got, err = s.GetSession(ctx, sess.ConversationID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TurnCount != 2 || got.Status != models.SessionIdle {
		t.Fatalf("GetSession() after update = %+v", got)
	}

	all, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("ListSessions() len = %d, want 1", len(all))
	}
}

func TestGetSessionNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSession(context.Background(), "missing")
	if !apperr.Is(err, apperr.KindSessionNotFound) {
		t.Fatalf("expected SessionNotFound, got %v", err)
	}
}

func TestUserMappingRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := models.UserMapping{Channel: models.ChannelSlack, ChannelUserID: "U1", AgentID: "jarvis"}
	if err := s.UpsertUser(ctx, m); err != nil {
		t.Fatal(err)
	}
	agentID, ok, err := s.LookupUser(ctx, models.ChannelSlack, "U1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || agentID != "jarvis" {
		t.Fatalf("LookupUser() = (%q, %v), want (jarvis, true)", agentID, ok)
	}

	_, ok, err = s.LookupUser(ctx, models.ChannelSlack, "unknown")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected no mapping for unknown user")
	}

	// Re-mapping the same user to a different agent must overwrite, not duplicate.
	m.AgentID = "friday"
	if err := s.UpsertUser(ctx, m); err != nil {
		t.Fatal(err)
	}
	agentID, _, _ = s.LookupUser(ctx, models.ChannelSlack, "U1")
	if agentID != "friday" {
		t.Fatalf("agentID after remap = %q, want friday", agentID)
	}
}

func TestCronJobLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := &models.CronJob{
		Name:       "daily-standup",
		Expression: "0 9 * * *",
		AgentID:    "jarvis",
		Prompt:     "summarize yesterday",
		Enabled:    true,
	}
	if err := s.CreateCronJob(ctx, job); err != nil {
		t.Fatalf("CreateCronJob() error = %v", err)
	}
	if job.ID == 0 {
		t.Fatal("expected CreateCronJob to assign an id")
	}

	got, err := s.GetCronJobByName(ctx, "daily-standup")
	if err != nil {
		t.Fatalf("GetCronJobByName() error = %v", err)
	}
	if got.Expression != job.Expression || !got.Enabled {
		t.Fatalf("GetCronJobByName() = %+v", got)
	}

	if err := s.SetCronJobEnabled(ctx, "daily-standup", false); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetCronJobByName(ctx, "daily-standup")
	if err != nil {
		t.Fatal(err)
	}
	if got.Enabled {
		t.Fatal("expected job disabled")
	}

	now := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	if err := s.TouchCronJobLastRun(ctx, got.ID, now); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetCronJobByName(ctx, "daily-standup")
	if err != nil {
		t.Fatal(err)
	}
	if !got.LastRunAt.Equal(now) {
		t.Fatalf("LastRunAt = %v, want %v", got.LastRunAt, now)
	}

	jobs, err := s.ListCronJobs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Fatalf("ListCronJobs() len = %d, want 1", len(jobs))
	}

	if err := s.RemoveCronJob(ctx, "daily-standup"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetCronJobByName(ctx, "daily-standup"); err == nil {
		t.Fatal("expected error after removal")
	}
}

func TestRemoveCronJobMissingFails(t *testing.T) {
	s := newTestStore(t)
	err := s.RemoveCronJob(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected error removing a nonexistent job")
	}
}

func TestQueuedTaskLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	past := time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC)
	future := past.Add(24 * time.Hour)

	due := &models.QueuedTask{AgentID: "jarvis", Prompt: "ping the team", ExecuteAt: past}
	notYet := &models.QueuedTask{AgentID: "jarvis", Prompt: "ping later", ExecuteAt: future}
	if err := s.CreateQueuedTask(ctx, due); err != nil {
		t.Fatalf("CreateQueuedTask() error = %v", err)
	}
	if err := s.CreateQueuedTask(ctx, notYet); err != nil {
		t.Fatal(err)
	}
	if due.Status != models.TaskPending {
		t.Fatalf("Status = %q, want pending default", due.Status)
	}

	tasks, err := s.DueTasks(ctx, past.Add(time.Hour))
	if err != nil {
		t.Fatalf("DueTasks() error = %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != due.ID {
		t.Fatalf("DueTasks() = %+v, want only the past task", tasks)
	}

	if err := s.IncrementQueuedTaskRetry(ctx, due.ID); err != nil {
		t.Fatal(err)
	}
	completedAt := past.Add(time.Minute)
	if err := s.UpdateQueuedTaskStatus(ctx, due.ID, models.TaskCompleted, "delivered", "", completedAt); err != nil {
		t.Fatal(err)
	}

	tasks, err = s.DueTasks(ctx, future.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].ID != notYet.ID {
		t.Fatalf("DueTasks() after completion = %+v, want only the still-pending later task (completed task excluded)", tasks)
	}
}
