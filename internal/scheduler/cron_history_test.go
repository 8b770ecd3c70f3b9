package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestMemoryExecutionStoreListFiltersByJobName(t *testing.T) {
	s := NewMemoryExecutionStore()
	ctx := context.Background()

	for _, e := range []*JobExecution{
		{ID: "a", JobName: "report", Status: ExecutionSucceeded, StartedAt: time.Now()},
		{ID: "b", JobName: "cleanup", Status: ExecutionFailed, StartedAt: time.Now()},
		{ID: "c", JobName: "report", Status: ExecutionSucceeded, StartedAt: time.Now()},
	} {
		if err := s.Create(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.List(ctx, "report", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 report executions, got %d", len(got))
	}
	if capped, _ := s.List(ctx, "", 1); len(capped) != 1 {
		t.Fatalf("want limit to cap results, got %d", len(capped))
	}
}

func TestMemoryExecutionStoreUpdateReplacesInPlace(t *testing.T) {
	s := NewMemoryExecutionStore()
	ctx := context.Background()

	exec := &JobExecution{ID: "x", JobName: "j", Status: ExecutionRunning, StartedAt: time.Now()}
	if err := s.Create(ctx, exec); err != nil {
		t.Fatal(err)
	}
	exec.Status = ExecutionSucceeded
	exec.Output = "done"
	if err := s.Update(ctx, exec); err != nil {
		t.Fatal(err)
	}

	got, err := s.List(ctx, "j", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Status != ExecutionSucceeded || got[0].Output != "done" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestMemoryExecutionStorePrune(t *testing.T) {
	s := NewMemoryExecutionStore()
	ctx := context.Background()

	old := &JobExecution{ID: "old", JobName: "j", StartedAt: time.Now().Add(-48 * time.Hour)}
	fresh := &JobExecution{ID: "new", JobName: "j", StartedAt: time.Now()}
	for _, e := range []*JobExecution{old, fresh} {
		if err := s.Create(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	pruned, err := s.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if pruned != 1 {
		t.Fatalf("want 1 pruned, got %d", pruned)
	}
	got, _ := s.List(ctx, "j", 0)
	if len(got) != 1 || got[0].ID != "new" {
		t.Fatalf("unexpected survivors: %+v", got)
	}
}
