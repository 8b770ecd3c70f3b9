package scheduler

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/shipwrecked/fleetcore/internal/sessionmgr"
	"github.com/shipwrecked/fleetcore/pkg/models"
)

// maxTaskRetries bounds how many times a failed queued task is
// re-attempted before it is marked failed for good.
const maxTaskRetries = 3

// taskExpiry is how far past execute_at a still-pending task may drift
// before it is marked expired instead of dispatched.
const taskExpiry = 24 * time.Hour

// TaskStore is the subset of internal/store.Store the task queue needs.
type TaskStore interface {
	DueTasks(ctx context.Context, now time.Time) ([]*models.QueuedTask, error)
	UpdateQueuedTaskStatus(ctx context.Context, id int64, status models.TaskStatus, result, errMsg string, completedAt time.Time) error
	IncrementQueuedTaskRetry(ctx context.Context, id int64) error
}

// TaskQueue polls for due one-shot tasks and dispatches each exactly
// once per poll, transitioning pending -> running -> completed/failed,
// with bounded retry on failure. Grounded on
// haasonsaas-nexus/internal/tasks/executor.go's executor-per-attempt
// shape (get-or-create session, run, record outcome), adapted from its
// agent-runtime session model to this spec's sessionmgr.Manager.
type TaskQueue struct {
	store      TaskStore
	dispatcher Dispatcher
	logger     *slog.Logger

	pollInterval time.Duration
}

// NewTaskQueue builds a TaskQueue polling at the given interval.
func NewTaskQueue(store TaskStore, dispatcher Dispatcher, pollInterval time.Duration, logger *slog.Logger) *TaskQueue {
	if logger == nil {
		logger = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	return &TaskQueue{
		store:        store,
		dispatcher:   dispatcher,
		logger:       logger.With("component", "task-queue"),
		pollInterval: pollInterval,
	}
}

// Run polls for and executes due tasks until ctx is cancelled.
func (q *TaskQueue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.pollOnce(ctx)
		}
	}
}

// pollOnce runs one poll cycle; kept as a separate method so tests
// can drive it deterministically without waiting on the ticker.
func (q *TaskQueue) pollOnce(ctx context.Context) {
	due, err := q.store.DueTasks(ctx, timeNow())
	if err != nil {
		q.logger.Error("list due tasks", "error", err)
		return
	}
	for _, task := range due {
		q.execute(ctx, task)
	}
}

func (q *TaskQueue) execute(ctx context.Context, task *models.QueuedTask) {
	if timeNow().Sub(task.ExecuteAt) > taskExpiry {
		taskExecutionsTotal.WithLabelValues("expired").Inc()
		if err := q.store.UpdateQueuedTaskStatus(ctx, task.ID, models.TaskExpired, "", "overdue past expiry window", timeNow()); err != nil {
			q.logger.Error("mark task expired", "task", task.ID, "error", err)
		}
		return
	}

	if err := q.store.UpdateQueuedTaskStatus(ctx, task.ID, models.TaskRunning, "", "", time.Time{}); err != nil {
		q.logger.Error("mark task running", "task", task.ID, "error", err)
		return
	}

	conversationID := task.ConversationID
	if conversationID == "" {
		conversationID = taskConversationID(task.ID)
	}

	res, err := q.dispatcher.SendMessage(ctx, task.AgentID, conversationID, task.Prompt, sessionmgr.Context{})
	if err != nil {
		q.fail(ctx, task, err.Error())
		return
	}

	taskExecutionsTotal.WithLabelValues("completed").Inc()
	if err := q.store.UpdateQueuedTaskStatus(ctx, task.ID, models.TaskCompleted, res.Text, "", timeNow()); err != nil {
		q.logger.Error("mark task completed", "task", task.ID, "error", err)
	}
}

// Cancel marks a not-yet-completed task cancelled so the poll loop
// never dispatches it.
func (q *TaskQueue) Cancel(ctx context.Context, id int64) error {
	return q.store.UpdateQueuedTaskStatus(ctx, id, models.TaskCancelled, "", "", timeNow())
}

func (q *TaskQueue) fail(ctx context.Context, task *models.QueuedTask, errMsg string) {
	if err := q.store.IncrementQueuedTaskRetry(ctx, task.ID); err != nil {
		q.logger.Error("increment task retry", "task", task.ID, "error", err)
	}
	if task.RetryCount+1 >= maxTaskRetries {
		taskExecutionsTotal.WithLabelValues("failed").Inc()
		if err := q.store.UpdateQueuedTaskStatus(ctx, task.ID, models.TaskFailed, "", errMsg, timeNow()); err != nil {
			q.logger.Error("mark task failed", "task", task.ID, "error", err)
		}
		return
	}
	// Put the task back to pending so the next poll retries it.
	taskExecutionsTotal.WithLabelValues("retried").Inc()
	if err := q.store.UpdateQueuedTaskStatus(ctx, task.ID, models.TaskPending, "", errMsg, time.Time{}); err != nil {
		q.logger.Error("mark task pending for retry", "task", task.ID, "error", err)
	}
	q.logger.Warn("task attempt failed, will retry", "task", task.ID, "attempt", task.RetryCount+1, "error", errMsg)
}

func taskConversationID(id int64) string {
	return "task:" + strconv.FormatInt(id, 10)
}
