// Package scheduler implements the three recurring-work primitives of
// §4.H: cron jobs, per-agent heartbeats, and the one-shot task queue.
// All three ultimately dispatch through the same Dispatcher
// (internal/sessionmgr.Manager), so a tick never preempts an
// in-flight send on the conversation it targets.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/shipwrecked/fleetcore/internal/sessionmgr"
	"github.com/shipwrecked/fleetcore/pkg/models"
)

// timeNow and sleepFn are overridden in tests.
var (
	timeNow = time.Now
	sleepFn = time.Sleep
)

// Bounded retry before the job's next scheduled occurrence; the delay
// doubles per attempt up to the cap.
const (
	maxCronRetries   = 3
	cronRetryBackoff = 5 * time.Second
	cronMaxBackoff   = time.Minute
)

// Dispatcher is the subset of sessionmgr.Manager the scheduler needs to
// fire a prompt at an agent.
type Dispatcher interface {
	SendMessage(ctx context.Context, agentID, conversationID, prompt string, chCtx sessionmgr.Context) (*sessionmgr.Result, error)
}

// Delivery posts a scheduler-produced result to an external target
// ("channel:target", per §4.H).
type Delivery interface {
	Deliver(ctx context.Context, target, text string) error
}

// CronStore is the subset of internal/store.Store the cron scheduler
// needs.
type CronStore interface {
	ListCronJobs(ctx context.Context) ([]*models.CronJob, error)
	TouchCronJobLastRun(ctx context.Context, id int64, at time.Time) error
}

// CronScheduler runs cron jobs from the store, one robfig/cron entry
// per enabled job, grounded on haasonsaas-nexus/internal/cron.Scheduler
// (a jobs slice plus Start/Stop over a shared clock) but backed by
// robfig/cron/v3 directly for schedule parsing/dispatch, matching
// haasonsaas-nexus/internal/cron/schedule.go's own parser options.
type CronScheduler struct {
	store      CronStore
	dispatcher Dispatcher
	delivery   Delivery
	logger     *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID // job name -> cron entry
	history ExecutionStore
}

// SetExecutionStore wires an execution-history store into the
// scheduler. Optional: with none configured, runs are not recorded.
func (c *CronScheduler) SetExecutionStore(history ExecutionStore) {
	c.history = history
}

// NewCronScheduler builds a CronScheduler.
func NewCronScheduler(store CronStore, dispatcher Dispatcher, delivery Delivery, logger *slog.Logger) *CronScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CronScheduler{
		store:      store,
		dispatcher: dispatcher,
		delivery:   delivery,
		logger:     logger.With("component", "cron"),
		cron:       cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor))),
		entries:    make(map[string]cron.EntryID),
	}
}

// Start loads every enabled job from the store and schedules it, then
// starts the underlying cron runner.
func (c *CronScheduler) Start(ctx context.Context) error {
	jobs, err := c.store.ListCronJobs(ctx)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if !job.Enabled {
			continue
		}
		if err := c.schedule(ctx, job); err != nil {
			c.logger.Error("schedule cron job", "job", job.Name, "error", err)
		}
	}
	c.cron.Start()
	return nil
}

// Stop halts the cron runner, waiting for any in-flight job to finish.
func (c *CronScheduler) Stop() {
	<-c.cron.Stop().Done()
}

func (c *CronScheduler) schedule(ctx context.Context, job *models.CronJob) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.entries[job.Name]; ok {
		c.cron.Remove(id)
		delete(c.entries, job.Name)
	}

	id, err := c.cron.AddFunc(job.Expression, func() { c.executeJob(ctx, job) })
	if err != nil {
		return fmt.Errorf("scheduler: invalid cron expression %q for job %q: %w", job.Expression, job.Name, err)
	}
	c.entries[job.Name] = id
	return nil
}

// executeJob invokes the dispatcher with the job's prompt, retrying a
// failed dispatch with exponential backoff before giving up until the
// next scheduled occurrence, and optionally posts the result to
// deliverTo; last_run_at is updated regardless of delivery success
// (§4.H).
func (c *CronScheduler) executeJob(ctx context.Context, job *models.CronJob) {
	exec := &JobExecution{
		ID:        uuid.NewString(),
		JobName:   job.Name,
		Status:    ExecutionRunning,
		StartedAt: timeNow(),
	}
	if c.history != nil {
		if err := c.history.Create(ctx, exec); err != nil {
			c.logger.Warn("cron execution create failed", "job", job.Name, "error", err)
		}
	}

	conversationID := fmt.Sprintf("cron:%s", job.Name)
	var res *sessionmgr.Result
	var err error
	for attempt := 0; ; attempt++ {
		res, err = c.dispatcher.SendMessage(ctx, job.AgentID, conversationID, job.Prompt, sessionmgr.Context{})
		if err == nil || attempt >= maxCronRetries {
			break
		}
		exec.Retry = attempt + 1
		c.logger.Warn("cron job dispatch failed, retrying", "job", job.Name, "attempt", attempt+1, "error", err)
		sleepFn(cronRetryDelay(attempt + 1))
	}

	if err != nil {
		c.logger.Error("cron job dispatch failed", "job", job.Name, "error", err)
		cronExecutionsTotal.WithLabelValues(job.Name, "failed").Inc()
		exec.Status = ExecutionFailed
		exec.Error = err.Error()
	} else {
		cronExecutionsTotal.WithLabelValues(job.Name, "succeeded").Inc()
		exec.Status = ExecutionSucceeded
		exec.Output = res.Text
		if job.DeliverTo != "" && c.delivery != nil {
			if err := c.delivery.Deliver(ctx, job.DeliverTo, res.Text); err != nil {
				c.logger.Error("cron job delivery failed", "job", job.Name, "error", err)
			}
		}
	}

	exec.CompletedAt = timeNow()
	exec.Duration = exec.CompletedAt.Sub(exec.StartedAt)
	if c.history != nil {
		if err := c.history.Update(ctx, exec); err != nil {
			c.logger.Warn("cron execution update failed", "job", job.Name, "error", err)
		}
	}

	if err := c.store.TouchCronJobLastRun(ctx, job.ID, timeNow()); err != nil {
		c.logger.Error("touch cron job last_run_at", "job", job.Name, "error", err)
	}
}

func cronRetryDelay(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	delay := cronRetryBackoff
	if attempt > 1 {
		delay = time.Duration(1<<(attempt-1)) * cronRetryBackoff
	}
	if delay > cronMaxBackoff {
		return cronMaxBackoff
	}
	return delay
}

// Enable (re)schedules job's timer if it isn't already running.
func (c *CronScheduler) Enable(ctx context.Context, job *models.CronJob) error {
	c.mu.Lock()
	_, running := c.entries[job.Name]
	c.mu.Unlock()
	if running {
		return nil
	}
	return c.schedule(ctx, job)
}

// Disable stops and drops job's timer.
func (c *CronScheduler) Disable(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.entries[name]; ok {
		c.cron.Remove(id)
		delete(c.entries, name)
	}
}
