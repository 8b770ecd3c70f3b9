package ralph

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync/atomic"
	"time"
)

// defaultVerifyTimeout is the bounded wall-clock budget for a
// verification command when RunConfig.VerifyTimeout is zero.
const defaultVerifyTimeout = 5 * time.Minute

// LLMRunner dispatches one work-prompt turn to the agent's LLM
// subprocess and returns its final reply.
type LLMRunner interface {
	Run(ctx context.Context, prompt string) (string, error)
}

// RunConfig parameterizes one RALPH loop invocation over a single
// PLAN.md / progress.md pair.
type RunConfig struct {
	PlanPath      string
	ProgressPath  string
	WorkDir       string // working directory for verifyCommand and git add/commit
	VerifyCommand string
	VerifyTimeout time.Duration
	Domain        Domain
	AutoCommit    *bool // nil means apply defaultAutoCommit(Domain)
	MaxIterations int
	MaxRetries    int
}

func (c RunConfig) autoCommit() bool {
	if c.AutoCommit != nil {
		return *c.AutoCommit
	}
	return defaultAutoCommit(c.Domain)
}

func (c RunConfig) verifyTimeout() time.Duration {
	if c.VerifyTimeout > 0 {
		return c.VerifyTimeout
	}
	return defaultVerifyTimeout
}

// Result summarizes one completed (or aborted) RALPH run.
type Result struct {
	TotalIterations int
	TasksCompleted  int
	TasksBlocked    int
	TasksRemaining  int
	DurationMs      int64
	Aborted         bool
}

// Loop drives a single PLAN.md through completion, one task per
// iteration, via an injected LLMRunner.
type Loop struct {
	cfg     RunConfig
	llm     LLMRunner
	logger  *slog.Logger
	aborted atomic.Bool
}

// NewLoop builds a Loop. logger may be nil, in which case slog.Default
// is used.
func NewLoop(cfg RunConfig, llm LLMRunner, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{cfg: cfg, llm: llm, logger: logger.With("component", "ralph")}
}

// Abort requests that the loop stop at its next checkpoint (a task
// boundary, or between the LLM call and the verify step).
func (l *Loop) Abort() {
	l.aborted.Store(true)
}

// Run drives the loop to completion, to maxIterations, or to abort.
func (l *Loop) Run(ctx context.Context) (*Result, error) {
	start := timeNow()
	retries := map[int]int{}
	res := &Result{}

	for res.TotalIterations < l.cfg.MaxIterations {
		if l.aborted.Load() {
			res.Aborted = true
			break
		}
		res.TotalIterations++

		planContent, err := readPlanFile(l.cfg.PlanPath)
		if err != nil {
			return nil, fmt.Errorf("ralph: read plan: %w", err)
		}
		tasks := ParsePlan(planContent)

		next, done := pickNextTask(tasks)
		if done {
			break
		}
		if next == nil {
			// Nothing open, but something was in_progress from a prior crash:
			// reset every in_progress task to open and retry once more.
			if !resetInProgress(l.cfg.PlanPath, tasks) {
				break
			}
			continue
		}

		if err := UpdateTaskStatus(l.cfg.PlanPath, next.Index, StatusInProgress); err != nil {
			return nil, fmt.Errorf("ralph: mark in_progress: %w", err)
		}

		iterStart := timeNow()
		progress := readProgress(l.cfg.ProgressPath)
		prompt := buildWorkPrompt(next.Text, progress, l.cfg.VerifyCommand, l.cfg.Domain)

		output, runErr := l.llm.Run(ctx, prompt)

		if l.aborted.Load() {
			_ = UpdateTaskStatus(l.cfg.PlanPath, next.Index, StatusOpen)
			res.Aborted = true
			break
		}

		if runErr != nil {
			l.logger.Warn("work prompt failed", "task", next.Text, "error", runErr)
			retries[next.Index]++
			if retries[next.Index] >= l.cfg.MaxRetries {
				_ = UpdateTaskStatus(l.cfg.PlanPath, next.Index, StatusBlocked)
				res.TasksBlocked++
				_ = appendProgress(l.cfg.ProgressPath, res.TotalIterations, next.Text, "blocked", timeNow().Sub(iterStart), timeNow(), runErr.Error())
			} else {
				_ = UpdateTaskStatus(l.cfg.PlanPath, next.Index, StatusOpen)
			}
			continue
		}

		success := true
		verifyOutput := ""
		if l.cfg.VerifyCommand != "" {
			var verr error
			success, verifyOutput, verr = l.runVerify(ctx)
			if verr != nil {
				l.logger.Warn("verify command errored", "error", verr)
			}
		}

		combinedOutput := output
		if verifyOutput != "" {
			combinedOutput = output + "\n\n" + verifyOutput
		}

		if success {
			if err := UpdateTaskStatus(l.cfg.PlanPath, next.Index, StatusDone); err != nil {
				return nil, fmt.Errorf("ralph: mark done: %w", err)
			}
			res.TasksCompleted++
			_ = appendProgress(l.cfg.ProgressPath, res.TotalIterations, next.Text, "done", timeNow().Sub(iterStart), timeNow(), combinedOutput)
			if l.cfg.autoCommit() {
				if err := gitCommit(ctx, l.cfg.WorkDir, next.Text); err != nil {
					l.logger.Warn("autoCommit failed", "error", err)
				}
			}
			continue
		}

		retries[next.Index]++
		if retries[next.Index] >= l.cfg.MaxRetries {
			_ = UpdateTaskStatus(l.cfg.PlanPath, next.Index, StatusBlocked)
			res.TasksBlocked++
			_ = appendProgress(l.cfg.ProgressPath, res.TotalIterations, next.Text, "blocked", timeNow().Sub(iterStart), timeNow(), combinedOutput)
		} else {
			_ = UpdateTaskStatus(l.cfg.PlanPath, next.Index, StatusOpen)
			_ = appendProgress(l.cfg.ProgressPath, res.TotalIterations, next.Text, "retry", timeNow().Sub(iterStart), timeNow(), combinedOutput)
		}
	}

	finalTasks := ParsePlan(readPlanFileOrEmpty(l.cfg.PlanPath))
	for _, t := range finalTasks {
		if t.Status == StatusOpen || t.Status == StatusInProgress {
			res.TasksRemaining++
		}
	}

	res.DurationMs = timeNow().Sub(start).Milliseconds()
	return res, nil
}

// pickNextTask returns the first open task, or (nil, true) if every
// task is done/blocked (nothing left to do), or (nil, false) if none
// are open but some remain in_progress (a crash-recovery case the
// caller should reset-and-retry).
func pickNextTask(tasks []Task) (*Task, bool) {
	sawInProgress := false
	for i := range tasks {
		switch tasks[i].Status {
		case StatusOpen:
			return &tasks[i], false
		case StatusInProgress:
			sawInProgress = true
		}
	}
	return nil, !sawInProgress
}

// resetInProgress resets every in_progress task back to open. Returns
// false if there was nothing to reset (so the caller should halt
// instead of looping forever).
func resetInProgress(planPath string, tasks []Task) bool {
	reset := false
	for _, t := range tasks {
		if t.Status == StatusInProgress {
			_ = UpdateTaskStatus(planPath, t.Index, StatusOpen)
			reset = true
		}
	}
	return reset
}

func (l *Loop) runVerify(ctx context.Context) (bool, string, error) {
	vctx, cancel := context.WithTimeout(ctx, l.cfg.verifyTimeout())
	defer cancel()

	cmd := exec.CommandContext(vctx, "sh", "-c", l.cfg.VerifyCommand)
	cmd.Dir = l.cfg.WorkDir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	return err == nil, out.String(), nil
}

func gitCommit(ctx context.Context, workDir, taskText string) error {
	add := exec.CommandContext(ctx, "git", "add", ".")
	add.Dir = workDir
	if err := add.Run(); err != nil {
		return fmt.Errorf("ralph: git add: %w", err)
	}

	commit := exec.CommandContext(ctx, "git", "commit", "-m", fmt.Sprintf("ralph: %s", taskText))
	commit.Dir = workDir
	if err := commit.Run(); err != nil {
		// nothing to commit is not an error worth surfacing as a failure
		return nil
	}
	return nil
}
