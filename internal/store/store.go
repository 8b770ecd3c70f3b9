// Package store implements the orchestrator's persistent SQL database:
// sessions, users, and cron jobs. Memory chunks/FTS/embeddings live in a
// separate per-agent database — see internal/memory — because §6's
// on-disk layout keeps memory.db scoped under each agent's own
// directory rather than inside the shared orchestrator.db.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shipwrecked/fleetcore/internal/apperr"
	"github.com/shipwrecked/fleetcore/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the orchestrator.db connection.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path with
// write-ahead logging enabled, and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, apperr.StoreError("open orchestrator.db", err)
	}
	db.SetMaxOpenConns(1) // SQLite: serialize writers through one connection
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenMemory opens an in-process SQLite database for tests.
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared&_foreign_keys=on")
	if err != nil {
		return nil, apperr.StoreError("open in-memory store", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	conversation_id TEXT PRIMARY KEY,
	external_id     TEXT NOT NULL,
	agent_id        TEXT NOT NULL,
	channel         TEXT NOT NULL,
	status          TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL,
	last_active_at  TIMESTAMP NOT NULL,
	turn_count      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS users (
	channel         TEXT NOT NULL,
	channel_user_id TEXT NOT NULL,
	agent_id        TEXT NOT NULL,
	PRIMARY KEY (channel, channel_user_id)
);

CREATE TABLE IF NOT EXISTS cron_jobs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL UNIQUE,
	expression  TEXT NOT NULL,
	agent_id    TEXT NOT NULL,
	prompt      TEXT NOT NULL,
	deliver_to  TEXT,
	enabled     INTEGER NOT NULL DEFAULT 1,
	last_run_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS queued_tasks (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id        TEXT NOT NULL,
	conversation_id TEXT,
	prompt          TEXT NOT NULL,
	description     TEXT,
	execute_at      TIMESTAMP NOT NULL,
	status          TEXT NOT NULL,
	retry_count     INTEGER NOT NULL DEFAULT 0,
	result          TEXT,
	error           TEXT,
	completed_at    TIMESTAMP
);
`

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return apperr.StoreError("apply schema", err)
	}
	return nil
}

// --- Sessions -----------------------------------------------------------

// UpsertSession creates or updates the conversation's session row,
// enforcing the §3 invariant that exactly one external session id maps
// to a conversation id.
func (s *Store) UpsertSession(ctx context.Context, sess *models.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (conversation_id, external_id, agent_id, channel, status, created_at, last_active_at, turn_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			external_id = excluded.external_id,
			agent_id = excluded.agent_id,
			channel = excluded.channel,
			status = excluded.status,
			last_active_at = excluded.last_active_at,
			turn_count = excluded.turn_count
	`, sess.ConversationID, sess.ExternalID, sess.AgentID, string(sess.Channel),
		string(sess.Status), sess.CreatedAt, sess.LastActiveAt, sess.TurnCount)
	if err != nil {
		return apperr.StoreError("upsert session", err)
	}
	return nil
}

// GetSession looks up a session by conversation id.
func (s *Store) GetSession(ctx context.Context, conversationID string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, external_id, agent_id, channel, status, created_at, last_active_at, turn_count
		FROM sessions WHERE conversation_id = ?
	`, conversationID)

	var sess models.Session
	var channel, status string
	if err := row.Scan(&sess.ConversationID, &sess.ExternalID, &sess.AgentID, &channel, &status,
		&sess.CreatedAt, &sess.LastActiveAt, &sess.TurnCount); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.SessionNotFound(conversationID)
		}
		return nil, apperr.StoreError("get session", err)
	}
	sess.Channel = models.ChannelType(channel)
	sess.Status = models.SessionStatus(status)
	return &sess, nil
}

// ListSessions lists every known session, for IPC's sessions.list.
func (s *Store) ListSessions(ctx context.Context) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, external_id, agent_id, channel, status, created_at, last_active_at, turn_count
		FROM sessions ORDER BY last_active_at DESC
	`)
	if err != nil {
		return nil, apperr.StoreError("list sessions", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		var sess models.Session
		var channel, status string
		if err := rows.Scan(&sess.ConversationID, &sess.ExternalID, &sess.AgentID, &channel, &status,
			&sess.CreatedAt, &sess.LastActiveAt, &sess.TurnCount); err != nil {
			return nil, apperr.StoreError("scan session", err)
		}
		sess.Channel = models.ChannelType(channel)
		sess.Status = models.SessionStatus(status)
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// --- Users ---------------------------------------------------------------

// UpsertUser records (or updates) a channel-user -> agent mapping.
func (s *Store) UpsertUser(ctx context.Context, m models.UserMapping) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (channel, channel_user_id, agent_id) VALUES (?, ?, ?)
		ON CONFLICT(channel, channel_user_id) DO UPDATE SET agent_id = excluded.agent_id
	`, string(m.Channel), m.ChannelUserID, m.AgentID)
	if err != nil {
		return apperr.StoreError("upsert user", err)
	}
	return nil
}

// LookupUser finds the agent mapped to a (channel, channel_user_id) pair.
func (s *Store) LookupUser(ctx context.Context, channel models.ChannelType, channelUserID string) (string, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT agent_id FROM users WHERE channel = ? AND channel_user_id = ?`,
		string(channel), channelUserID)
	var agentID string
	if err := row.Scan(&agentID); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, apperr.StoreError("lookup user", err)
	}
	return agentID, true, nil
}

// --- Cron jobs -------------------------------------------------------------

// CreateCronJob inserts a new cron job; the name must be globally unique.
func (s *Store) CreateCronJob(ctx context.Context, job *models.CronJob) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cron_jobs (name, expression, agent_id, prompt, deliver_to, enabled, last_run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, job.Name, job.Expression, job.AgentID, job.Prompt, nullableString(job.DeliverTo), job.Enabled, nullableTime(job.LastRunAt))
	if err != nil {
		return apperr.StoreError("create cron job", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return apperr.StoreError("read cron job id", err)
	}
	job.ID = id
	return nil
}

// GetCronJobByName looks up a cron job by its unique name.
func (s *Store) GetCronJobByName(ctx context.Context, name string) (*models.CronJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, expression, agent_id, prompt, deliver_to, enabled, last_run_at
		FROM cron_jobs WHERE name = ?
	`, name)
	return scanCronJobRows(row)
}

// ListCronJobs returns every cron job.
func (s *Store) ListCronJobs(ctx context.Context) ([]*models.CronJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, expression, agent_id, prompt, deliver_to, enabled, last_run_at FROM cron_jobs
	`)
	if err != nil {
		return nil, apperr.StoreError("list cron jobs", err)
	}
	defer rows.Close()

	var out []*models.CronJob
	for rows.Next() {
		job, err := scanCronJobRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// SetCronJobEnabled enables or disables a job by name.
func (s *Store) SetCronJobEnabled(ctx context.Context, name string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE cron_jobs SET enabled = ? WHERE name = ?`, enabled, name)
	if err != nil {
		return apperr.StoreError("set cron job enabled", err)
	}
	return checkRowsAffected(res, "cron job", name)
}

// RemoveCronJob deletes a job by name.
func (s *Store) RemoveCronJob(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cron_jobs WHERE name = ?`, name)
	if err != nil {
		return apperr.StoreError("remove cron job", err)
	}
	return checkRowsAffected(res, "cron job", name)
}

// TouchCronJobLastRun updates last_run_at regardless of delivery outcome
// (§4.H: executeJob updates last_run_at unconditionally).
func (s *Store) TouchCronJobLastRun(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE cron_jobs SET last_run_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return apperr.StoreError("touch cron job last run", err)
	}
	return nil
}

// --- Queued tasks ----------------------------------------------------------

// CreateQueuedTask inserts a new one-shot deferred task.
func (s *Store) CreateQueuedTask(ctx context.Context, task *models.QueuedTask) error {
	if task.Status == "" {
		task.Status = models.TaskPending
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO queued_tasks (agent_id, conversation_id, prompt, description, execute_at, status, retry_count, result, error, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, task.AgentID, nullableString(task.ConversationID), task.Prompt, nullableString(task.Description),
		task.ExecuteAt, string(task.Status), task.RetryCount, nullableString(task.Result),
		nullableString(task.Error), nullableTime(task.CompletedAt))
	if err != nil {
		return apperr.StoreError("create queued task", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return apperr.StoreError("read queued task id", err)
	}
	task.ID = id
	return nil
}

// DueTasks returns every pending task whose execute_at has passed, for the
// task queue's poll loop.
func (s *Store) DueTasks(ctx context.Context, now time.Time) ([]*models.QueuedTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, conversation_id, prompt, description, execute_at, status, retry_count, result, error, completed_at
		FROM queued_tasks WHERE status = ? AND execute_at <= ?
	`, string(models.TaskPending), now)
	if err != nil {
		return nil, apperr.StoreError("list due tasks", err)
	}
	defer rows.Close()

	var out []*models.QueuedTask
	for rows.Next() {
		task, err := scanQueuedTaskRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// UpdateQueuedTaskStatus transitions a task's status and, for terminal
// states, records its result/error and completion time.
func (s *Store) UpdateQueuedTaskStatus(ctx context.Context, id int64, status models.TaskStatus, result, errMsg string, completedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE queued_tasks SET status = ?, result = ?, error = ?, completed_at = ? WHERE id = ?
	`, string(status), nullableString(result), nullableString(errMsg), nullableTime(completedAt), id)
	if err != nil {
		return apperr.StoreError("update queued task status", err)
	}
	return nil
}

// IncrementQueuedTaskRetry bumps a task's retry counter after a failed attempt.
func (s *Store) IncrementQueuedTaskRetry(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE queued_tasks SET retry_count = retry_count + 1 WHERE id = ?`, id)
	if err != nil {
		return apperr.StoreError("increment queued task retry", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueuedTaskRows(row rowScanner) (*models.QueuedTask, error) {
	var task models.QueuedTask
	var conversationID, description, result, errMsg sql.NullString
	var status string
	var completedAt sql.NullTime
	if err := row.Scan(&task.ID, &task.AgentID, &conversationID, &task.Prompt, &description,
		&task.ExecuteAt, &status, &task.RetryCount, &result, &errMsg, &completedAt); err != nil {
		return nil, apperr.StoreError("scan queued task", err)
	}
	task.ConversationID = conversationID.String
	task.Description = description.String
	task.Status = models.TaskStatus(status)
	task.Result = result.String
	task.Error = errMsg.String
	task.CompletedAt = completedAt.Time
	return &task, nil
}

func scanCronJobRows(row rowScanner) (*models.CronJob, error) {
	var job models.CronJob
	var deliverTo sql.NullString
	var lastRunAt sql.NullTime
	if err := row.Scan(&job.ID, &job.Name, &job.Expression, &job.AgentID, &job.Prompt,
		&deliverTo, &job.Enabled, &lastRunAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.StoreError("cron job not found", err)
		}
		return nil, apperr.StoreError("scan cron job", err)
	}
	job.DeliverTo = deliverTo.String
	job.LastRunAt = lastRunAt.Time
	return &job, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func checkRowsAffected(res sql.Result, kind, name string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.StoreError(fmt.Sprintf("check %s rows affected", kind), err)
	}
	if n == 0 {
		return apperr.StoreError(fmt.Sprintf("%s %q not found", kind, name), nil)
	}
	return nil
}
