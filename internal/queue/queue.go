// Package queue implements the durable, lease-based task queue: enqueue,
// optimistic claim, liveness ping, progress save, step bracketing, finish,
// requeue, and the bulk/state-query operations jobs and the CLI need.
//
// Grounded on original_source/memsql_loader/util/apsw_sql_step_queue/
// queue.py (Queue.enqueue/_dequeue_task/bulk_finish/get_tasks_in_state) and
// task_handler.py (TaskHandler.ping/save/finish/requeue/start_step/
// stop_step/refresh). Each mutating statement carries an "AND
// execution_id = ?" guard exactly as task_handler.py does, so a lease that
// was stolen out from under the caller (lease expired and another worker
// claimed it) is detected by a zero-row update rather than a lock.
package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/memsql/memsql-loader/internal/errs"
	"github.com/memsql/memsql-loader/internal/types"
)

// LeaseTTL is how long a claimed task may go without a Ping before another
// worker is allowed to claim it. See spec.md §4.B/Glossary (default 120s).
const LeaseTTL = 120 * time.Second

const timeLayout = time.RFC3339Nano

// Queue is the task queue, backed by one store.Store.
type Queue struct {
	db execer
}

// execer is satisfied by *sql.DB (via store.Cursor) and *sql.Tx (via
// store.Transaction), letting Queue methods run in either context.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// New wraps db (typically obtained from store.Store.Cursor or
// store.Store.Transaction) as a Queue.
func New(db execer) *Queue { return &Queue{db: db} }

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(timeLayout, s) }

func nullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Enqueue inserts a new, unclaimed task for jobID. fileID identifies the
// source file for dedup-by-reload (spec.md §4.G step 6); pass "" when the
// job has no file_id column configured.
func (q *Queue) Enqueue(ctx context.Context, jobID string, data types.TaskData, fileID string) (int64, error) {
	rawData, err := types.MarshalData(data)
	if err != nil {
		return 0, fmt.Errorf("marshal task data: %w", err)
	}
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO tasks (job_id, created, data, file_id, result, steps)
		VALUES (?, ?, ?, ?, '', '[]')`,
		jobID, formatTime(time.Now()), rawData, fileID)
	if err != nil {
		return 0, fmt.Errorf("enqueue task: %w", err)
	}
	return res.LastInsertId()
}

// claimCandidates is how many claimable ids Claim considers per call before
// giving up, mirroring _dequeue_task's retry loop: each worker is now its
// own OS process with its own store.Store (no in-process mutex serializes
// concurrent claims the way the original's single-writer storage did), so a
// candidate can lose its UPDATE race to another worker and must be skipped
// in favor of the next one rather than reported as "no task available".
const claimCandidates = 5

// Claim finds an unclaimed or lease-expired task for jobID (or any job, if
// jobID is ""), optimistically marks it running under a fresh execution ID,
// and returns a Lease over it. Returns (nil, nil) only if none of up to
// claimCandidates candidates could be claimed, mirroring _dequeue_task's
// "no rows" case.
func (q *Queue) Claim(ctx context.Context, jobID string) (*Lease, error) {
	deadline := formatTime(time.Now().Add(-LeaseTTL))
	var (
		rows *sql.Rows
		err  error
	)
	if jobID != "" {
		rows, err = q.db.QueryContext(ctx, `
			SELECT id FROM tasks
			WHERE job_id = ? AND finished IS NULL
			  AND (execution_id IS NULL OR last_contact < ?)
			ORDER BY created ASC LIMIT ?`, jobID, deadline, claimCandidates)
	} else {
		rows, err = q.db.QueryContext(ctx, `
			SELECT id FROM tasks
			WHERE finished IS NULL
			  AND (execution_id IS NULL OR last_contact < ?)
			ORDER BY created ASC LIMIT ?`, deadline, claimCandidates)
	}
	if err != nil {
		return nil, fmt.Errorf("find claimable tasks: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan claimable task: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, id := range ids {
		execID := uuid.NewString()
		now := formatTime(time.Now())
		res, err := q.db.ExecContext(ctx, `
			UPDATE tasks SET execution_id = ?, started = ?, last_contact = ?
			WHERE id = ? AND finished IS NULL
			  AND (execution_id IS NULL OR last_contact < ?)`,
			execID, now, now, id, deadline)
		if err != nil {
			return nil, fmt.Errorf("claim task: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			// Another worker won the race for this candidate; try the next.
			continue
		}

		task, err := q.get(ctx, id)
		if err != nil {
			return nil, err
		}
		return &Lease{q: q, task: task, executionID: execID}, nil
	}

	// Every candidate was claimed out from under us; the caller retries.
	return nil, nil
}

func (q *Queue) get(ctx context.Context, id int64) (*types.Task, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, job_id, created, data, file_id, md5, bytes_total, bytes_downloaded,
		       download_rate, execution_id, started, last_contact, finished, result, steps, update_count
		FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

func scanTask(row *sql.Row) (*types.Task, error) {
	var (
		t                                                    types.Task
		created                                              string
		rawData, rawSteps                                    string
		md5                                                  sql.NullString
		bytesTotal, bytesDownloaded, downloadRate             sql.NullInt64
		executionID                                          sql.NullString
		started, lastContact, finished                       sql.NullString
	)
	err := row.Scan(&t.ID, &t.JobID, &created, &rawData, &t.FileID, &md5, &bytesTotal, &bytesDownloaded,
		&downloadRate, &executionID, &started, &lastContact, &finished, &t.Result, &rawSteps, &t.UpdateCount)
	if err != nil {
		return nil, err
	}

	if t.Created, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created: %w", err)
	}
	if t.Data, err = types.UnmarshalData(rawData); err != nil {
		return nil, fmt.Errorf("parse data: %w", err)
	}
	if t.Steps, err = types.UnmarshalSteps(rawSteps); err != nil {
		return nil, fmt.Errorf("parse steps: %w", err)
	}
	if md5.Valid {
		v := md5.String
		t.MD5 = &v
	}
	if bytesTotal.Valid {
		v := bytesTotal.Int64
		t.BytesTotal = &v
	}
	if bytesDownloaded.Valid {
		v := bytesDownloaded.Int64
		t.BytesDownloaded = &v
	}
	if downloadRate.Valid {
		v := downloadRate.Int64
		t.DownloadRate = &v
	}
	if executionID.Valid {
		v := executionID.String
		t.ExecutionID = &v
	}
	if t.Started, err = nullableTime(started); err != nil {
		return nil, fmt.Errorf("parse started: %w", err)
	}
	if t.LastContact, err = nullableTime(lastContact); err != nil {
		return nil, fmt.Errorf("parse last_contact: %w", err)
	}
	if t.Finished, err = nullableTime(finished); err != nil {
		return nil, fmt.Errorf("parse finished: %w", err)
	}
	return &t, nil
}

// Get fetches a task by ID regardless of lease ownership, for read paths
// (CLI `task`, `tasks`).
func (q *Queue) Get(ctx context.Context, id int64) (*types.Task, error) {
	return q.get(ctx, id)
}

// GetTasksInState lists jobID's tasks whose derived state equals state,
// mirroring Queue.get_tasks_in_state. The filter is evaluated in Go against
// each row rather than inlined as SQL, since it must agree exactly with
// types.DeriveTaskState (Testable Property 6).
func (q *Queue) GetTasksInState(ctx context.Context, jobID string, state types.TaskState, leaseTTL time.Duration) ([]*types.Task, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, job_id, created, data, file_id, md5, bytes_total, bytes_downloaded,
		       download_rate, execution_id, started, last_contact, finished, result, steps, update_count
		FROM tasks WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	var out []*types.Task
	for rows.Next() {
		t, err := scanTaskRows(rows)
		if err != nil {
			return nil, err
		}
		if t.State(now, leaseTTL) == state {
			out = append(out, t)
		}
	}
	return out, rows.Err()
}

// AllForJob lists every task belonging to jobID, for counting/state
// aggregation (the CLI's job, jobs and tasks commands use this to derive
// JobState and list tasks).
func (q *Queue) AllForJob(ctx context.Context, jobID string) ([]*types.Task, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, job_id, created, data, file_id, md5, bytes_total, bytes_downloaded,
		       download_rate, execution_id, started, last_contact, finished, result, steps, update_count
		FROM tasks WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*types.Task
	for rows.Next() {
		t, err := scanTaskRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTaskRows(rows *sql.Rows) (*types.Task, error) {
	var (
		t                                          types.Task
		created                                    string
		rawData, rawSteps                          string
		md5                                        sql.NullString
		bytesTotal, bytesDownloaded, downloadRate  sql.NullInt64
		executionID                                sql.NullString
		started, lastContact, finished             sql.NullString
	)
	err := rows.Scan(&t.ID, &t.JobID, &created, &rawData, &t.FileID, &md5, &bytesTotal, &bytesDownloaded,
		&downloadRate, &executionID, &started, &lastContact, &finished, &t.Result, &rawSteps, &t.UpdateCount)
	if err != nil {
		return nil, err
	}
	if t.Created, err = parseTime(created); err != nil {
		return nil, err
	}
	if t.Data, err = types.UnmarshalData(rawData); err != nil {
		return nil, err
	}
	if t.Steps, err = types.UnmarshalSteps(rawSteps); err != nil {
		return nil, err
	}
	if md5.Valid {
		v := md5.String
		t.MD5 = &v
	}
	if bytesTotal.Valid {
		v := bytesTotal.Int64
		t.BytesTotal = &v
	}
	if bytesDownloaded.Valid {
		v := bytesDownloaded.Int64
		t.BytesDownloaded = &v
	}
	if downloadRate.Valid {
		v := downloadRate.Int64
		t.DownloadRate = &v
	}
	if executionID.Valid {
		v := executionID.String
		t.ExecutionID = &v
	}
	if t.Started, err = nullableTime(started); err != nil {
		return nil, err
	}
	if t.LastContact, err = nullableTime(lastContact); err != nil {
		return nil, err
	}
	if t.Finished, err = nullableTime(finished); err != nil {
		return nil, err
	}
	return &t, nil
}

// BulkFinish marks every unfinished task in jobID as finished with result,
// mirroring Queue.bulk_finish. execution_id is reset to the 0 sentinel and
// steps cleared, matching spec.md §4.B (a bulk-cancelled task never ran
// under a real execution and has no step history to preserve). Used by job
// cancellation.
func (q *Queue) BulkFinish(ctx context.Context, jobID string, result string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE tasks SET finished = ?, result = ?, execution_id = '0', steps = '[]'
		WHERE job_id = ? AND finished IS NULL`,
		formatTime(time.Now()), result, jobID)
	if err != nil {
		return 0, fmt.Errorf("bulk finish: %w", err)
	}
	return res.RowsAffected()
}

// Lease wraps a claimed task and its execution ID; every mutating method
// guards its UPDATE with "AND execution_id = ?" and returns errs.ErrLeaseLost
// if the lease was stolen (TaskHandler's TaskDoesNotExist).
type Lease struct {
	q           *Queue
	task        *types.Task
	executionID string
}

// Task returns the lease's current in-memory snapshot. Call Refresh first
// to guarantee it reflects the latest durable row.
func (l *Lease) Task() *types.Task { return l.task }

// ExecutionID returns the lease's execution ID.
func (l *Lease) ExecutionID() string { return l.executionID }

func (l *Lease) guardedExec(ctx context.Context, query string, args ...interface{}) error {
	res, err := l.q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrLeaseLost
	}
	return nil
}

// Refresh re-reads the task row under this lease, mirroring
// TaskHandler.refresh(). Returns errs.ErrLeaseLost if the execution_id no
// longer matches (lease expired and reclaimed, or the task was deleted).
func (l *Lease) Refresh(ctx context.Context) error {
	t, err := l.q.get(ctx, l.task.ID)
	if err != nil {
		return err
	}
	if t.ExecutionID == nil || *t.ExecutionID != l.executionID {
		return errs.ErrLeaseLost
	}
	l.task = t
	return nil
}

// Ping extends the lease by updating last_contact, mirroring
// TaskHandler.ping().
func (l *Lease) Ping(ctx context.Context) error {
	now := time.Now()
	if err := l.guardedExec(ctx, `
		UPDATE tasks SET last_contact = ? WHERE id = ? AND execution_id = ? AND finished IS NULL`,
		formatTime(now), l.task.ID, l.executionID); err != nil {
		return err
	}
	l.task.LastContact = &now
	return nil
}

// Save persists data/bytesTotal/bytesDownloaded/downloadRate/md5 and the
// current step list, mirroring TaskHandler.save().
func (l *Lease) Save(ctx context.Context) error {
	rawData, err := types.MarshalData(l.task.Data)
	if err != nil {
		return fmt.Errorf("marshal task data: %w", err)
	}
	rawSteps, err := types.MarshalSteps(l.task.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	return l.guardedExec(ctx, `
		UPDATE tasks SET data = ?, md5 = ?, bytes_total = ?, bytes_downloaded = ?,
		       download_rate = ?, steps = ?
		WHERE id = ? AND execution_id = ?`,
		rawData, l.task.MD5, l.task.BytesTotal, l.task.BytesDownloaded, l.task.DownloadRate,
		rawSteps, l.task.ID, l.executionID)
}

// StartStep appends a new running step named name, mirroring
// TaskHandler.start_step(). Returns errs.ErrStepAlreadyStarted if a step of
// that name is already running.
func (l *Lease) StartStep(ctx context.Context, name string) error {
	for _, s := range l.task.Steps {
		if s.Name == name && s.Running() {
			return errs.ErrStepAlreadyStarted
		}
	}
	l.task.Steps = append(l.task.Steps, types.Step{Name: name, Start: time.Now()})
	return l.Save(ctx)
}

// StopStep closes the most recently started running step named name,
// mirroring TaskHandler.stop_step(). Returns errs.ErrStepNotStarted if no
// such step is running.
func (l *Lease) StopStep(ctx context.Context, name string) error {
	for i := len(l.task.Steps) - 1; i >= 0; i-- {
		s := &l.task.Steps[i]
		if s.Name == name && s.Running() {
			now := time.Now()
			d := now.Sub(s.Start).Seconds()
			s.Stop = &now
			s.Duration = &d
			return l.Save(ctx)
		}
	}
	return errs.ErrStepNotStarted
}

// Finish marks the task finished with result ("success", "error", or
// "cancelled"), mirroring TaskHandler.finish(). Returns errs.ErrStepRunning
// if any step is still open, and errs.ErrAlreadyFinished if already
// finished.
func (l *Lease) Finish(ctx context.Context, result string) error {
	if l.task.RunningSteps() > 0 {
		return errs.ErrStepRunning
	}
	now := time.Now()
	err := l.guardedExec(ctx, `
		UPDATE tasks SET finished = ?, result = ? WHERE id = ? AND execution_id = ? AND finished IS NULL`,
		formatTime(now), result, l.task.ID, l.executionID)
	if err != nil {
		if err == errs.ErrLeaseLost {
			// Row exists but finished is already set, or execution_id moved on;
			// disambiguate per task_handler.py's finish().
			t, gerr := l.q.get(ctx, l.task.ID)
			if gerr == nil && t.ExecutionID != nil && *t.ExecutionID == l.executionID && t.Finished != nil {
				return errs.ErrAlreadyFinished
			}
		}
		return err
	}
	l.task.Finished = &now
	l.task.Result = result
	return nil
}

// Requeue releases the lease back to the pool for reason, clearing
// execution_id/started/last_contact/steps/bytes_downloaded/download_rate
// and data.time_left, but leaving bytes_total, md5, and the rest of data
// untouched — see DESIGN.md's Open Question decision: a requeued task
// resumes its download rather than restarting from byte zero, but its step
// history and in-flight progress markers must not survive into the re-run
// (a stale closed "download" step would make the next StartStep append a
// second entry instead of starting clean).
func (l *Lease) Requeue(ctx context.Context, reason string) error {
	if l.task.Data != nil {
		delete(l.task.Data, "time_left")
	}
	rawData, err := types.MarshalData(l.task.Data)
	if err != nil {
		return fmt.Errorf("marshal task data: %w", err)
	}

	err = l.guardedExec(ctx, `
		UPDATE tasks SET execution_id = NULL, started = NULL, last_contact = NULL,
		       steps = '[]', bytes_downloaded = NULL, download_rate = NULL, data = ?
		WHERE id = ? AND execution_id = ? AND finished IS NULL`,
		rawData, l.task.ID, l.executionID)
	if err != nil {
		return err
	}
	l.task.ExecutionID = nil
	l.task.Started = nil
	l.task.LastContact = nil
	l.task.Steps = nil
	l.task.BytesDownloaded = nil
	l.task.DownloadRate = nil
	return nil
}
