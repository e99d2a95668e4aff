package types

import (
	"strings"
	"time"
)

// TaskState is the derived state of a task, computed from its durable
// columns. See original_source/memsql_loader/api/shared.py (TaskState) for
// the SQL projection this mirrors; this package computes it in Go only.
type TaskState string

const (
	TaskQueued    TaskState = "QUEUED"
	TaskRunning   TaskState = "RUNNING"
	TaskSuccess   TaskState = "SUCCESS"
	TaskError     TaskState = "ERROR"
	TaskCancelled TaskState = "CANCELLED"
)

// DeriveTaskState evaluates spec.md's task state projection purely from
// durable fields. It is the only evaluator: Task.State calls it, and
// queue.GetTasksInState filters rows through Task.State rather than SQL.
//
//	finished != NULL                                 -> UPPER(result)
//	else execution_id IS NULL or last_contact expired -> QUEUED
//	else                                              -> RUNNING
func DeriveTaskState(finished *time.Time, result string, executionID *string, lastContact *time.Time, now time.Time, leaseTTL time.Duration) TaskState {
	if finished != nil {
		switch result {
		case "success":
			return TaskSuccess
		case "error":
			return TaskError
		case "cancelled":
			return TaskCancelled
		default:
			return TaskState(strings.ToUpper(result))
		}
	}
	if executionID == nil || lastContact == nil || !lastContact.After(now.Add(-leaseTTL)) {
		return TaskQueued
	}
	return TaskRunning
}

// JobState is the derived state of a job, computed from its task counts.
// See original_source/memsql_loader/api/shared.py (JobState).
type JobState string

const (
	JobQueued    JobState = "QUEUED"
	JobRunning   JobState = "RUNNING"
	JobFinished  JobState = "FINISHED"
	JobCancelled JobState = "CANCELLED"
)

// TaskCounts summarizes a job's tasks for state derivation.
type TaskCounts struct {
	Total     int
	Queued    int
	Finished  int
	Cancelled int
}

// DeriveJobState evaluates the rules in the order spec.md §3 states them,
// not the order of the original Python projection (api/shared.py's
// JobState.PROJECTION checks cancellation before the zero-tasks case). That
// reordering is deliberate per spec.md: a job with no tasks yet is QUEUED,
// even though "tasks_finished == tasks_total" (0 == 0) would otherwise read
// as FINISHED.
func DeriveJobState(c TaskCounts) JobState {
	if c.Total == 0 {
		return JobQueued
	}
	if c.Finished == c.Total {
		return JobFinished
	}
	if (c.Total-c.Finished) == 0 && c.Cancelled > 0 {
		return JobCancelled
	}
	if c.Queued == c.Total {
		return JobQueued
	}
	return JobRunning
}
