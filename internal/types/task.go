package types

import (
	"encoding/json"
	"time"
)

// Step records the start/stop of a named sub-phase of a task (e.g.
// "download"), mirroring the steps column's JSON array. See
// original_source/memsql_loader/util/apsw_sql_step_queue/task_handler.py
// (start_step/stop_step).
type Step struct {
	Name     string     `json:"name"`
	Start    time.Time  `json:"start"`
	Stop     *time.Time `json:"stop,omitempty"`
	Duration *float64   `json:"duration,omitempty"`
}

// Running reports whether the step has not yet been stopped.
func (s Step) Running() bool { return s.Stop == nil }

// TaskData is the opaque per-task JSON blob (scheme, source path, and
// scratch fields the worker/downloader/loader thread write back, e.g.
// conn_id, row_count, time_left). Kept as a map so arbitrary scratch keys
// round-trip without a rigid schema, mirroring the Python dict used in
// task.data.
type TaskData map[string]interface{}

func (d TaskData) GetString(key string) (string, bool) {
	v, ok := d[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (d TaskData) GetInt64(key string) (int64, bool) {
	v, ok := d[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

// Task is one file to load. Durable fields mirror the tasks table exactly;
// see spec.md §3 and original_source/memsql_loader/util/apsw_sql_step_queue/
// queue.py's primary_table_definition.
type Task struct {
	ID              int64
	JobID           string
	Created         time.Time
	Data            TaskData
	FileID          string
	MD5             *string
	BytesTotal      *int64
	BytesDownloaded *int64
	DownloadRate    *int64
	ExecutionID     *string
	Started         *time.Time
	LastContact     *time.Time
	Finished        *time.Time
	Result          string
	Steps           []Step
	UpdateCount     int64
}

// State computes the derived state per spec.md §3, using now/leaseTTL for
// the liveness check.
func (t *Task) State(now time.Time, leaseTTL time.Duration) TaskState {
	return DeriveTaskState(t.Finished, t.Result, t.ExecutionID, t.LastContact, now, leaseTTL)
}

// RunningSteps returns the count of steps with no Stop timestamp, mirroring
// TaskHandler._running_steps().
func (t *Task) RunningSteps() int {
	n := 0
	for _, s := range t.Steps {
		if s.Running() {
			n++
		}
	}
	return n
}

// MarshalData serializes TaskData for storage in the tasks.data column.
func MarshalData(d TaskData) (string, error) {
	if d == nil {
		d = TaskData{}
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UnmarshalData parses a tasks.data column value.
func UnmarshalData(raw string) (TaskData, error) {
	d := TaskData{}
	if raw == "" {
		return d, nil
	}
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, err
	}
	return d, nil
}

// MarshalSteps serializes a step slice for storage in the tasks.steps column.
func MarshalSteps(steps []Step) (string, error) {
	if steps == nil {
		steps = []Step{}
	}
	b, err := json.Marshal(steps)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UnmarshalSteps parses a tasks.steps column value.
func UnmarshalSteps(raw string) ([]Step, error) {
	steps := []Step{}
	if raw == "" {
		return steps, nil
	}
	if err := json.Unmarshal([]byte(raw), &steps); err != nil {
		return nil, err
	}
	return steps, nil
}
