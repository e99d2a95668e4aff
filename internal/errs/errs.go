// Package errs classifies the error taxonomy that drives worker
// reconciliation: transient I/O, permanent worker errors, lost leases, and
// fatal conditions. See original_source/memsql_loader/execution/errors.py
// for the exception hierarchy this replaces.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// ErrLeaseLost mirrors TaskDoesNotExist from the Python queue: the caller's
// lease has been revoked (expired, bulk-cancelled, or the row was deleted).
var ErrLeaseLost = errors.New("task lease is no longer valid")

// ErrAlreadyFinished mirrors AlreadyFinished: Finish was called on a lease
// whose task is already finished.
var ErrAlreadyFinished = errors.New("task is already finished")

// ErrStepRunning mirrors StepRunning: finish() was called while a step was
// still open.
var ErrStepRunning = errors.New("a step is still running")

// ErrStepAlreadyStarted / ErrStepAlreadyFinished / ErrStepNotStarted mirror
// the matching exceptions in task_handler.py.
var (
	ErrStepAlreadyStarted  = errors.New("step already started")
	ErrStepAlreadyFinished = errors.New("step already finished")
	ErrStepNotStarted      = errors.New("step was not started")
)

// Requeue mirrors RequeueTask: a transient condition the worker should
// requeue without marking the task as errored.
type Requeue struct {
	Reason string
}

func (r *Requeue) Error() string { return fmt.Sprintf("requeue: %s", r.Reason) }

// NewRequeue builds a Requeue error.
func NewRequeue(reason string) error { return &Requeue{Reason: reason} }

// IsRequeue reports whether err (or something it wraps) is a Requeue.
func IsRequeue(err error) bool {
	var r *Requeue
	return errors.As(err, &r)
}

// Connection mirrors ConnectionException: a transient network/DB-connection
// failure. Worker treats it the same as Requeue but it carries a cause.
type Connection struct {
	Cause error
	Time  time.Time
}

func (c *Connection) Error() string { return fmt.Sprintf("connection error: %v", c.Cause) }
func (c *Connection) Unwrap() error { return c.Cause }

// NewConnection wraps cause as a Connection error, stamping the time it
// occurred (used to order simultaneous downloader/loader failures).
func NewConnection(cause error) error {
	return &Connection{Cause: cause, Time: time.Now()}
}

// IsConnection reports whether err is a Connection error.
func IsConnection(err error) bool {
	var c *Connection
	return errors.As(err, &c)
}

// Worker mirrors WorkerException: a permanent failure that should finish
// the task with result=error. Carries a timestamp so the worker can decide
// which of two simultaneous WorkerExceptions happened first.
type Worker struct {
	Msg  string
	Time time.Time
}

func (w *Worker) Error() string { return w.Msg }

// NewWorker builds a Worker error with the given message, stamped now.
func NewWorker(format string, args ...interface{}) error {
	return &Worker{Msg: fmt.Sprintf(format, args...), Time: time.Now()}
}

// IsWorker reports whether err is a Worker error and returns it.
func IsWorker(err error) (*Worker, bool) {
	var w *Worker
	if errors.As(err, &w) {
		return w, true
	}
	return nil, false
}

// Time returns the timestamp a Worker or Connection error was stamped with
// at creation, or the zero time otherwise (including for Requeue).
func Time(err error) time.Time {
	var w *Worker
	if errors.As(err, &w) {
		return w.Time
	}
	var c *Connection
	if errors.As(err, &c) {
		return c.Time
	}
	return time.Time{}
}
