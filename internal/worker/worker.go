// Package worker runs one claimed task end to end: download, delete stale
// rows from an earlier load of the same file if configured, bulk-load, and
// reconcile the download/load goroutines' outcomes into a single
// finish/requeue decision.
//
// Grounded on original_source/memsql_loader/execution/worker.py
// (Worker.run/_process_task/_should_delete/_delete_existing_rows/
// _update_task). worker.py's two Python threads (Downloader, Loader)
// become two goroutines reporting onto a shared result channel; its
// exception-type dispatch (RequeueTask/ConnectionException/
// WorkerException/TaskDoesNotExist) becomes errs-package classification
// via errors.As.
package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/memsql/memsql-loader/internal/downloader"
	"github.com/memsql/memsql-loader/internal/errs"
	"github.com/memsql/memsql-loader/internal/jobstore"
	"github.com/memsql/memsql-loader/internal/loader"
	"github.com/memsql/memsql-loader/internal/pipe"
	"github.com/memsql/memsql-loader/internal/queue"
	"github.com/memsql/memsql-loader/internal/source"
	"github.com/memsql/memsql-loader/internal/targetdb"
	"github.com/memsql/memsql-loader/internal/types"
)

// HungDownloaderTimeout mirrors HUNG_DOWNLOADER_TIMEOUT: a download with no
// progress for this long (independent of the shorter per-chunk stall
// detection inside internal/downloader) causes the worker to give up and
// exit its task loop rather than wait forever.
const HungDownloaderTimeout = time.Hour

// ProgressInterval mirrors the 0.5s sleep in Worker._process_task's
// monitoring loop.
const ProgressInterval = 500 * time.Millisecond

// Deps bundles a worker's collaborators.
type Deps struct {
	Queue       *queue.Queue
	Jobs        *jobstore.Store
	Sources     *source.Registry
	OpenTarget  func(types.ConnectionSpec) (targetdb.Target, error)
	DeleteLocks *DeleteLocks
	Logf        func(format string, args ...interface{})
}

func (d *Deps) logf(format string, args ...interface{}) {
	if d.Logf != nil {
		d.Logf(format, args...)
	}
}

// stageResult is what each of the download/load goroutines reports.
type stageResult struct {
	stage string // "download" or "load"
	err   error
}

// ProcessTask claims ownership of lease (already claimed by the caller via
// Queue.Claim) and runs it to completion, calling lease.Finish or
// lease.Requeue once before returning, or neither when the lease turns out
// to be lost (errs.ErrLeaseLost). ctx's cancellation triggers
// the same "exiting" early-abort path as worker.py's self.exiting().
func (d *Deps) ProcessTask(ctx context.Context, lease *queue.Lease) error {
	task := lease.Task()

	job, err := d.Jobs.Get(ctx, task.JobID)
	if err != nil {
		return lease.Finish(ctx, "error")
	}

	if oldConnID, ok := task.Data.GetInt64("conn_id"); ok {
		if target, terr := d.OpenTarget(job.Spec.Connection); terr == nil {
			_ = target.Kill(ctx, oldConnID)
			target.Close()
		}
	}

	if job.Spec.HasFileID() {
		if err := d.maybeDeleteExisting(ctx, lease, job); err != nil {
			return d.reconcile(ctx, lease, err)
		}
	}

	target, err := d.OpenTarget(job.Spec.Connection)
	if err != nil {
		return d.reconcile(ctx, lease, errs.NewConnection(err))
	}
	defer target.Close()

	tx, err := target.BeginTx(ctx)
	if err != nil {
		return d.reconcile(ctx, lease, errs.NewConnection(err))
	}

	obj, err := d.Sources.Resolve(ctx, job.Spec.Source, task.Data)
	if err != nil {
		tx.Rollback()
		return d.reconcile(ctx, lease, errs.NewWorker("%v", err))
	}

	gzip := job.Spec.Options.Script == "" && strings.HasSuffix(obj.Name, ".gz")
	p, err := pipe.New(gzip)
	if err != nil {
		tx.Rollback()
		return d.reconcile(ctx, lease, errs.NewWorker("create fifo: %v", err))
	}
	defer p.Cleanup()

	err = d.runTransfer(ctx, lease, job, task, target, tx, obj, p)
	if err != nil {
		tx.Rollback()
		return d.reconcile(ctx, lease, err)
	}

	if err := lease.Refresh(ctx); err != nil {
		tx.Rollback()
		return d.reconcile(ctx, lease, err)
	}
	if err := tx.Commit(); err != nil {
		return d.reconcile(ctx, lease, errs.NewConnection(err))
	}
	d.logf("task %d: finished with success", task.ID)
	return lease.Finish(ctx, "success")
}

func (d *Deps) runTransfer(ctx context.Context, lease *queue.Lease, job *types.Job, task *types.Task, target targetdb.Target, tx targetdb.Tx, obj source.Object, p *pipe.Pipe) error {
	results := make(chan stageResult, 2)
	progressCtx, stopProgress := context.WithCancel(ctx)
	defer stopProgress()

	go func() {
		err := downloader.Download(ctx, obj, p, job.Spec.Options.Script, downloader.Hooks{
			StartStep: func(name string) error { return lease.StartStep(ctx, name) },
			StopStep:  func(name string) error { return lease.StopStep(ctx, name) },
			OnStats: func(st downloader.Stats) {
				task.BytesDownloaded = &st.BytesDownloaded
				task.DownloadRate = &st.DownloadRate
				if task.Data == nil {
					task.Data = types.TaskData{}
				}
				task.Data["time_left"] = st.TimeLeft.Seconds()
			},
		})
		results <- stageResult{stage: "download", err: err}
	}()

	go func() {
		err := loader.Run(ctx, target, tx, p, job.Spec.Options, job.Spec.Target, task.FileID, loader.Hooks{
			OnConnID: func(connID int64) {
				if task.Data == nil {
					task.Data = types.TaskData{}
				}
				task.Data["conn_id"] = connID
				_ = lease.Save(ctx)
			},
			OnRows: func(rowCount int64) {
				if task.Data == nil {
					task.Data = types.TaskData{}
				}
				task.Data["row_count"] = rowCount
				_ = lease.Save(ctx)
			},
		})
		results <- stageResult{stage: "load", err: err}
	}()

	go d.progressLoop(progressCtx, lease)

	var downloadErr, loadErr error
	var gotDownload, gotLoad bool
	for !gotDownload || !gotLoad {
		r := <-results
		switch r.stage {
		case "download":
			downloadErr = r.err
			gotDownload = true
		case "load":
			loadErr = r.err
			gotLoad = true
		}
		// Once one side has failed, give the other a moment to also report,
		// matching worker.py's "sleep 3 seconds to see both errors" behavior,
		// but don't wait past both already reporting.
		if (gotDownload && downloadErr != nil && !gotLoad) || (gotLoad && loadErr != nil && !gotDownload) {
			select {
			case r := <-results:
				switch r.stage {
				case "download":
					downloadErr, gotDownload = r.err, true
				case "load":
					loadErr, gotLoad = r.err, true
				}
			case <-time.After(3 * time.Second):
			}
		}
	}

	return resolveStageErrors(downloadErr, loadErr)
}

// resolveStageErrors decides which of two concurrently-reported errors
// should drive the task's outcome, mirroring worker.py's priority chain:
// any RequeueTask wins outright; otherwise the earlier-timestamped
// WorkerException wins; otherwise whichever error exists wins.
func resolveStageErrors(downloadErr, loadErr error) error {
	if downloadErr == nil && loadErr == nil {
		return nil
	}
	if errs.IsRequeue(downloadErr) || errs.IsRequeue(loadErr) {
		return errs.NewRequeue("download or load requested a requeue")
	}

	dw, dIsWorker := errs.IsWorker(downloadErr)
	lw, lIsWorker := errs.IsWorker(loadErr)
	switch {
	case dIsWorker && lIsWorker:
		if dw.Time.Before(lw.Time) {
			return downloadErr
		}
		return loadErr
	case downloadErr != nil && loadErr != nil:
		if !dIsWorker {
			return downloadErr
		}
		return loadErr
	case downloadErr != nil:
		return downloadErr
	default:
		return loadErr
	}
}

func (d *Deps) progressLoop(ctx context.Context, lease *queue.Lease) {
	ticker := time.NewTicker(ProgressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = lease.Save(ctx)
			_ = lease.Ping(ctx)
		}
	}
}

// maybeDeleteExisting acquires the cross-process delete lock and removes
// rows left by an earlier load of the same file_id, mirroring
// _should_delete/_delete_existing_rows.
func (d *Deps) maybeDeleteExisting(ctx context.Context, lease *queue.Lease, job *types.Job) error {
	task := lease.Task()
	should, err := d.shouldDelete(ctx, job, task)
	if err != nil {
		return err
	}
	if !should {
		return nil
	}

	key, err := d.DeleteLocks.Lock(job.Spec.Connection, job.Spec.Target)
	if err != nil {
		return errs.NewWorker("acquire delete lock: %v", err)
	}
	defer d.DeleteLocks.Unlock(key)

	target, err := d.OpenTarget(job.Spec.Connection)
	if err != nil {
		return errs.NewConnection(err)
	}
	defer target.Close()

	tx, err := target.BeginTx(ctx)
	if err != nil {
		return errs.NewConnection(err)
	}

	deleted, err := deleteExistingRows(ctx, tx, job.Spec.Target, job.Spec.Options.FileIDColumn, task.FileID)
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errs.NewConnection(err)
	}
	d.logf("task %d: deleted %d rows during cleanup", task.ID, deleted)
	return nil
}

func (d *Deps) shouldDelete(ctx context.Context, job *types.Job, task *types.Task) (bool, error) {
	competing, err := d.Jobs.QueryTarget(ctx, job.Spec.Connection.Host, job.Spec.Connection.Port, job.Spec.Target.Database, job.Spec.Target.Table)
	if err != nil {
		return false, errs.NewWorker("query competing jobs: %v", err)
	}
	for _, j := range competing {
		tasks, err := d.Queue.GetTasksInState(ctx, j.ID, types.TaskSuccess, queue.LeaseTTL)
		if err != nil {
			return false, errs.NewWorker("list successful tasks: %v", err)
		}
		for _, t := range tasks {
			if t.FileID == task.FileID {
				return true, nil
			}
		}
	}
	return false, nil
}

// deleteExistingRows issues the bare DELETE statement scoped by file_id,
// mirroring Worker._delete_existing_rows's SQL.
func deleteExistingRows(ctx context.Context, tx targetdb.Tx, target types.TargetSpec, fileIDColumn string, fileID string) (int64, error) {
	stmt := fmt.Sprintf("DELETE FROM `%s`.`%s` WHERE `%s` = ?", target.Database, target.Table, fileIDColumn)
	return tx.Exec(ctx, stmt, fileID)
}

func (d *Deps) reconcile(ctx context.Context, lease *queue.Lease, err error) error {
	if err == nil {
		return lease.Finish(ctx, "success")
	}
	if err == errs.ErrLeaseLost {
		d.logf("task %d: lease lost, not retrying", lease.Task().ID)
		return nil
	}
	if errs.IsRequeue(err) || errs.IsConnection(err) {
		d.logf("task %d: %v, requeueing", lease.Task().ID, err)
		return lease.Requeue(ctx, err.Error())
	}
	if _, ok := errs.IsWorker(err); ok {
		d.logf("task %d: finished with error: %v", lease.Task().ID, err)
		return lease.Finish(ctx, "error")
	}
	d.logf("task %d: unclassified error, requeueing: %v", lease.Task().ID, err)
	return lease.Requeue(ctx, err.Error())
}
