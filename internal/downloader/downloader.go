// Package downloader streams one source object into the write end of a
// pipe.Pipe, optionally through a user-supplied shell filter script,
// tracking progress and detecting stalls.
//
// Grounded on original_source/memsql_loader/execution/downloader.py
// (Downloader.run/_progress/_write_to_fifo). The pycurl progress callback
// and manual select()-based non-blocking write loop are replaced by Go's
// runtime-integrated non-blocking I/O: pipe.Pipe.Open sets the write fd
// non-blocking, but os.File.Write on a FIFO parks the calling goroutine in
// the runtime poller rather than spinning or blocking the OS thread, so a
// plain io.Copy through a progress-tracking io.Writer gets the same
// "don't wedge the process" property the original achieved with
// select()/os.write().
package downloader

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/memsql/memsql-loader/internal/errs"
	"github.com/memsql/memsql-loader/internal/pipe"
	"github.com/memsql/memsql-loader/internal/source"
)

// StallTimeout mirrors DOWNLOAD_TIMEOUT: a download with no measurable
// progress for this long is aborted and requeued.
const StallTimeout = 30 * time.Second

// ScriptExitTimeout mirrors SCRIPT_EXIT_TIMEOUT: how long to wait for a
// filter script to exit after its stdin is closed before killing it.
const ScriptExitTimeout = 30 * time.Second

// Hooks lets the caller bracket the download with step tracking without
// this package depending on internal/queue.
type Hooks struct {
	StartStep func(name string) error
	StopStep  func(name string) error
	OnStats   func(Stats)
}

// Download streams obj into p, optionally piped through script (a
// "/bin/sh -c" filter command), reporting progress via hooks.OnStats
// and bracketing the transfer with a "download" step. Returns
// errs.NewConnection on a detected stall or an I/O failure and
// errs.NewRequeue when ctx is cancelled, matching the taxonomy worker
// expects.
func Download(ctx context.Context, obj source.Object, p *pipe.Pipe, script string, hooks Hooks) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	target, err := p.Open(false)
	if err != nil {
		return errs.NewConnection(fmt.Errorf("open pipe for writing: %w", err))
	}
	defer target.Close()

	src, err := obj.Open(ctx)
	if err != nil {
		p.AbortReader()
		return errs.NewWorker("failed to open %s: %v", obj.Name, err)
	}
	defer src.Close()

	metrics := NewMetrics(obj.Size, time.Now())
	stalled := make(chan struct{})
	stallCtx, stopStallWatch := context.WithCancel(ctx)
	defer stopStallWatch()
	go watchStall(stallCtx, metrics, cancel, stalled)

	if hooks.StartStep != nil {
		if err := hooks.StartStep("download"); err != nil {
			return err
		}
	}
	transferErr := transfer(ctx, src, target, script, metrics, hooks.OnStats)
	if hooks.StopStep != nil {
		_ = hooks.StopStep("download")
	}

	select {
	case <-stalled:
		return errs.NewConnection(fmt.Errorf("download stalled: no progress for %s", StallTimeout))
	default:
	}

	if transferErr != nil {
		if ctx.Err() != nil {
			return errs.NewRequeue("download cancelled")
		}
		return errs.NewConnection(transferErr)
	}
	return nil
}

func watchStall(ctx context.Context, metrics *Metrics, cancel context.CancelFunc, stalled chan<- struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.Sub(metrics.LastChange()) > StallTimeout {
				close(stalled)
				cancel()
				return
			}
		}
	}
}

// progressWriter wraps an io.Writer, feeding every write's cumulative byte
// count into metrics and hooks.OnStats, mirroring _progress/accumulate_bytes.
type progressWriter struct {
	w       io.Writer
	metrics *Metrics
	onStats func(Stats)
	written int64
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	pw.written += int64(n)
	pw.metrics.AccumulateBytes(pw.written, time.Now())
	if pw.onStats != nil {
		pw.onStats(pw.metrics.GetStats())
	}
	return n, err
}

// transfer copies src into target, either directly or through script,
// mirroring the direct-vs-script branches of Downloader.run().
func transfer(ctx context.Context, src io.Reader, target io.Writer, script string, metrics *Metrics, onStats func(Stats)) error {
	pw := &progressWriter{w: target, metrics: metrics, onStats: onStats}

	if script == "" {
		_, err := io.Copy(pw, src)
		return err
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", script)
	cmd.Stdout = target
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create script stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start script %q: %w", script, err)
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	// Give the script a moment to fail fast (e.g. command not found) before
	// committing to the transfer, matching the original's one-second
	// premature-exit check.
	select {
	case err := <-waitDone:
		exitCode := -1
		if cmd.ProcessState != nil {
			exitCode = cmd.ProcessState.ExitCode()
		}
		return fmt.Errorf("script %q exited prematurely with return code %d (%v)", script, exitCode, err)
	case <-time.After(time.Second):
	}

	scriptPW := &progressWriter{w: stdin, metrics: metrics, onStats: onStats}
	_, copyErr := io.Copy(scriptPW, src)
	stdin.Close()

	waitErr := waitForExit(waitDone, ScriptExitTimeout, cmd)
	if copyErr != nil {
		return copyErr
	}
	return waitErr
}

func waitForExit(waitDone <-chan error, timeout time.Duration, cmd *exec.Cmd) error {
	select {
	case err := <-waitDone:
		if err != nil {
			return fmt.Errorf("script failed: %w", err)
		}
		return nil
	case <-time.After(timeout):
		_ = cmd.Process.Kill()
		return fmt.Errorf("script failed to exit after %s", timeout)
	}
}
