// Grounded on original_source/memsql_loader/util/daemonize.py (the
// double-fork daemonize pattern, here expressed as a self-reexec with
// Setsid) and tysonthomas9-beads/cmd/bd/daemon_lock.go /
// daemon_guard.go (the lock-file precondition checks gating server
// start/stop).
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/memsql/memsql-loader/internal/daemon"
	"github.com/memsql/memsql-loader/internal/workerpool"
)

// Version is stamped into the lock info file; set at build time in a real
// release, left as a constant here since this module has no release
// pipeline of its own.
const Version = "dev"

func newServerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "server", Short: "Manage the load server"}
	cmd.AddCommand(newServerStartCmd(), newServerStopCmd(), newServerStatusCmd())
	return cmd
}

func newServerStartCmd() *cobra.Command {
	var foreground bool
	var poolSize int
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the load server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveDataDir()
			if err != nil {
				return err
			}
			if foreground {
				return runServerForeground(cmd.Context(), dir, poolSize)
			}
			return spawnDetachedServer(dir, poolSize)
		},
	}
	cmd.Flags().BoolVar(&foreground, "foreground", false, "run the server in the foreground instead of daemonizing")
	cmd.Flags().IntVar(&poolSize, "workers", 0, "number of worker processes (default: 0.8 * NumCPU)")
	return cmd
}

func spawnDetachedServer(dir string, poolSize int) error {
	if info, err := daemon.ReadLockInfo(dir); err == nil && info.Running() {
		return fmt.Errorf("server is already running (pid %d)", info.PID)
	}

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve own executable: %w", err)
	}
	args := []string{"server", "start", "--foreground", "--data-dir", dir}
	if poolSize > 0 {
		args = append(args, "--workers", fmt.Sprint(poolSize))
	}
	cmd := exec.Command(self, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	fmt.Printf("Server starting (pid %d)\n", cmd.Process.Pid)
	return cmd.Process.Release()
}

func runServerForeground(parentCtx context.Context, dir string, poolSize int) error {
	lock, existing, err := daemon.TryLock(dir, Version)
	if err != nil {
		return err
	}
	if lock == nil {
		return fmt.Errorf("server is already running (pid %d)", existing.PID)
	}
	defer lock.Unlock()

	logger, err := daemon.NewLogger(daemon.LoggerConfig{Dir: dir}, false)
	if err != nil {
		return err
	}

	ctx, stop := daemon.WithShutdownSignal(parentCtx)
	defer stop()

	if poolSize <= 0 {
		poolSize = workerpool.DefaultSize()
	}

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve own executable: %w", err)
	}

	spawn := func(spawnCtx context.Context, statusWrite *os.File) (*exec.Cmd, error) {
		// Deliberately exec.Command, not CommandContext: workerpool.Pool.stopAll
		// already does a graceful SIGINT-then-wait-then-Kill sequence on ctx
		// cancellation, and CommandContext's automatic Kill-on-cancel would race
		// with that.
		cmd := exec.Command(self, "__worker")
		cmd.Env = append(os.Environ(), workerpool.WorkerEnvDataDir+"="+dir)
		cmd.ExtraFiles = []*os.File{statusWrite}
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return cmd, nil
	}

	pool := workerpool.New(poolSize, spawn, func(format string, args ...interface{}) {
		logger.Info(fmt.Sprintf(format, args...))
	})

	logger.Info("server started", "pid", os.Getpid(), "workers", poolSize, "data_dir", dir)
	return pool.Run(ctx)
}

func newServerStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running load server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveDataDir()
			if err != nil {
				return err
			}
			info, err := daemon.ReadLockInfo(dir)
			if err != nil {
				return fmt.Errorf("server is not running")
			}
			if !info.Running() {
				return fmt.Errorf("server is not running")
			}
			proc, err := os.FindProcess(info.PID)
			if err != nil {
				return err
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("signal server: %w", err)
			}
			for i := 0; i < 20; i++ {
				time.Sleep(250 * time.Millisecond)
				if reread, err := daemon.ReadLockInfo(dir); err != nil || !reread.Running() {
					fmt.Println("Server stopped")
					return nil
				}
			}
			return fmt.Errorf("server did not stop within 5s")
		},
	}
}

func newServerStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the load server is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveDataDir()
			if err != nil {
				return err
			}
			info, err := daemon.ReadLockInfo(dir)
			if err != nil || !info.Running() {
				fmt.Println("Server is not running")
				return nil
			}
			fmt.Printf("Server is running (pid %d, started %s)\n", info.PID, info.StartedAt.Format(time.RFC3339))
			return nil
		},
	}
}
