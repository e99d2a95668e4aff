// The hidden __worker subcommand is what workerpool.Pool actually execs
// for each worker process (see server_cmd.go's Spawner). It is not meant
// to be invoked directly by a user, mirroring worker.py's role as the
// multiprocessing.Process target rather than a CLI entry point.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/memsql/memsql-loader/internal/daemon"
	"github.com/memsql/memsql-loader/internal/jobstore"
	"github.com/memsql/memsql-loader/internal/queue"
	"github.com/memsql/memsql-loader/internal/source"
	"github.com/memsql/memsql-loader/internal/source/file"
	"github.com/memsql/memsql-loader/internal/source/hdfs"
	"github.com/memsql/memsql-loader/internal/source/s3"
	"github.com/memsql/memsql-loader/internal/store"
	"github.com/memsql/memsql-loader/internal/targetdb"
	"github.com/memsql/memsql-loader/internal/targetdb/mysql"
	"github.com/memsql/memsql-loader/internal/types"
	"github.com/memsql/memsql-loader/internal/worker"
)

// statusFD is the file descriptor a worker process inherits its status pipe
// write end on: the server's Spawner (server_cmd.go) passes the pipe that
// workerpool.Pool.Run hands it as the sole entry of Cmd.ExtraFiles, which
// os/exec always places starting at fd 3 (after
// stdin/stdout/stderr).
const statusFD = 3

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "__worker",
		Short:  "Internal: run as a worker process within a load server",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context())
		},
	}
}

func runWorker(parentCtx context.Context) error {
	dir := os.Getenv("MEMSQL_LOADER_DATA_DIRECTORY")
	if dir == "" {
		var err error
		dir, err = resolveDataDir()
		if err != nil {
			return err
		}
	}

	logger, err := daemon.NewLogger(daemon.LoggerConfig{Dir: dir}, false)
	if err != nil {
		return err
	}
	logf := func(format string, args ...interface{}) { logger.Info(fmt.Sprintf(format, args...)) }

	ctx, stop := daemon.WithShutdownSignal(parentCtx)
	defer stop()

	st, err := openStoreAt(ctx, dir)
	if err != nil {
		return err
	}
	defer st.Close()

	deleteLocks, err := worker.NewDeleteLocks(dir)
	if err != nil {
		return err
	}

	registry := source.NewRegistry(
		file.Driver{},
		s3.Driver{Client: http.DefaultClient},
		hdfs.Driver{Client: http.DefaultClient},
	)

	q := queue.New(st.WriteDB())
	jobs := jobstore.New(st.WriteDB())
	deps := &worker.Deps{
		Queue:       q,
		Jobs:        jobs,
		Sources:     registry,
		OpenTarget:  func(conn types.ConnectionSpec) (targetdb.Target, error) { return mysql.Open(conn) },
		DeleteLocks: deleteLocks,
		Logf:        logf,
	}

	status := os.NewFile(statusFD, "worker-status")
	logf("worker ready (pid %d)", os.Getpid())

	for {
		if ctx.Err() != nil {
			return nil
		}

		lease, err := q.Claim(ctx, "")
		if err != nil {
			logf("claim failed: %v", err)
			sleepJitter(ctx)
			continue
		}
		if lease == nil {
			writeStatus(status, false)
			sleepJitter(ctx)
			continue
		}

		writeStatus(status, true)
		taskCtx, cancel := context.WithTimeout(ctx, worker.HungDownloaderTimeout)
		if err := deps.ProcessTask(taskCtx, lease); err != nil {
			logf("task %d failed: %v", lease.Task().ID, err)
		}
		cancel()
		writeStatus(status, false)
	}
}

// openStoreAt mirrors openStore but against an explicit directory, since a
// worker process learns its data dir from an environment variable rather
// than the --data-dir flag (it has no flags of its own; see workerpool's
// WorkerEnvDataDir).
func openStoreAt(ctx context.Context, dir string) (*store.Store, error) {
	return store.Open(ctx, dir+"/loader.db", queue.Schema+jobstore.Schema)
}

func writeStatus(f *os.File, busy bool) {
	if f == nil {
		return
	}
	b := byte('I')
	if busy {
		b = 'B'
	}
	_, _ = f.Write([]byte{b})
}

// sleepJitter mirrors worker.py's time.sleep(random.random() * 0.5) idle
// poll backoff, woken early by shutdown.
func sleepJitter(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(rand.Float64() * float64(500*time.Millisecond))):
	}
}
