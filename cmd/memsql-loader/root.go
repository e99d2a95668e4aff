// Grounded on tysonthomas9-beads/cmd/bd's cobra root command wiring
// (flags.go) and original_source/memsql_loader/cli/__init__.py's top-level
// argument parser.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/memsql/memsql-loader/internal/config"
	"github.com/memsql/memsql-loader/internal/jobstore"
	"github.com/memsql/memsql-loader/internal/queue"
	"github.com/memsql/memsql-loader/internal/store"
)

var dataDirFlag string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "memsql-loader",
		Short:         "Load files into a MemSQL-protocol database in parallel",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "server data directory (default $MEMSQL_LOADER_DATA_DIRECTORY or ~/.memsql-loader)")

	cmd.AddCommand(
		newLoadCmd(),
		newJobCmd(),
		newJobsCmd(),
		newTaskCmd(),
		newTasksCmd(),
		newCancelJobCmd(),
		newServerCmd(),
		newPsCmd(),
		newLogCmd(),
		newClearDBCmd(),
		newWorkerCmd(), // hidden __worker subcommand
	)
	return cmd
}

func resolveDataDir() (string, error) {
	if dataDirFlag != "" {
		return dataDirFlag, nil
	}
	return config.DataDir()
}

// openStore opens the embedded store at the resolved data directory's
// loader.db, with the queue and jobstore schemas installed.
func openStore(ctx context.Context) (*store.Store, error) {
	dir, err := resolveDataDir()
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, dir+"/loader.db", queue.Schema+jobstore.Schema)
}

func defaultLogger() *slog.Logger {
	return slog.Default()
}

func withDB(ctx context.Context, fn func(db *sql.DB) error) error {
	st, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	return st.Cursor(ctx, fn)
}
