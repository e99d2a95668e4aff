package main

import (
	"context"
	"database/sql"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/memsql/memsql-loader/internal/jobstore"
	"github.com/memsql/memsql-loader/internal/queue"
	"github.com/memsql/memsql-loader/internal/types"
)

// No third-party table-rendering library appears anywhere in the reference
// pack, so CLI tabular output uses text/tabwriter, as DESIGN.md notes.

func newJobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "job <job-id-prefix>",
		Short: "Show a job's details and derived state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(db *sql.DB) error {
				return printJob(cmd.Context(), db, args[0])
			})
		},
	}
}

func printJob(ctx context.Context, db *sql.DB, prefix string) error {
	jobs := jobstore.New(db)
	job, err := jobs.Get(ctx, prefix)
	if err != nil {
		return err
	}

	q := queue.New(db)
	tasks, err := q.AllForJob(ctx, job.ID)
	if err != nil {
		return err
	}
	counts := taskCounts(tasks)
	state := types.DeriveJobState(counts)

	w := tabwriter.NewWriter(cmdOut, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "id\t%s\n", job.ID)
	fmt.Fprintf(w, "created\t%s\n", job.Created.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "target\t%s.%s\n", job.Spec.Target.Database, job.Spec.Target.Table)
	fmt.Fprintf(w, "state\t%s\n", state)
	fmt.Fprintf(w, "tasks\t%d total, %d queued, %d finished, %d cancelled\n", counts.Total, counts.Queued, counts.Finished, counts.Cancelled)
	return w.Flush()
}

func taskCounts(tasks []*types.Task) types.TaskCounts {
	var c types.TaskCounts
	c.Total = len(tasks)
	now := nowFunc()
	for _, t := range tasks {
		switch t.State(now, queue.LeaseTTL) {
		case types.TaskQueued:
			c.Queued++
		case types.TaskCancelled:
			c.Cancelled++
			c.Finished++
		default:
			if t.Finished != nil {
				c.Finished++
			}
		}
	}
	return c
}
