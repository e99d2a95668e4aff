package main

import (
	"database/sql"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/memsql/memsql-loader/internal/jobstore"
	"github.com/memsql/memsql-loader/internal/queue"
	"github.com/memsql/memsql-loader/internal/types"
)

func newPsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ps",
		Short: "List currently running tasks across all jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(db *sql.DB) error {
				jobs := jobstore.New(db)
				all, err := jobs.All(cmd.Context())
				if err != nil {
					return err
				}
				q := queue.New(db)

				w := tabwriter.NewWriter(cmdOut, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "JOB\tTASK\tFILE_ID\tSTARTED")
				for _, j := range all {
					running, err := q.GetTasksInState(cmd.Context(), j.ID, types.TaskRunning, queue.LeaseTTL)
					if err != nil {
						return err
					}
					for _, t := range running {
						started := ""
						if t.Started != nil {
							started = t.Started.Format("2006-01-02 15:04:05")
						}
						fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", j.ID[:8], t.ID, t.FileID, started)
					}
				}
				return w.Flush()
			})
		},
	}
}
