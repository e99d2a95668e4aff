package main

import (
	"database/sql"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/memsql/memsql-loader/internal/jobstore"
	"github.com/memsql/memsql-loader/internal/queue"
)

func newTasksCmd() *cobra.Command {
	var stateFilter string
	cmd := &cobra.Command{
		Use:   "tasks <job-id-prefix>",
		Short: "List a job's tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(db *sql.DB) error {
				jobs := jobstore.New(db)
				job, err := jobs.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				q := queue.New(db)
				tasks, err := q.AllForJob(cmd.Context(), job.ID)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmdOut, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tFILE_ID\tSTATE\tRESULT")
				now := nowFunc()
				for _, t := range tasks {
					state := t.State(now, queue.LeaseTTL)
					if stateFilter != "" && string(state) != stateFilter {
						continue
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", t.ID, t.FileID, state, t.Result)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&stateFilter, "state", "", "filter by derived state (QUEUED, RUNNING, SUCCESS, ERROR, CANCELLED)")
	return cmd
}
