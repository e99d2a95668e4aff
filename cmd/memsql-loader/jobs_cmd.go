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

func newJobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List all jobs",
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
				fmt.Fprintln(w, "ID\tCREATED\tTARGET\tSTATE")
				for _, j := range all {
					tasks, err := q.AllForJob(cmd.Context(), j.ID)
					if err != nil {
						return err
					}
					state := types.DeriveJobState(taskCounts(tasks))
					fmt.Fprintf(w, "%s\t%s\t%s.%s\t%s\n",
						j.ID[:8], j.Created.Format("2006-01-02 15:04:05"),
						j.Spec.Target.Database, j.Spec.Target.Table, state)
				}
				return w.Flush()
			})
		},
	}
}
