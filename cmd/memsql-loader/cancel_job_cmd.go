package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memsql/memsql-loader/internal/jobstore"
	"github.com/memsql/memsql-loader/internal/queue"
)

func newCancelJobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel-job <job-id-prefix>",
		Short: "Cancel every unfinished task in a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			var n int64
			err = st.Transaction(ctx, func(tx *sql.Tx) error {
				jobs := jobstore.New(tx)
				job, err := jobs.Get(ctx, args[0])
				if err != nil {
					return err
				}
				q := queue.New(tx)
				n, err = q.BulkFinish(ctx, job.ID, "cancelled")
				return err
			})
			if err != nil {
				return err
			}
			fmt.Printf("Cancelled %d task(s)\n", n)
			return nil
		},
	}
}
