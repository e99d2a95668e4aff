package main

import (
	"database/sql"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/memsql/memsql-loader/internal/queue"
)

func newTaskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "task <task-id>",
		Short: "Show a single task's details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid task id %q: %w", args[0], err)
			}
			return withDB(cmd.Context(), func(db *sql.DB) error {
				q := queue.New(db)
				task, err := q.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmdOut, 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "id\t%d\n", task.ID)
				fmt.Fprintf(w, "job\t%s\n", task.JobID)
				fmt.Fprintf(w, "file_id\t%s\n", task.FileID)
				fmt.Fprintf(w, "state\t%s\n", task.State(nowFunc(), queue.LeaseTTL))
				fmt.Fprintf(w, "result\t%s\n", task.Result)
				if task.BytesDownloaded != nil {
					fmt.Fprintf(w, "bytes_downloaded\t%d\n", *task.BytesDownloaded)
				}
				if task.DownloadRate != nil {
					fmt.Fprintf(w, "download_rate\t%d/s\n", *task.DownloadRate)
				}
				for _, s := range task.Steps {
					status := "running"
					if !s.Running() {
						status = "done"
					}
					fmt.Fprintf(w, "step[%s]\t%s\n", s.Name, status)
				}
				return w.Flush()
			})
		},
	}
}
