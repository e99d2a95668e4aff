package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/memsql/memsql-loader/internal/daemon"
)

func newClearDBCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "clear-db",
		Short: "Delete the local job/task database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveDataDir()
			if err != nil {
				return err
			}
			if info, err := daemon.ReadLockInfo(dir); err == nil && info.Running() {
				return fmt.Errorf("server is running (pid %d); stop it first with `server stop`", info.PID)
			}
			if !force {
				return fmt.Errorf("refusing to delete %s without --force", dir)
			}
			for _, suffix := range []string{"", "-wal", "-shm"} {
				os.Remove(filepath.Join(dir, "loader.db"+suffix))
			}
			fmt.Println("Database cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "actually delete the database")
	return cmd
}
