package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

func newLogCmd() *cobra.Command {
	var lines int
	var follow bool
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print the tail of the server log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveDataDir()
			if err != nil {
				return err
			}
			path := filepath.Join(dir, "server.log")
			if err := tailFile(path, lines); err != nil {
				return err
			}
			if follow {
				return followFile(cmd.Context(), path)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 100, "number of trailing lines to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new lines as they are appended")
	return cmd
}

// followFile streams lines appended to path after the initial tail, in the
// style of beads' LogStreamer (examples/beads-web-ui/log_streamer.go):
// watch the containing directory rather than the file itself, so log
// rotation (lumberjack replacing the file under our feet) is picked up
// instead of leaving the watch dangling on an unlinked inode.
func followFile(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch log directory: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	reader := bufio.NewReader(f)

	drain := func() {
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				fmt.Fprint(cmdOut, line)
			}
			if err != nil {
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Has(fsnotify.Write) {
				drain()
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				// Log rotated out from under us; reopen the fresh file.
				f.Close()
				if f, err = os.Open(path); err != nil {
					return fmt.Errorf("reopen rotated log file: %w", err)
				}
				reader = bufio.NewReader(f)
				drain()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch log file: %w", err)
		}
	}
}

func tailFile(path string, n int) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	var buf []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		buf = append(buf, scanner.Text())
		if len(buf) > n {
			buf = buf[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	for _, line := range buf {
		fmt.Fprintln(cmdOut, line)
	}
	return nil
}
