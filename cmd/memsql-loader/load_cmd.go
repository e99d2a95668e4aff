// Grounded on original_source/memsql_loader/cli/load.py's RunLoad.configure
// (the flag surface) and execution/worker.py's task data shape (what
// key_name/bucket/scheme a task needs).
package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memsql/memsql-loader/internal/jobstore"
	"github.com/memsql/memsql-loader/internal/queue"
	fileSource "github.com/memsql/memsql-loader/internal/source/file"
	"github.com/memsql/memsql-loader/internal/types"
)

type loadFlags struct {
	host, user, password, database, table string
	port                                   int

	awsAccessKey, awsSecretKey string
	hdfsHost, hdfsUser         string
	webhdfsPort                int

	fieldsTerminated, fieldsEnclosed, fieldsEscaped string
	linesTerminated, linesStarting                  string
	ignoreLines                                     int

	dupIgnore, dupReplace bool
	columns               string
	fileIDColumn          string
	nonLocalLoad          bool
	script                string
}

func newLoadCmd() *cobra.Command {
	var f loadFlags
	cmd := &cobra.Command{
		Use:   "load [paths...]",
		Short: "Enqueue a load job for one or more files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd.Context(), args, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.host, "host", "h", "127.0.0.1", "hostname of the target database")
	fl.IntVarP(&f.port, "port", "P", 3306, "port of the target database")
	fl.StringVarP(&f.user, "user", "u", "root", "user of the target database")
	fl.StringVarP(&f.password, "password", "p", "", "password of the target database")
	fl.StringVarP(&f.database, "database", "D", "", "target database name")
	fl.StringVarP(&f.table, "table", "t", "", "target table name")

	fl.StringVar(&f.awsAccessKey, "aws-access-key", "", "AWS access key")
	fl.StringVar(&f.awsSecretKey, "aws-secret-key", "", "AWS secret key")
	fl.StringVar(&f.hdfsHost, "hdfs-host", "", "HDFS namenode hostname")
	fl.IntVar(&f.webhdfsPort, "webhdfs-port", 50070, "WebHDFS port")
	fl.StringVar(&f.hdfsUser, "hdfs-user", "", "username for HDFS requests")

	fl.StringVar(&f.fieldsTerminated, "fields-terminated", "", "field terminator")
	fl.StringVar(&f.fieldsEnclosed, "fields-enclosed", "", "field enclose character")
	fl.StringVar(&f.fieldsEscaped, "fields-escaped", "", "field escape character")
	fl.StringVar(&f.linesTerminated, "lines-terminated", "", "line terminator")
	fl.StringVar(&f.linesStarting, "lines-starting", "", "line prefix")
	fl.IntVar(&f.ignoreLines, "ignore-lines", 0, "number of lines to ignore")

	fl.BoolVar(&f.dupIgnore, "dup-ignore", false, "ignore rows that conflict with a unique key")
	fl.BoolVar(&f.dupReplace, "dup-replace", false, "replace rows that conflict with a unique key")
	fl.StringVar(&f.columns, "columns", "", "comma-separated list of columns to load into")
	fl.StringVar(&f.fileIDColumn, "file-id-column", "", "column used to tag rows with their source file, enabling reload-by-delete")
	fl.BoolVar(&f.nonLocalLoad, "non-local-load", false, "use LOAD DATA instead of LOAD DATA LOCAL")
	fl.StringVar(&f.script, "script", "", "shell command to filter each file through before loading")

	return cmd
}

func runLoad(ctx context.Context, paths []string, f loadFlags) error {
	spec := buildJobSpec(paths, f)
	if spec.Target.Database == "" || spec.Target.Table == "" {
		return fmt.Errorf("--database and --table are required")
	}

	var driver fileSource.Driver
	var names []string
	for _, p := range paths {
		objs, err := driver.List(ctx, spec.Source, p)
		if err != nil {
			return fmt.Errorf("list %q: %w", p, err)
		}
		for _, o := range objs {
			names = append(names, o.Name)
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("no files matched the given paths")
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	var jobID string
	err = st.Transaction(ctx, func(tx *sql.Tx) error {
		jobs := jobstore.New(tx)
		job, err := jobs.Create(ctx, spec)
		if err != nil {
			return err
		}
		jobID = job.ID

		q := queue.New(tx)
		for _, name := range names {
			data := types.TaskData{
				"scheme":   fileSource.Scheme,
				"key_name": name,
			}
			if _, err := q.Enqueue(ctx, job.ID, data, name); err != nil {
				return fmt.Errorf("enqueue task for %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("Enqueued job %s with %d task(s)\n", jobID, len(names))
	return nil
}

func buildJobSpec(paths []string, f loadFlags) types.JobSpec {
	spec := types.JobSpec{
		Source: types.SourceSpec{
			Paths:        paths,
			AWSAccessKey: f.awsAccessKey,
			AWSSecretKey: f.awsSecretKey,
			HDFSHost:     f.hdfsHost,
			WebHDFSPort:  f.webhdfsPort,
			HDFSUser:     f.hdfsUser,
		},
		Connection: types.ConnectionSpec{
			Host:     f.host,
			Port:     f.port,
			User:     f.user,
			Password: f.password,
		},
		Target: types.TargetSpec{
			Database: f.database,
			Table:    f.table,
		},
		Options: types.LoadOptions{
			FileIDColumn: f.fileIDColumn,
			NonLocalLoad: f.nonLocalLoad,
			Script:       f.script,
		},
	}
	if f.fieldsTerminated != "" {
		spec.Options.Fields.Terminated = &f.fieldsTerminated
	}
	if f.fieldsEnclosed != "" {
		spec.Options.Fields.Enclosed = &f.fieldsEnclosed
	}
	if f.fieldsEscaped != "" {
		spec.Options.Fields.Escaped = &f.fieldsEscaped
	}
	if f.linesTerminated != "" {
		spec.Options.Lines.Terminated = &f.linesTerminated
	}
	if f.linesStarting != "" {
		spec.Options.Lines.Starting = &f.linesStarting
	}
	if f.ignoreLines > 0 {
		spec.Options.Lines.Ignore = &f.ignoreLines
	}
	if f.columns != "" {
		for _, c := range strings.Split(f.columns, ",") {
			spec.Options.Columns = append(spec.Options.Columns, strings.TrimSpace(c))
		}
	}
	switch {
	case f.dupIgnore:
		spec.Options.DuplicateKeyMethod = types.DupIgnore
	case f.dupReplace:
		spec.Options.DuplicateKeyMethod = types.DupReplace
	default:
		spec.Options.DuplicateKeyMethod = types.DupError
	}
	return spec
}
