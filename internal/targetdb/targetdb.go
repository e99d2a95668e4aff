// Package targetdb defines the contract internal/loader needs against the
// destination database: open a transaction-scoped connection, run a bulk
// load statement against a local file path, and forcibly kill a running
// load by connection ID.
//
// Grounded on original_source/memsql_loader/db/pool.py (get_connection) and
// execution/loader.py (Loader.run/abort), generalized from "MemSQL" (which
// speaks the MySQL wire protocol) to any target reachable the same way.
package targetdb

import (
	"context"

	"github.com/memsql/memsql-loader/internal/types"
)

// Tx is one bulk-load transaction against the target.
type Tx interface {
	// LoadFile runs the target's bulk-load statement reading sourceFile
	// (the path to an open pipe or regular file), tagging rows with fileID
	// when the job is configured to do so, and returns the number of rows
	// affected.
	LoadFile(ctx context.Context, opts types.LoadOptions, target types.TargetSpec, fileID string, sourceFile string) (rowCount int64, err error)
	// Exec runs an arbitrary statement within the transaction (used for the
	// delete-before-reload cleanup step), returning rows affected.
	Exec(ctx context.Context, query string, args ...interface{}) (int64, error)
	// ConnID returns the target-side identifier for this transaction's
	// connection, used by Target.Kill to abort it from another connection.
	ConnID() int64
	Commit() error
	Rollback() error
}

// Target is a destination database.
type Target interface {
	BeginTx(ctx context.Context) (Tx, error)
	// Kill kills the connection identified by connID (and with it any
	// load running on it), mirroring db_utils.try_kill_connection.
	Kill(ctx context.Context, connID int64) error
	Close() error
}
