// Package loader runs the target database's bulk-load statement against a
// pipe's FIFO path, inside a transaction the worker already opened, and
// wires the pipe's reader-abort hook to killing that connection.
//
// Grounded on original_source/memsql_loader/execution/loader.py
// (Loader.load/run/abort).
package loader

import (
	"context"
	"sync"

	"github.com/memsql/memsql-loader/internal/errs"
	"github.com/memsql/memsql-loader/internal/pipe"
	"github.com/memsql/memsql-loader/internal/targetdb"
	"github.com/memsql/memsql-loader/internal/types"
)

// Hooks lets the caller bracket the load with progress tracking without
// this package depending on internal/queue.
type Hooks struct {
	OnConnID func(connID int64)
	OnRows   func(rowCount int64)
}

// abortableTx pairs a transaction with the Target used to kill its
// connection, so Run's pipe.AttachReader callback can abort a stuck load
// from another connection (the transaction's own connection is busy
// running the blocking LOAD DATA statement).
type abortableTx struct {
	target targetdb.Target
	tx     targetdb.Tx
	mu     sync.Mutex
	active bool
}

func (a *abortableTx) abort() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return false
	}
	_ = a.target.Kill(context.Background(), a.tx.ConnID())
	return true
}

// Run attaches p's reader-abort hook to killing tx's connection, then runs
// the bulk load statement reading from p.Path, mirroring Loader.run().
// tx must already be open (the caller begins/commits/rolls it back); Run
// only executes the LOAD statement.
func Run(ctx context.Context, target targetdb.Target, tx targetdb.Tx, p *pipe.Pipe, opts types.LoadOptions, targetSpec types.TargetSpec, fileID string, hooks Hooks) error {
	a := &abortableTx{target: target, tx: tx, active: true}
	if err := p.AttachReader(a.abort); err != nil {
		return errs.NewWorker("%v", err)
	}
	defer p.DetachReader()

	if hooks.OnConnID != nil {
		hooks.OnConnID(tx.ConnID())
	}

	rowCount, err := tx.LoadFile(ctx, opts, targetSpec, fileID, p.Path)

	a.mu.Lock()
	a.active = false
	a.mu.Unlock()

	if err != nil {
		return errs.NewWorker("LOAD DATA error: %v", err)
	}
	if hooks.OnRows != nil {
		hooks.OnRows(rowCount)
	}
	return nil
}
