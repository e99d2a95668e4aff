// Package mysql implements targetdb.Target against a MySQL-wire-protocol
// server (this covers MemSQL, the original target, since it speaks the
// same protocol), using github.com/go-sql-driver/mysql.
//
// Grounded on original_source/memsql_loader/db/pool.py (get_connection,
// local_infile handling) and db/load_data.py/execution/loader.py (the
// LOAD DATA statement and its thread-ID-based kill path).
package mysql

import (
	"context"
	"database/sql"
	"fmt"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/memsql/memsql-loader/internal/targetdb"
	"github.com/memsql/memsql-loader/internal/types"
)

// Target is a MySQL-protocol destination database.
type Target struct {
	db   *sql.DB
	conn types.ConnectionSpec
}

// Open connects to conn, enabling LOCAL INFILE loading from arbitrary
// local paths (the pipe's FIFO path is generated per-task and can't be
// registered in advance), mirroring pool.get_connection's
// local_infile=True.
func Open(conn types.ConnectionSpec) (*Target, error) {
	cfg := mysqldriver.NewConfig()
	cfg.User = conn.User
	cfg.Passwd = conn.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", conn.Host, conn.Port)
	cfg.AllowAllFiles = true
	cfg.ParseTime = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open target connection: %w", err)
	}
	return &Target{db: db, conn: conn}, nil
}

func (t *Target) Close() error { return t.db.Close() }

// Kill runs KILL CONNECTION against connID on a fresh side connection,
// mirroring db_utils.try_kill_connection (a LOAD DATA reading from a local
// pipe is not interrupted by KILL QUERY). Errors connecting are swallowed: if the
// target is unreachable the load connection is presumably already dead too.
func (t *Target) Kill(ctx context.Context, connID int64) error {
	conn, err := t.db.Conn(ctx)
	if err != nil {
		return nil
	}
	defer conn.Close()
	_, _ = conn.ExecContext(ctx, fmt.Sprintf("KILL CONNECTION %d", connID))
	return nil
}

// BeginTx opens a dedicated connection and transaction for one bulk load.
func (t *Target) BeginTx(ctx context.Context) (targetdb.Tx, error) {
	conn, err := t.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("open load connection: %w", err)
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("begin load transaction: %w", err)
	}

	var connID int64
	if err := conn.QueryRowContext(ctx, "SELECT CONNECTION_ID()").Scan(&connID); err != nil {
		tx.Rollback()
		conn.Close()
		return nil, fmt.Errorf("query connection id: %w", err)
	}

	return &Tx{conn: conn, tx: tx, connID: connID}, nil
}

// Tx is one bulk-load transaction, satisfying targetdb.Tx.
type Tx struct {
	conn   *sql.Conn
	tx     *sql.Tx
	connID int64
}

func (x *Tx) ConnID() int64 { return x.connID }

// LoadFile runs a LOAD DATA LOCAL INFILE statement built from opts against
// sourceFile, mirroring Loader.run()'s self._conn.query(self._sql, ...).
func (x *Tx) LoadFile(ctx context.Context, opts types.LoadOptions, target types.TargetSpec, fileID string, sourceFile string) (int64, error) {
	stmt := BuildLoadStatement(opts, target, fileID, sourceFile)
	res, err := x.tx.ExecContext(ctx, stmt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Exec runs an arbitrary statement (e.g. the delete-before-reload cleanup)
// within the transaction.
func (x *Tx) Exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res, err := x.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (x *Tx) Commit() error {
	defer x.conn.Close()
	return x.tx.Commit()
}

func (x *Tx) Rollback() error {
	defer x.conn.Close()
	return x.tx.Rollback()
}
