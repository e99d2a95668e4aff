// Package store implements the embedded SQL store: two long-lived
// connections (one serialized for writes, one pooled for reads) over a
// single WAL-mode SQLite file, plus the fork-safe scope workers must use
// before spawning child processes.
//
// Grounded on tysonthomas9-beads/internal/storage/sqlite/store.go (pure-Go
// driver, WAL setup, checkpoint-on-close) and
// original_source/memsql_loader/util/apsw_storage.py (the
// transaction()/cursor() split this package's Transaction/Cursor replicate).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store is two connections to one SQLite file: dbWrite (single connection,
// writes serialized by writeMu) and dbRead (a small pool of read-only-ish
// connections). See SPEC_FULL.md §4.A for why writeMu stands in for the
// Python implementation's cross-process mutex: in this Go rewrite each
// worker is a separate OS process with its own Store, so writeMu only
// serializes writes issued by goroutines within one process; cross-process
// write contention is resolved by SQLite's own busy_timeout/locking.
type Store struct {
	path     string
	writeMu  sync.Mutex
	dbWrite  *sql.DB
	dbRead   *sql.DB
	closed   bool
	closedMu sync.Mutex
}

// BusyTimeout is the SQLite busy_timeout PRAGMA applied to both connections.
const BusyTimeout = 30 * time.Second

// Open creates or opens the store at path, configuring WAL mode,
// synchronous=NORMAL, and foreign_keys=ON on both connections, then runs
// schemaDDL to create the store's tables if they don't exist.
func Open(ctx context.Context, path string, schemaDDL string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
	}

	timeoutMs := int64(BusyTimeout / time.Millisecond)
	connStr := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(ON)", path, timeoutMs)

	s := &Store{path: path}
	if err := s.setupConnections(connStr); err != nil {
		return nil, err
	}

	if _, err := s.dbWrite.ExecContext(ctx, schemaDDL); err != nil {
		_ = s.closeConnections()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *Store) setupConnections(connStr string) error {
	dbWrite, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return fmt.Errorf("open write connection: %w", err)
	}
	dbWrite.SetMaxOpenConns(1)
	dbWrite.SetMaxIdleConns(1)

	dbRead, err := sql.Open("sqlite3", connStr)
	if err != nil {
		_ = dbWrite.Close()
		return fmt.Errorf("open read connection: %w", err)
	}
	dbRead.SetMaxOpenConns(4)
	dbRead.SetMaxIdleConns(2)

	for _, db := range []*sql.DB{dbWrite, dbRead} {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = dbWrite.Close()
			_ = dbRead.Close()
			return fmt.Errorf("enable WAL: %w", err)
		}
		if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
			_ = dbWrite.Close()
			_ = dbRead.Close()
			return fmt.Errorf("set synchronous: %w", err)
		}
	}

	s.dbWrite = dbWrite
	s.dbRead = dbRead
	return nil
}

func (s *Store) closeConnections() error {
	var errWrite, errRead error
	if s.dbWrite != nil {
		errWrite = s.dbWrite.Close()
		s.dbWrite = nil
	}
	if s.dbRead != nil {
		errRead = s.dbRead.Close()
		s.dbRead = nil
	}
	if errWrite != nil {
		return errWrite
	}
	return errRead
}

// Transaction takes the write lock, begins a transaction, runs fn with the
// resulting *sql.Tx, commits on success, and opportunistically checkpoints
// the WAL (busy/locked errors during checkpoint are ignored, matching
// apsw_storage.py's transaction()).
func (s *Store) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.dbWrite.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	_, _ = s.dbWrite.ExecContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)")
	return nil
}

// Cursor runs fn against the read pool.
func (s *Store) Cursor(ctx context.Context, fn func(db *sql.DB) error) error {
	return fn(s.dbRead)
}

// Path returns the path the store was opened with.
func (s *Store) Path() string { return s.path }

// WriteDB exposes the single-connection write handle directly, for
// long-lived callers (the worker process's queue/job-store handles) that
// issue one statement at a time across a lifetime longer than any single
// Transaction call. dbWrite's MaxOpenConns(1) already serializes these at
// the database/sql level, so callers don't need writeMu for single
// statements; only multi-statement transactions go through Transaction.
func (s *Store) WriteDB() *sql.DB { return s.dbWrite }

// Close closes both connections, checkpointing the WAL first.
func (s *Store) Close() error {
	s.closedMu.Lock()
	defer s.closedMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.dbWrite != nil {
		_, _ = s.dbWrite.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.closeConnections()
}

// WithExec is the fork-safe scope from spec.md §4.A / §9: close this
// store's connections, run spawn (which launches one or more child
// processes), then reopen. Because this Go rewrite launches workers via
// os/exec rather than fork(), a child process never inherits this
// process's SQLite handles regardless — os/exec starts a fresh image. The
// scope is kept so that a caller spawning processes while holding a Store
// holds no SQLite file descriptors across the spawn, and so the pattern
// reads the same way spec.md describes it. workerpool does not call it.
func (s *Store) WithExec(spawn func() error) error {
	s.writeMu.Lock()
	connStr := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(ON)", s.path, int64(BusyTimeout/time.Millisecond))
	if err := s.closeConnections(); err != nil {
		s.writeMu.Unlock()
		return fmt.Errorf("close handles before spawn: %w", err)
	}
	s.writeMu.Unlock()

	spawnErr := spawn()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.setupConnections(connStr); err != nil {
		if spawnErr != nil {
			return fmt.Errorf("%v (also failed to reopen store: %w)", spawnErr, err)
		}
		return fmt.Errorf("reopen store after spawn: %w", err)
	}
	return spawnErr
}
