package worker

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/memsql/memsql-loader/internal/types"
)

// DeleteLocks hands out an advisory flock per (host, port, database,
// table), serializing the delete-before-reload step (spec.md §4.G step 6)
// across worker OS processes the way worker.py's multiprocessing.Lock
// serializes it across a process's own worker pool. Each Lock call opens
// the lock file afresh, so the flock also serializes goroutines within one
// process; the in-memory mutex only guards the map of held descriptors.
type DeleteLocks struct {
	dir string
	mu  sync.Mutex
	fds map[string]int
}

// NewDeleteLocks creates a lock manager rooted at dir (a per-server data
// directory), creating it if necessary.
func NewDeleteLocks(dir string) (*DeleteLocks, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create delete-lock dir: %w", err)
	}
	return &DeleteLocks{dir: dir, fds: make(map[string]int)}, nil
}

func lockKey(target types.TargetSpec, conn types.ConnectionSpec) string {
	return fmt.Sprintf("%s-%d-%s-%s", conn.Host, conn.Port, target.Database, target.Table)
}

// Lock blocks until the advisory lock for (conn, target) is held by this
// process. Callers must call Unlock with the same key when done.
func (d *DeleteLocks) Lock(conn types.ConnectionSpec, target types.TargetSpec) (string, error) {
	key := lockKey(target, conn)
	path := filepath.Join(d.dir, key+".lock")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return "", fmt.Errorf("open delete lock file: %w", err)
	}
	// Keep the lock on a raw duplicate descriptor and close the *os.File:
	// the flock belongs to the shared open file description, so it stays
	// held through the duplicate, and no *os.File finalizer can close the
	// descriptor while the lock is held. Unlock closes the raw fd.
	fd, err := unix.Dup(int(f.Fd()))
	f.Close()
	if err != nil {
		return "", fmt.Errorf("dup delete lock fd: %w", err)
	}

	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		unix.Close(fd)
		return "", fmt.Errorf("flock delete lock: %w", err)
	}

	d.mu.Lock()
	d.fds[key] = fd
	d.mu.Unlock()
	return key, nil
}

// Unlock releases the lock acquired under key.
func (d *DeleteLocks) Unlock(key string) {
	d.mu.Lock()
	fd, ok := d.fds[key]
	delete(d.fds, key)
	d.mu.Unlock()
	if ok {
		unix.Flock(fd, unix.LOCK_UN)
		unix.Close(fd)
	}
}
