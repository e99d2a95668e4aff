// Package daemon provides the single-server-instance guarantee (an
// exclusive flock plus the spec-mandated decimal PID file) and the
// logger/signal-handling setup the server command uses.
//
// Grounded on tysonthomas9-beads/internal/lockfile/lock.go (LockInfo,
// TryDaemonLock, checkPIDFile) and
// tysonthomas9-beads/cmd/bd/daemon_lock.go (flock-based DaemonLock),
// replacing beads' issue-daemon lock with the loader server's lock, and on
// original_source/memsql_loader/util/servers.py (write_pid_file/
// get_server_pid/is_server_running) for the pid file's exact path and
// format: $DATA_DIR/memsql-loader.pid holding the decimal PID plus a
// trailing newline.
package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// LockInfo describes the process holding the server lock. PID is the
// authoritative liveness field (read from the plain-text pid file);
// StartedAt/Version are extra detail `server status` reports, carried in a
// sidecar JSON file alongside the pid file.
type LockInfo struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
}

// Lock is a held server lock; release it with Unlock.
type Lock struct {
	file     *os.File
	lockPath string
	pidPath  string
	infoPath string
}

// lockPaths returns the three files backing the lock: the flock'd lock
// file, the spec-mandated pid file (decimal PID + newline, the same
// contract original_source's servers.py/is_server_running checks via
// kill(pid, 0)), and a JSON sidecar carrying StartedAt/Version for `server
// status`.
func lockPaths(dataDir string) (lockPath, pidPath, infoPath string) {
	return filepath.Join(dataDir, "memsql-loader.lock"),
		filepath.Join(dataDir, "memsql-loader.pid"),
		filepath.Join(dataDir, "memsql-loader.json")
}

// TryLock attempts to acquire the server lock in dataDir, returning
// (nil, existing, nil) without error if another process already holds it
// (existing describes that process, read from the pid/info files).
func TryLock(dataDir, version string) (*Lock, *LockInfo, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	lockPath, pidPath, infoPath := lockPaths(dataDir)

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		existing, rerr := ReadLockInfo(dataDir)
		if rerr != nil {
			return nil, nil, fmt.Errorf("server lock is held by another process, and its pid file could not be read: %w", rerr)
		}
		return nil, existing, nil
	}

	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0o640); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, nil, fmt.Errorf("write pid file: %w", err)
	}

	info := LockInfo{PID: pid, StartedAt: time.Now(), Version: version}
	raw, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		os.Remove(pidPath)
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, nil, fmt.Errorf("marshal lock info: %w", err)
	}
	if err := os.WriteFile(infoPath, raw, 0o640); err != nil {
		os.Remove(pidPath)
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, nil, fmt.Errorf("write lock info: %w", err)
	}

	return &Lock{file: f, lockPath: lockPath, pidPath: pidPath, infoPath: infoPath}, nil, nil
}

// ReadLockInfo reads the pid file (the authoritative PID) and, if present,
// the JSON sidecar (StartedAt/Version) without acquiring the lock, for
// `server status`.
func ReadLockInfo(dataDir string) (*LockInfo, error) {
	_, pidPath, infoPath := lockPaths(dataDir)

	raw, err := os.ReadFile(pidPath)
	if err != nil {
		return nil, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("parse pid file: %w", err)
	}
	info := &LockInfo{PID: pid}

	if rawInfo, err := os.ReadFile(infoPath); err == nil {
		_ = json.Unmarshal(rawInfo, info)
		info.PID = pid // the pid file, not the sidecar, is authoritative
	}
	return info, nil
}

// Running reports whether info's PID is still a live process, mirroring
// is_server_running's kill(pid, 0) liveness check (signal 0 probes
// existence without delivering anything).
func (info *LockInfo) Running() bool {
	proc, err := os.FindProcess(info.PID)
	if err != nil {
		return false
	}
	return proc.Signal(unix.Signal(0)) == nil
}

// Unlock releases the lock and removes the lock/pid/info files, mirroring
// servers.py's atexit-registered delete_pid_file.
func (l *Lock) Unlock() error {
	unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	err := l.file.Close()
	os.Remove(l.lockPath)
	os.Remove(l.pidPath)
	os.Remove(l.infoPath)
	return err
}
