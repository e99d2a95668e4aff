// Package pipe implements the named-pipe handoff between a downloader
// (writer) and a bulk loader (reader): a FIFO in a private temp directory,
// opened non-blocking for writes so a stalled reader never wedges the
// writer's process, with an attach/abort protocol so the writer can cancel
// a reader that is stuck mid-LOAD.
//
// Grounded on original_source/memsql_loader/util/fifo.py (FIFO class).
package pipe

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// Pipe is one named pipe backed by a private temp directory.
type Pipe struct {
	dir  string
	Path string

	mu          sync.Mutex
	closed      bool
	readerAbort func()
}

// New creates a fresh FIFO at a private path. gzipSuffix, when true, names
// the pipe "fifo.gz" so downstream tools can sniff the extension, mirroring
// FIFO.__init__'s gzip flag.
func New(gzipSuffix bool) (*Pipe, error) {
	dir, err := os.MkdirTemp("", "memsql-loader-fifo-")
	if err != nil {
		return nil, fmt.Errorf("create fifo temp dir: %w", err)
	}
	if err := os.Chmod(dir, 0o777); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("chmod fifo temp dir: %w", err)
	}

	name := "fifo"
	if gzipSuffix {
		name += ".gz"
	}
	path := filepath.Join(dir, name)
	if err := unix.Mkfifo(path, 0o666); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("mkfifo: %w", err)
	}
	if err := os.Chmod(path, 0o777); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("chmod fifo: %w", err)
	}

	return &Pipe{dir: dir, Path: path}, nil
}

// Open opens the FIFO for writing and blocks until a reader attaches (the
// standard FIFO open semantics), then returns the file handle set
// non-blocking unless blocking is true. The caller must Close the file
// when done; on any write error the caller should call AbortReader.
func (p *Pipe) Open(blocking bool) (*os.File, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("pipe has already been cleaned up")
	}
	p.mu.Unlock()

	f, err := os.OpenFile(p.Path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open fifo for writing: %w", err)
	}

	if !blocking {
		if err := unix.SetNonblock(int(f.Fd()), true); err != nil {
			f.Close()
			return nil, fmt.Errorf("set fifo nonblocking: %w", err)
		}
	}
	return f, nil
}

// AttachReader records abort, the function the writer should call to
// cancel a stuck reader. Only one reader may be attached at a time.
func (p *Pipe) AttachReader(abort func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readerAbort != nil {
		return fmt.Errorf("a reader is already attached to this pipe")
	}
	p.readerAbort = abort
	return nil
}

// DetachReader clears the attached reader's abort hook. Because opening the
// pipe for writing blocks until a reader attaches, DetachReader also opens
// and immediately closes the read end non-blocking, to unblock any writer
// still waiting in Open.
func (p *Pipe) DetachReader() {
	p.mu.Lock()
	p.readerAbort = nil
	p.mu.Unlock()

	f, err := os.OpenFile(p.Path, os.O_RDONLY|unix.O_NONBLOCK, 0)
	if err == nil {
		f.Close()
	}
}

// AbortReader invokes the attached reader's abort hook, if any, and clears
// it.
func (p *Pipe) AbortReader() {
	p.mu.Lock()
	abort := p.readerAbort
	p.readerAbort = nil
	p.mu.Unlock()
	if abort != nil {
		abort()
	}
}

// Cleanup removes the FIFO and its temp directory. Safe to call more than
// once.
func (p *Pipe) Cleanup() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return os.RemoveAll(p.dir)
}
