// Package source defines the contract a storage backend (local filesystem,
// S3, HDFS) must satisfy to be downloaded by internal/downloader, and a
// registry resolving a task's "scheme" field to the right implementation.
//
// Grounded on original_source/memsql_loader/execution/downloader.py's
// scheme dispatch (the `if task.data['scheme'] == ...` chain) and
// util/glob2.py (path expansion feeding file:// sources).
package source

import (
	"context"
	"fmt"
	"io"

	"github.com/memsql/memsql-loader/internal/types"
)

// Object is one file to download: its size (for progress/time-left
// estimation) and a method to open a streaming reader positioned at byte 0.
type Object struct {
	Scheme string
	Name   string
	Size   int64
	Open   func(ctx context.Context) (io.ReadCloser, error)
}

// Lister expands a job's configured source paths into concrete Objects,
// mirroring the glob/listing half of each scheme in the original CLI's job
// planning step (cli/load.py constructs one task per resolved key).
type Lister interface {
	List(ctx context.Context, src types.SourceSpec, path string) ([]Object, error)
}

// Opener resolves a single task's scheme/key_name/bucket fields (persisted
// in types.TaskData by the Lister that created the task) back into an
// Object for downloading, mirroring Downloader.load()'s scheme dispatch.
type Opener interface {
	Scheme() string
	Resolve(ctx context.Context, src types.SourceSpec, data types.TaskData) (Object, error)
}

// Registry maps a scheme name to its Opener.
type Registry struct {
	openers map[string]Opener
}

// NewRegistry builds a Registry from openers, keyed by their Scheme().
func NewRegistry(openers ...Opener) *Registry {
	r := &Registry{openers: make(map[string]Opener, len(openers))}
	for _, o := range openers {
		r.openers[o.Scheme()] = o
	}
	return r
}

// Resolve looks up data's scheme and resolves it to an Object.
func (r *Registry) Resolve(ctx context.Context, src types.SourceSpec, data types.TaskData) (Object, error) {
	scheme, ok := data.GetString("scheme")
	if !ok {
		return Object{}, fmt.Errorf("task data missing scheme")
	}
	opener, ok := r.openers[scheme]
	if !ok {
		return Object{}, fmt.Errorf("unsupported scheme %q", scheme)
	}
	return opener.Resolve(ctx, src, data)
}
