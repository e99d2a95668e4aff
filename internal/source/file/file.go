// Package file implements source.Lister and source.Opener for local
// filesystem paths, including glob expansion.
//
// Grounded on original_source/memsql_loader/execution/downloader.py's
// 'file' scheme branch (os.path.exists/os.path.getsize) and vendor/glob2.py
// for recursive glob expansion.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/memsql/memsql-loader/internal/source"
	"github.com/memsql/memsql-loader/internal/types"
)

// Scheme is this driver's task data scheme value.
const Scheme = "file"

// Driver implements source.Lister and source.Opener for the file:// scheme.
type Driver struct{}

func (Driver) Scheme() string { return Scheme }

// List expands path (which may contain glob metacharacters, per Go's
// filepath.Glob, a close match for the original's glob2 usage) into one
// Object per matched regular file.
func (Driver) List(ctx context.Context, src types.SourceSpec, path string) ([]source.Object, error) {
	matches, err := filepath.Glob(path)
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", path, err)
	}
	if len(matches) == 0 {
		if _, err := os.Stat(path); err == nil {
			matches = []string{path}
		} else {
			return nil, fmt.Errorf("no files matched %q", path)
		}
	}

	var objs []source.Object
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil {
			return nil, fmt.Errorf("stat %q: %w", m, err)
		}
		if fi.IsDir() {
			continue
		}
		name := m
		objs = append(objs, source.Object{
			Scheme: Scheme,
			Name:   name,
			Size:   fi.Size(),
			Open: func(ctx context.Context) (io.ReadCloser, error) {
				return os.Open(name)
			},
		})
	}
	return objs, nil
}

// Resolve reopens the file named in data["key_name"], mirroring the 'file'
// branch of Downloader.load().
func (Driver) Resolve(ctx context.Context, src types.SourceSpec, data types.TaskData) (source.Object, error) {
	name, ok := data.GetString("key_name")
	if !ok {
		return source.Object{}, fmt.Errorf("task data missing key_name")
	}
	fi, err := os.Stat(name)
	if err != nil {
		return source.Object{}, fmt.Errorf("file %q does not exist on this filesystem: %w", name, err)
	}
	if fi.IsDir() {
		return source.Object{}, fmt.Errorf("file %q exists, but is not a file", name)
	}
	return source.Object{
		Scheme: Scheme,
		Name:   name,
		Size:   fi.Size(),
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			return os.Open(name)
		},
	}, nil
}
