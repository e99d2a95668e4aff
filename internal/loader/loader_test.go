package loader_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memsql/memsql-loader/internal/loader"
	"github.com/memsql/memsql-loader/internal/pipe"
	"github.com/memsql/memsql-loader/internal/targetdb"
	"github.com/memsql/memsql-loader/internal/types"
)

type fakeTx struct {
	connID     int64
	loadErr    error
	rowCount   int64
	loadedPath string
}

func (f *fakeTx) LoadFile(ctx context.Context, opts types.LoadOptions, target types.TargetSpec, fileID string, sourceFile string) (int64, error) {
	f.loadedPath = sourceFile
	return f.rowCount, f.loadErr
}
func (f *fakeTx) Exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	return 0, nil
}
func (f *fakeTx) ConnID() int64   { return f.connID }
func (f *fakeTx) Commit() error   { return nil }
func (f *fakeTx) Rollback() error { return nil }

type fakeTarget struct {
	mu        sync.Mutex
	killCalls []int64
}

func (f *fakeTarget) BeginTx(ctx context.Context) (targetdb.Tx, error) {
	return nil, fmt.Errorf("not used in these tests")
}
func (f *fakeTarget) Kill(ctx context.Context, connID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killCalls = append(f.killCalls, connID)
	return nil
}
func (f *fakeTarget) Close() error { return nil }

func TestRunReportsConnIDAndRowCount(t *testing.T) {
	tx := &fakeTx{connID: 7, rowCount: 100}
	target := &fakeTarget{}

	p, err := pipe.New(false)
	require.NoError(t, err)
	defer p.Cleanup()

	go func() {
		f, _ := p.Open(true)
		if f != nil {
			f.Close()
		}
	}()

	var gotConnID, gotRows int64
	hooks := loader.Hooks{
		OnConnID: func(connID int64) { gotConnID = connID },
		OnRows:   func(rowCount int64) { gotRows = rowCount },
	}

	err = loader.Run(context.Background(), target, tx, p, types.LoadOptions{}, types.TargetSpec{}, "file-1", hooks)
	require.NoError(t, err)
	assert.Equal(t, int64(7), gotConnID)
	assert.Equal(t, int64(100), gotRows)
	assert.Equal(t, p.Path, tx.loadedPath)
}

func TestRunReturnsWorkerErrorOnLoadFailure(t *testing.T) {
	tx := &fakeTx{connID: 1, loadErr: fmt.Errorf("syntax error")}
	target := &fakeTarget{}

	p, err := pipe.New(false)
	require.NoError(t, err)
	defer p.Cleanup()

	go func() {
		f, _ := p.Open(true)
		if f != nil {
			f.Close()
		}
	}()

	err = loader.Run(context.Background(), target, tx, p, types.LoadOptions{}, types.TargetSpec{}, "", loader.Hooks{})
	require.Error(t, err)
}

func TestRunDetachesReaderAfterCompletion(t *testing.T) {
	tx := &fakeTx{connID: 1, rowCount: 1}
	target := &fakeTarget{}

	p, err := pipe.New(false)
	require.NoError(t, err)
	defer p.Cleanup()

	go func() {
		f, _ := p.Open(true)
		if f != nil {
			f.Close()
		}
	}()

	require.NoError(t, loader.Run(context.Background(), target, tx, p, types.LoadOptions{}, types.TargetSpec{}, "", loader.Hooks{}))

	// Run's defer p.DetachReader() should have cleared the abort hook, so a
	// fresh AttachReader succeeds without "already attached" error.
	require.NoError(t, p.AttachReader(func() {}))
}
