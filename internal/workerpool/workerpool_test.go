package workerpool_test

import (
	"context"
	"os"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memsql/memsql-loader/internal/workerpool"
)

func TestDefaultSizeIsAtLeastOne(t *testing.T) {
	assert.GreaterOrEqual(t, workerpool.DefaultSize(), 1)
}

func TestPoolReportsBusyCountFromStatusBytes(t *testing.T) {
	spawn := func(ctx context.Context, statusWrite *os.File) (*exec.Cmd, error) {
		_, err := statusWrite.Write([]byte{'B'})
		require.NoError(t, err)
		return exec.Command("sleep", "30"), nil
	}

	pool := workerpool.New(2, spawn, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return pool.BusyCount() == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestPoolRestartsWorkerThatExitsEarly(t *testing.T) {
	var attempts int32
	spawn := func(ctx context.Context, statusWrite *os.File) (*exec.Cmd, error) {
		n := atomic.AddInt32(&attempts, 1)
		if n == 1 {
			return exec.Command("true"), nil
		}
		return exec.Command("sleep", "30"), nil
	}

	pool := workerpool.New(1, spawn, func(string, ...interface{}) {})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&attempts) >= 2
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
