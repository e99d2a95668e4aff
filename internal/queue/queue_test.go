package queue_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memsql/memsql-loader/internal/queue"
	"github.com/memsql/memsql-loader/internal/store"
	"github.com/memsql/memsql-loader/internal/types"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "loader.db"), queue.Schema)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestEnqueueClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	q := queue.New(st.WriteDB())

	id, err := q.Enqueue(ctx, "job-1", types.TaskData{"key_name": "a.csv"}, "file-1")
	require.NoError(t, err)
	require.NotZero(t, id)

	task, err := q.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, types.TaskQueued, task.State(time.Now(), queue.LeaseTTL))

	lease, err := q.Claim(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, lease)
	require.Equal(t, id, lease.Task().ID)
	require.Equal(t, types.TaskRunning, lease.Task().State(time.Now(), queue.LeaseTTL))

	// A second claim attempt finds nothing: the only task is already leased.
	again, err := q.Claim(ctx, "job-1")
	require.NoError(t, err)
	require.Nil(t, again)

	require.NoError(t, lease.Finish(ctx, "success"))

	final, err := q.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, types.TaskSuccess, final.State(time.Now(), queue.LeaseTTL))
}

func TestClaimIgnoresExpiredLease(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	q := queue.New(st.WriteDB())

	id, err := q.Enqueue(ctx, "job-1", types.TaskData{}, "")
	require.NoError(t, err)

	lease, err := q.Claim(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, lease)

	// Force the lease to look expired by backdating last_contact directly.
	_, err = st.WriteDB().ExecContext(ctx, `UPDATE tasks SET last_contact = ? WHERE id = ?`,
		time.Now().Add(-2*queue.LeaseTTL).UTC().Format(time.RFC3339Nano), id)
	require.NoError(t, err)

	reclaimed, err := q.Claim(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	require.Equal(t, id, reclaimed.Task().ID)
}

func TestRequeuePreservesDataAndBytesTotal(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	q := queue.New(st.WriteDB())

	id, err := q.Enqueue(ctx, "job-1", types.TaskData{"key_name": "a.csv", "time_left": 12.5}, "")
	require.NoError(t, err)
	lease, err := q.Claim(ctx, "job-1")
	require.NoError(t, err)

	require.NoError(t, lease.StartStep(ctx, "download"))
	bytesTotal := int64(4096)
	bytesDownloaded := int64(1024)
	rate := int64(512)
	lease.Task().BytesTotal = &bytesTotal
	lease.Task().BytesDownloaded = &bytesDownloaded
	lease.Task().DownloadRate = &rate
	require.NoError(t, lease.Save(ctx))

	require.NoError(t, lease.Requeue(ctx, "stalled"))

	task, err := q.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, types.TaskQueued, task.State(time.Now(), queue.LeaseTTL))
	require.Equal(t, "a.csv", func() string { s, _ := task.Data.GetString("key_name"); return s }())

	_, hasTimeLeft := task.Data["time_left"]
	require.False(t, hasTimeLeft)
	require.Empty(t, task.Steps)
	require.Nil(t, task.BytesDownloaded)
	require.Nil(t, task.DownloadRate)
	require.NotNil(t, task.BytesTotal)
	require.Equal(t, bytesTotal, *task.BytesTotal)
}

func TestBulkFinishCancelsUnfinishedTasks(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	q := queue.New(st.WriteDB())

	_, err := q.Enqueue(ctx, "job-1", types.TaskData{}, "")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "job-1", types.TaskData{}, "")
	require.NoError(t, err)

	n, err := q.BulkFinish(ctx, "job-1", "cancelled")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	tasks, err := q.AllForJob(ctx, "job-1")
	require.NoError(t, err)
	for _, task := range tasks {
		require.Equal(t, types.TaskCancelled, task.State(time.Now(), queue.LeaseTTL))
		require.NotNil(t, task.ExecutionID)
		require.Equal(t, "0", *task.ExecutionID)
		require.Empty(t, task.Steps)
	}
}

func TestGetTasksInState(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	q := queue.New(st.WriteDB())

	id, err := q.Enqueue(ctx, "job-1", types.TaskData{}, "")
	require.NoError(t, err)

	queued, err := q.GetTasksInState(ctx, "job-1", types.TaskQueued, queue.LeaseTTL)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	require.Equal(t, id, queued[0].ID)

	lease, err := q.Claim(ctx, "job-1")
	require.NoError(t, err)

	running, err := q.GetTasksInState(ctx, "job-1", types.TaskRunning, queue.LeaseTTL)
	require.NoError(t, err)
	require.Len(t, running, 1)

	queued, err = q.GetTasksInState(ctx, "job-1", types.TaskQueued, queue.LeaseTTL)
	require.NoError(t, err)
	require.Empty(t, queued)

	_ = lease
}
