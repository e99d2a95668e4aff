package errs_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memsql/memsql-loader/internal/errs"
)

func TestIsRequeueMatchesWrapped(t *testing.T) {
	base := errs.NewRequeue("stalled")
	wrapped := fmt.Errorf("task failed: %w", base)
	assert.True(t, errs.IsRequeue(wrapped))
	assert.False(t, errs.IsRequeue(errors.New("plain error")))
}

func TestIsConnectionUnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset by peer")
	connErr := errs.NewConnection(cause)
	assert.True(t, errs.IsConnection(connErr))
	assert.True(t, errors.Is(connErr, cause))
}

func TestIsWorkerReturnsTypedError(t *testing.T) {
	err := errs.NewWorker("bad row %d", 7)
	w, ok := errs.IsWorker(err)
	require.True(t, ok)
	assert.Equal(t, "bad row 7", w.Msg)

	_, ok = errs.IsWorker(errors.New("not a worker error"))
	assert.False(t, ok)
}

func TestTimeReturnsStampForWorkerAndConnection(t *testing.T) {
	before := time.Now()
	workerErr := errs.NewWorker("boom")
	connErr := errs.NewConnection(errors.New("reset"))
	after := time.Now()

	wt := errs.Time(workerErr)
	assert.False(t, wt.Before(before))
	assert.False(t, wt.After(after))

	ct := errs.Time(connErr)
	assert.False(t, ct.Before(before))
	assert.False(t, ct.After(after))
}

func TestTimeIsZeroForUnstampedErrors(t *testing.T) {
	assert.True(t, errs.Time(errors.New("plain")).IsZero())
	assert.True(t, errs.Time(errs.NewRequeue("x")).IsZero())
}
