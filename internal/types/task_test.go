package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskRunningSteps(t *testing.T) {
	stop := time.Now()
	task := &Task{Steps: []Step{
		{Name: "download", Start: time.Now(), Stop: &stop},
		{Name: "load", Start: time.Now()},
	}}
	assert.Equal(t, 1, task.RunningSteps())
}

func TestTaskDataGetters(t *testing.T) {
	d := TaskData{"conn_id": float64(42), "key_name": "a/b.csv"}

	id, ok := d.GetInt64("conn_id")
	require.True(t, ok)
	assert.EqualValues(t, 42, id)

	_, ok = d.GetInt64("missing")
	assert.False(t, ok)

	name, ok := d.GetString("key_name")
	require.True(t, ok)
	assert.Equal(t, "a/b.csv", name)
}

func TestMarshalUnmarshalDataRoundTrip(t *testing.T) {
	d := TaskData{"row_count": float64(10)}
	raw, err := MarshalData(d)
	require.NoError(t, err)

	got, err := UnmarshalData(raw)
	require.NoError(t, err)
	assert.Equal(t, d, got)

	// An empty column value round-trips to an empty, non-nil map.
	empty, err := UnmarshalData("")
	require.NoError(t, err)
	assert.Equal(t, TaskData{}, empty)
}

func TestMarshalUnmarshalStepsRoundTrip(t *testing.T) {
	stop := time.Now().UTC().Truncate(time.Second)
	steps := []Step{{Name: "download", Start: stop.Add(-time.Minute), Stop: &stop}}

	raw, err := MarshalSteps(steps)
	require.NoError(t, err)

	got, err := UnmarshalSteps(raw)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "download", got[0].Name)
	assert.False(t, got[0].Running())
}
