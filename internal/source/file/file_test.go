package file_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memsql/memsql-loader/internal/source/file"
	"github.com/memsql/memsql-loader/internal/types"
)

func TestListExpandsGlob(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.csv", "b.csv"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x,y\n"), 0o644))
	}

	objs, err := file.Driver{}.List(context.Background(), types.SourceSpec{}, filepath.Join(dir, "*.csv"))
	require.NoError(t, err)
	require.Len(t, objs, 2)
	require.EqualValues(t, 4, objs[0].Size)
}

func TestListSkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.csv"), []byte("data"), 0o644))

	objs, err := file.Driver{}.List(context.Background(), types.SourceSpec{}, filepath.Join(dir, "*"))
	require.NoError(t, err)
	require.Len(t, objs, 1)
	require.Equal(t, filepath.Join(dir, "f.csv"), objs[0].Name)
}

func TestResolveOpensNamedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.csv")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	obj, err := file.Driver{}.Resolve(context.Background(), types.SourceSpec{}, types.TaskData{"key_name": path})
	require.NoError(t, err)
	require.EqualValues(t, 5, obj.Size)

	rc, err := obj.Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestResolveMissingKeyName(t *testing.T) {
	_, err := file.Driver{}.Resolve(context.Background(), types.SourceSpec{}, types.TaskData{})
	require.Error(t, err)
}
