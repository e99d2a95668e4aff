package jobstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memsql/memsql-loader/internal/jobstore"
	"github.com/memsql/memsql-loader/internal/store"
	"github.com/memsql/memsql-loader/internal/types"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "loader.db"), jobstore.Schema)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func testSpec(db, table string) types.JobSpec {
	return types.JobSpec{
		Connection: types.ConnectionSpec{Host: "127.0.0.1", Port: 3306, User: "root"},
		Target:     types.TargetSpec{Database: db, Table: table},
	}
}

func TestCreateAndGetByPrefix(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	s := jobstore.New(st.WriteDB())

	job, err := s.Create(ctx, testSpec("mydb", "mytable"))
	require.NoError(t, err)

	got, err := s.Get(ctx, job.ID[:8])
	require.NoError(t, err)
	require.Equal(t, job.ID, got.ID)
	require.Equal(t, "mydb", got.Spec.Target.Database)
}

func TestGetUnknownPrefixReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	s := jobstore.New(st.WriteDB())

	_, err := s.Get(ctx, "does-not-exist")
	require.True(t, errors.Is(err, jobstore.ErrNotFound))
}

func TestGetAmbiguousPrefix(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	s := jobstore.New(st.WriteDB())

	// Force a shared prefix by inserting directly; job IDs are random UUIDs
	// and won't collide by chance, so we fabricate the collision.
	_, err := st.WriteDB().ExecContext(ctx, `INSERT INTO jobs (id, created, spec) VALUES (?, ?, ?)`,
		"aaaa1111-0000-0000-0000-000000000000", "2026-01-01T00:00:00Z", `{}`)
	require.NoError(t, err)
	_, err = st.WriteDB().ExecContext(ctx, `INSERT INTO jobs (id, created, spec) VALUES (?, ?, ?)`,
		"aaaa2222-0000-0000-0000-000000000000", "2026-01-01T00:00:00Z", `{}`)
	require.NoError(t, err)

	_, err = s.Get(ctx, "aaaa")
	var ambiguous *jobstore.ErrAmbiguous
	require.True(t, errors.As(err, &ambiguous))
	require.Len(t, ambiguous.Matches, 2)
}

func TestQueryTargetFiltersByConnectionAndTable(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	s := jobstore.New(st.WriteDB())

	match, err := s.Create(ctx, testSpec("mydb", "mytable"))
	require.NoError(t, err)
	_, err = s.Create(ctx, testSpec("other", "mytable"))
	require.NoError(t, err)

	jobs, err := s.QueryTarget(ctx, "127.0.0.1", 3306, "mydb", "mytable")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, match.ID, jobs[0].ID)
}

func TestDeleteRemovesJob(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	s := jobstore.New(st.WriteDB())

	job, err := s.Create(ctx, testSpec("db", "t"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, job.ID))

	_, err = s.Get(ctx, job.ID)
	require.True(t, errors.Is(err, jobstore.ErrNotFound))
}
