package store_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memsql/memsql-loader/internal/store"
)

const testSchema = `CREATE TABLE IF NOT EXISTS widgets (id INTEGER PRIMARY KEY, name TEXT);`

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), testSchema)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpenCreatesSchemaAndParentDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "loader.db")
	st, err := store.Open(context.Background(), path, testSchema)
	require.NoError(t, err)
	defer st.Close()

	assert.Equal(t, path, st.Path())
	require.NoError(t, st.Cursor(context.Background(), func(db *sql.DB) error {
		_, err := db.Exec("SELECT 1 FROM widgets")
		return err
	}))
}

func TestTransactionCommitsOnSuccess(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	err := st.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO widgets (id, name) VALUES (1, 'a')")
		return err
	})
	require.NoError(t, err)

	require.NoError(t, st.Cursor(ctx, func(db *sql.DB) error {
		var name string
		if err := db.QueryRowContext(ctx, "SELECT name FROM widgets WHERE id = 1").Scan(&name); err != nil {
			return err
		}
		assert.Equal(t, "a", name)
		return nil
	}))
}

func TestTransactionRollsBackOnError(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sentinel := assert.AnError
	err := st.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO widgets (id, name) VALUES (2, 'b')"); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	require.NoError(t, st.Cursor(ctx, func(db *sql.DB) error {
		var count int
		if err := db.QueryRowContext(ctx, "SELECT count(*) FROM widgets WHERE id = 2").Scan(&count); err != nil {
			return err
		}
		assert.Equal(t, 0, count)
		return nil
	}))
}

func TestWriteDBIssuesStatementsDirectly(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_, err := st.WriteDB().ExecContext(ctx, "INSERT INTO widgets (id, name) VALUES (3, 'c')")
	require.NoError(t, err)

	var name string
	require.NoError(t, st.WriteDB().QueryRowContext(ctx, "SELECT name FROM widgets WHERE id = 3").Scan(&name))
	assert.Equal(t, "c", name)
}

func TestCloseIsIdempotent(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, st.Close())
	require.NoError(t, st.Close())
}
