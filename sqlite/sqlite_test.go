package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/fwojciec/sitediff/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDB_Open(t *testing.T) {
	t.Parallel()

	t.Run("migrates schema on first open", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		db := openTestDB(t)

		for _, table := range []string{"seen_items", "site_runs", "records"} {
			var n int
			err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n)
			require.NoError(t, err, table)
		}
		v, err := db.Version(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, v)
	})

	t.Run("reopening does not rerun migrations", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		dbPath := filepath.Join(t.TempDir(), "state.db")
		db := sqlite.NewDB(dbPath)
		require.NoError(t, db.Open(ctx))
		require.NoError(t, db.Close())

		db = sqlite.NewDB(dbPath)
		require.NoError(t, db.Open(ctx))
		defer db.Close()
		v, err := db.Version(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, v)
	})

	t.Run("rejects a database from a newer build", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		dbPath := filepath.Join(t.TempDir(), "state.db")
		db := sqlite.NewDB(dbPath)
		require.NoError(t, db.Open(ctx))
		rows, err := db.QueryContext(ctx, "PRAGMA user_version = 99")
		require.NoError(t, err)
		require.NoError(t, rows.Close())
		require.NoError(t, db.Close())

		db = sqlite.NewDB(dbPath)
		err = db.Open(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "newer than this build")
	})

	t.Run("returns error for invalid path", func(t *testing.T) {
		t.Parallel()

		db := sqlite.NewDB("/nonexistent/path/db.sqlite")
		require.Error(t, db.Open(context.Background()))
	})

	t.Run("enables WAL mode for file-based databases", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		db := sqlite.NewDB(filepath.Join(t.TempDir(), "test.db"))
		require.NoError(t, db.Open(ctx))
		defer db.Close()

		var journalMode string
		require.NoError(t, db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode))
		assert.Equal(t, "wal", journalMode)
	})

	t.Run("close without open is a no-op", func(t *testing.T) {
		t.Parallel()

		db := sqlite.NewDB(":memory:")
		require.NoError(t, db.Close())
	})
}

func openTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db := sqlite.NewDB(":memory:")
	require.NoError(t, db.Open(context.Background()))
	t.Cleanup(func() { db.Close() })
	return db
}
