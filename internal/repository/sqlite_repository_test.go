package repository

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func setupSQLite(t *testing.T, path string) *SQLiteRepository {
	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.RunMigrations())
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository_InMemory(t *testing.T) {
	runRepositoryContract(t, func(t *testing.T) OrderRepository {
		return setupSQLite(t, ":memory:")
	})
}

func TestSQLiteRepository_File(t *testing.T) {
	runRepositoryContract(t, func(t *testing.T) OrderRepository {
		return setupSQLite(t, filepath.Join(t.TempDir(), "orders.db"))
	})
}

func TestSQLiteRepository_MigrationsAreRerunnable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.db")
	repo := setupSQLite(t, path)
	require.NoError(t, repo.RunMigrations())
}

func TestRebind(t *testing.T) {
	q := "SELECT a FROM t WHERE x = ? AND y IN (?, ?)"
	require.Equal(t, "SELECT a FROM t WHERE x = $1 AND y IN ($2, $3)", postgresDialect.rebind(q))
	require.Equal(t, q, sqliteDialect.rebind(q))
}
