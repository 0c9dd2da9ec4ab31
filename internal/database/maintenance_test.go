package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T, name string, profile DatabaseProfile) *DB {
	t.Helper()

	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestHealthCheck_FreshDatabase(t *testing.T) {
	db := testDB(t, "fresh", ProfileStandard)
	assert.NoError(t, db.HealthCheck(context.Background()))
}

func TestMaintenanceJob_RunsOverBothProfiles(t *testing.T) {
	standard := testDB(t, "standard", ProfileStandard)
	cache := testDB(t, "cache", ProfileCache)

	_, err := standard.Exec(`CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)`)
	require.NoError(t, err)
	_, err = standard.Exec(`INSERT INTO kv (k, v) VALUES ('a', 'b')`)
	require.NoError(t, err)
	_, err = standard.Exec(`DELETE FROM kv`)
	require.NoError(t, err)

	job := NewMaintenanceJob(zerolog.Nop(), standard, cache)
	assert.Equal(t, "database_maintenance", job.Name())
	assert.NoError(t, job.Run())

	// The databases stay usable afterwards
	assert.NoError(t, standard.QuickCheck(context.Background()))
	assert.NoError(t, cache.QuickCheck(context.Background()))
}
