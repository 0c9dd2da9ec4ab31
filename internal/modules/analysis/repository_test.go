package analysis

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-engine/internal/database"
	"github.com/aristath/portfolio-engine/internal/domain"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "analytics.db"),
		Profile: database.ProfileCache,
		Name:    "analytics",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo, err := NewRepository(db, zerolog.Nop())
	require.NoError(t, err)
	return repo
}

func TestRepository_SaveAndGetRoundtrip(t *testing.T) {
	repo := testRepo(t)

	payload := map[string]float64{"AAA": 0.6, "BBB": 0.4}
	id, err := repo.Save(KindOptimization, []string{"AAA", "BBB"}, payload)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	record, err := repo.Get(id)
	require.NoError(t, err)

	assert.Equal(t, id, record.ID)
	assert.Equal(t, KindOptimization, record.Kind)
	assert.Equal(t, []string{"AAA", "BBB"}, record.Symbols)
	assert.NotNil(t, record.Result)
	assert.WithinDuration(t, time.Now(), record.CreatedAt, time.Minute)
}

func TestRepository_GetUnknownID(t *testing.T) {
	repo := testRepo(t)

	_, err := repo.Get("no-such-id")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRepository_ListNewestFirstWithoutPayload(t *testing.T) {
	repo := testRepo(t)

	_, err := repo.Save(KindRisk, []string{"AAA"}, map[string]float64{"var": -0.02})
	require.NoError(t, err)
	_, err = repo.Save(KindSimulation, []string{"BBB"}, map[string]float64{"ev": 10100})
	require.NoError(t, err)

	records, err := repo.List(10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	for _, rec := range records {
		assert.Nil(t, rec.Result, "listings omit payloads")
		assert.NotEmpty(t, rec.ID)
	}
}

func TestRepository_DeleteOlderThan(t *testing.T) {
	repo := testRepo(t)

	id, err := repo.Save(KindFrontier, []string{"AAA"}, map[string]int{"points": 20})
	require.NoError(t, err)

	// Nothing is older than an hour ago
	deleted, err := repo.DeleteOlderThan(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, deleted)

	// Everything is older than an hour from now
	deleted, err = repo.DeleteOlderThan(time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	_, err = repo.Get(id)
	assert.Error(t, err)
}

func TestCleanupJob_PurgesExpiredResults(t *testing.T) {
	repo := testRepo(t)

	_, err := repo.Save(KindRisk, []string{"AAA"}, map[string]float64{"var": -0.01})
	require.NoError(t, err)

	// Zero retention disables the purge entirely
	job := NewCleanupJob(repo, 0, zerolog.Nop())
	require.NoError(t, job.Run())

	records, err := repo.List(10)
	require.NoError(t, err)
	assert.Len(t, records, 1, "disabled retention must not delete anything")

	// A positive retention keeps fresh records too
	job = NewCleanupJob(repo, 30, zerolog.Nop())
	require.NoError(t, job.Run())

	records, err = repo.List(10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
