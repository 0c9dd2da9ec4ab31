package history

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-engine/internal/database"
	"github.com/aristath/portfolio-engine/internal/domain"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "history.db"),
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo, err := NewRepository(db, zerolog.Nop())
	require.NoError(t, err)
	return repo
}

func TestRepository_SaveAndGetAscending(t *testing.T) {
	repo := testRepo(t)

	err := repo.SaveDailyPrices("AAA", []DailyPrice{
		{Date: "2024-01-03", Close: 102},
		{Date: "2024-01-01", Close: 100},
		{Date: "2024-01-02", Close: 101},
	})
	require.NoError(t, err)

	prices, err := repo.GetDailyPrices("AAA", 0)
	require.NoError(t, err)
	require.Len(t, prices, 3)

	assert.Equal(t, "2024-01-01", prices[0].Date)
	assert.Equal(t, "2024-01-03", prices[2].Date)
	assert.Equal(t, 102.0, prices[2].Close)
}

func TestRepository_UpsertOverwrites(t *testing.T) {
	repo := testRepo(t)

	require.NoError(t, repo.SaveDailyPrices("AAA", []DailyPrice{{Date: "2024-01-01", Close: 100}}))
	require.NoError(t, repo.SaveDailyPrices("AAA", []DailyPrice{{Date: "2024-01-01", Close: 105}}))

	prices, err := repo.GetDailyPrices("AAA", 0)
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.Equal(t, 105.0, prices[0].Close)
}

func TestRepository_LimitTakesMostRecent(t *testing.T) {
	repo := testRepo(t)

	require.NoError(t, repo.SaveDailyPrices("AAA", []DailyPrice{
		{Date: "2024-01-01", Close: 100},
		{Date: "2024-01-02", Close: 101},
		{Date: "2024-01-03", Close: 102},
		{Date: "2024-01-04", Close: 103},
	}))

	prices, err := repo.GetDailyPrices("AAA", 2)
	require.NoError(t, err)
	require.Len(t, prices, 2)

	// Most recent two, still ascending
	assert.Equal(t, "2024-01-03", prices[0].Date)
	assert.Equal(t, "2024-01-04", prices[1].Date)
}

func TestRepository_SymbolsAndCounts(t *testing.T) {
	repo := testRepo(t)

	require.NoError(t, repo.SaveDailyPrices("BBB", []DailyPrice{{Date: "2024-01-01", Close: 50}}))
	require.NoError(t, repo.SaveDailyPrices("AAA", []DailyPrice{
		{Date: "2024-01-01", Close: 100},
		{Date: "2024-01-02", Close: 101},
	}))

	symbols, err := repo.Symbols()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, symbols)

	count, err := repo.CountPrices("AAA")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestService_BuildReturnsMatrixWithForwardFill(t *testing.T) {
	repo := testRepo(t)
	svc := NewService(repo, zerolog.Nop())

	require.NoError(t, repo.SaveDailyPrices("FULL", []DailyPrice{
		{Date: "2024-01-01", Close: 100},
		{Date: "2024-01-02", Close: 110},
		{Date: "2024-01-03", Close: 99},
		{Date: "2024-01-04", Close: 101},
	}))
	// GAPPY has no close on 2024-01-03
	require.NoError(t, repo.SaveDailyPrices("GAPPY", []DailyPrice{
		{Date: "2024-01-01", Close: 50},
		{Date: "2024-01-02", Close: 55},
		{Date: "2024-01-04", Close: 52},
	}))

	rm, err := svc.BuildReturnsMatrix([]string{"FULL", "GAPPY"}, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, rm.NumAssets())
	assert.Equal(t, 3, rm.Periods(), "4 aligned dates produce 3 returns")

	gappy, err := rm.Series("GAPPY")
	require.NoError(t, err)
	assert.InDelta(t, 0.10, gappy[0], 1e-12)
	assert.InDelta(t, 0.0, gappy[1], 1e-12, "forward-filled day has zero return")
	assert.InDelta(t, 52.0/55.0-1, gappy[2], 1e-12)
}

func TestService_RejectsThinHistory(t *testing.T) {
	repo := testRepo(t)
	svc := NewService(repo, zerolog.Nop())

	require.NoError(t, repo.SaveDailyPrices("THIN", []DailyPrice{
		{Date: "2024-01-01", Close: 100},
		{Date: "2024-01-02", Close: 101},
	}))

	_, err := svc.BuildReturnsMatrix([]string{"THIN"}, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.BuildReturnsMatrix(nil, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.BuildReturnsMatrix([]string{"MISSING"}, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
