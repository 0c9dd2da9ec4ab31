package optimization

import (
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-engine/internal/modules/statistics"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testMatrix(t *testing.T, series map[string][]float64) *statistics.ReturnsMatrix {
	t.Helper()
	rm, err := statistics.NewReturnsMatrix(series, nil)
	require.NoError(t, err)
	return rm
}

// syntheticReturns draws a reproducible daily return series
func syntheticReturns(seed int64, n int, mu, sigma float64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = mu + sigma*rng.NormFloat64()
	}
	return out
}

// threeAssetMatrix is a well-conditioned universe shared across tests
func threeAssetMatrix(t *testing.T) *statistics.ReturnsMatrix {
	t.Helper()
	return testMatrix(t, map[string][]float64{
		"AAA": syntheticReturns(1, 120, 0.0008, 0.010),
		"BBB": syntheticReturns(2, 120, 0.0005, 0.015),
		"CCC": syntheticReturns(3, 120, 0.0010, 0.020),
	})
}

func assertValidWeights(t *testing.T, weights map[string]float64, bounds Bounds, symbols []string) {
	t.Helper()

	sum := 0.0
	for i, symbol := range symbols {
		w, ok := weights[symbol]
		require.True(t, ok, "missing weight for %s", symbol)
		sum += w

		lo, hi := 0.0, 1.0
		if len(bounds) == len(symbols) {
			lo, hi = bounds[i][0], bounds[i][1]
		}
		require.GreaterOrEqual(t, w, lo-1e-9, "weight for %s below lower bound", symbol)
		require.LessOrEqual(t, w, hi+1e-9, "weight for %s above upper bound", symbol)
	}
	require.InDelta(t, 1.0, sum, 1e-6, "weights must sum to 1")
}
