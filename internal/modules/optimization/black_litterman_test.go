package optimization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-engine/internal/domain"
)

func TestBlackLitterman_NoViewsReproducesEquilibrium(t *testing.T) {
	rm := threeAssetMatrix(t)

	opt, err := NewBlackLittermanOptimizer(rm, BlackLittermanConfig{}, testLogger())
	require.NoError(t, err)

	equilibrium := opt.EquilibriumReturns()
	posterior, err := opt.PosteriorReturns()
	require.NoError(t, err)

	assert.Equal(t, equilibrium, posterior, "empty view list must reproduce the prior exactly")
}

func TestBlackLitterman_ConfidentViewShiftsPosterior(t *testing.T) {
	rm := threeAssetMatrix(t)

	base, err := NewBlackLittermanOptimizer(rm, BlackLittermanConfig{}, testLogger())
	require.NoError(t, err)
	equilibrium := base.EquilibriumReturns()

	opt, err := NewBlackLittermanOptimizer(rm, BlackLittermanConfig{
		Views: []InvestorView{{
			Assets:         []string{"AAA"},
			Weights:        []float64{1},
			ExpectedReturn: equilibrium["AAA"] + 0.005,
			Confidence:     0.95,
		}},
	}, testLogger())
	require.NoError(t, err)

	posterior, err := opt.PosteriorReturns()
	require.NoError(t, err)

	assert.Greater(t, posterior["AAA"], equilibrium["AAA"],
		"a confident bullish view must lift the posterior above equilibrium")
}

func TestBlackLitterman_MarketCapWeightsDriveEquilibrium(t *testing.T) {
	rm := threeAssetMatrix(t)

	equal, err := NewBlackLittermanOptimizer(rm, BlackLittermanConfig{}, testLogger())
	require.NoError(t, err)

	tilted, err := NewBlackLittermanOptimizer(rm, BlackLittermanConfig{
		MarketCaps: map[string]float64{"AAA": 1000, "BBB": 100, "CCC": 100},
	}, testLogger())
	require.NoError(t, err)

	assert.NotEqual(t, equal.EquilibriumReturns(), tilted.EquilibriumReturns(),
		"market caps must change the implied prior")
}

func TestBlackLitterman_Validation(t *testing.T) {
	rm := threeAssetMatrix(t)

	_, err := NewBlackLittermanOptimizer(rm, BlackLittermanConfig{
		MarketCaps: map[string]float64{"AAA": -5},
	}, testLogger())
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "non-positive market cap")

	_, err = NewBlackLittermanOptimizer(rm, BlackLittermanConfig{
		MarketCaps: map[string]float64{"ZZZ": 100},
	}, testLogger())
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "unknown market cap symbol")

	_, err = NewBlackLittermanOptimizer(rm, BlackLittermanConfig{
		Views: []InvestorView{{Assets: []string{"AAA"}, Weights: []float64{1, 1}, ExpectedReturn: 0.01, Confidence: 0.5}},
	}, testLogger())
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "assets/weights length mismatch")

	_, err = NewBlackLittermanOptimizer(rm, BlackLittermanConfig{
		Views: []InvestorView{{Assets: []string{"AAA"}, Weights: []float64{1}, ExpectedReturn: 0.01, Confidence: 1.5}},
	}, testLogger())
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "confidence outside (0,1]")

	_, err = NewBlackLittermanOptimizer(rm, BlackLittermanConfig{
		Views: []InvestorView{{Assets: nil, Weights: nil, ExpectedReturn: 0.01, Confidence: 0.5}},
	}, testLogger())
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "view without assets")
}

func TestBlackLitterman_RequiresCapsForAllAssets(t *testing.T) {
	rm := threeAssetMatrix(t)

	_, err := NewBlackLittermanOptimizer(rm, BlackLittermanConfig{
		MarketCaps: map[string]float64{"AAA": 100},
	}, testLogger())
	assert.ErrorIs(t, err, domain.ErrInvalidInput,
		"partial market caps would give uncovered assets zero market weight")
}

func TestBlackLitterman_SingularCovarianceWithViewsFails(t *testing.T) {
	// Duplicated series make tau*Sigma rank deficient, and the master formula
	// needs its inverse as soon as a view is present.
	dup := syntheticReturns(7, 60, 0.0005, 0.012)
	rm := testMatrix(t, map[string][]float64{
		"DUP1":  dup,
		"DUP2":  append([]float64{}, dup...),
		"OTHER": syntheticReturns(8, 60, 0.0008, 0.018),
	})

	opt, err := NewBlackLittermanOptimizer(rm, BlackLittermanConfig{
		Views: []InvestorView{{
			Assets:         []string{"OTHER"},
			Weights:        []float64{1},
			ExpectedReturn: 0.001,
			Confidence:     0.5,
		}},
	}, testLogger())
	require.NoError(t, err)

	_, err = opt.Optimize()
	assert.ErrorIs(t, err, domain.ErrNumericalInstability,
		"unlike HRP, Black-Litterman cannot survive a singular covariance matrix")
}

func TestBlackLitterman_OptimizeProducesValidPortfolio(t *testing.T) {
	rm := threeAssetMatrix(t)

	opt, err := NewBlackLittermanOptimizer(rm, BlackLittermanConfig{
		MarketCaps: map[string]float64{"AAA": 500, "BBB": 300, "CCC": 200},
		Views: []InvestorView{{
			Assets:         []string{"BBB"},
			Weights:        []float64{1},
			ExpectedReturn: 0.002,
			Confidence:     0.6,
		}},
	}, testLogger())
	require.NoError(t, err)

	result, err := opt.Optimize()
	require.NoError(t, err)

	assertValidWeights(t, result.Weights, nil, rm.Symbols())
	require.NotNil(t, result.EquilibriumReturns)
	assert.Len(t, result.EquilibriumReturns, rm.NumAssets())
}
