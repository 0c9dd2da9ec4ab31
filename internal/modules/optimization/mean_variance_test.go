package optimization

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-engine/internal/domain"
)

func TestMeanVariance_SingleAssetGetsFullWeight(t *testing.T) {
	rm := testMatrix(t, map[string][]float64{
		"ONLY": {0.01, 0.02, -0.01, 0.015, 0.005},
	})

	opt, err := NewMeanVarianceOptimizer(rm, MeanVarianceConfig{}, testLogger())
	require.NoError(t, err)

	result, err := opt.Optimize()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, result.Weights["ONLY"], 1e-9)
}

func TestMeanVariance_MaxSharpeProducesValidWeights(t *testing.T) {
	rm := threeAssetMatrix(t)

	opt, err := NewMeanVarianceOptimizer(rm, MeanVarianceConfig{RiskFreeRate: 0.02}, testLogger())
	require.NoError(t, err)

	result, err := opt.Optimize()
	require.NoError(t, err)

	assertValidWeights(t, result.Weights, nil, rm.Symbols())
	assert.Greater(t, result.Metrics.Volatility, 0.0)
}

func TestMeanVariance_RespectsWeightBounds(t *testing.T) {
	rm := threeAssetMatrix(t)
	bounds := Bounds{{0, 0.5}, {0, 0.5}, {0, 0.5}}

	opt, err := NewMeanVarianceOptimizer(rm, MeanVarianceConfig{WeightBounds: bounds}, testLogger())
	require.NoError(t, err)

	result, err := opt.Optimize()
	require.NoError(t, err)

	assertValidWeights(t, result.Weights, bounds, rm.Symbols())
}

func TestMeanVariance_BothTargetsConflict(t *testing.T) {
	rm := threeAssetMatrix(t)

	targetReturn := 0.10
	targetVol := 0.15
	_, err := NewMeanVarianceOptimizer(rm, MeanVarianceConfig{
		TargetReturn:     &targetReturn,
		TargetVolatility: &targetVol,
	}, testLogger())

	assert.ErrorIs(t, err, domain.ErrConflictingConstraint)
}

func TestMeanVariance_BadBoundsRejected(t *testing.T) {
	rm := threeAssetMatrix(t)

	_, err := NewMeanVarianceOptimizer(rm, MeanVarianceConfig{
		WeightBounds: Bounds{{0, 1}, {0.8, 0.2}, {0, 1}},
	}, testLogger())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = NewMeanVarianceOptimizer(rm, MeanVarianceConfig{
		WeightBounds: Bounds{{0, 1}},
	}, testLogger())
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "bounds count must match asset count")
}

func TestMeanVariance_SingularCovarianceDegradesGracefully(t *testing.T) {
	// The penalty solver never inverts the covariance matrix, so duplicated
	// series either still converge or surface a documented error; they must
	// not produce an invalid portfolio.
	dup := syntheticReturns(7, 60, 0.0005, 0.012)
	rm := testMatrix(t, map[string][]float64{
		"DUP1":  dup,
		"DUP2":  append([]float64{}, dup...),
		"OTHER": syntheticReturns(8, 60, 0.0008, 0.018),
	})

	opt, err := NewMeanVarianceOptimizer(rm, MeanVarianceConfig{}, testLogger())
	require.NoError(t, err)

	result, err := opt.Optimize()
	if err != nil {
		assert.True(t,
			errors.Is(err, domain.ErrOptimizationFailed) || errors.Is(err, domain.ErrNumericalInstability),
			"unexpected failure mode: %v", err)
		return
	}
	assertValidWeights(t, result.Weights, nil, rm.Symbols())
}

func TestMeanVariance_Deterministic(t *testing.T) {
	rm := threeAssetMatrix(t)

	run := func() map[string]float64 {
		opt, err := NewMeanVarianceOptimizer(rm, MeanVarianceConfig{}, testLogger())
		require.NoError(t, err)
		result, err := opt.Optimize()
		require.NoError(t, err)
		return result.Weights
	}

	assert.Equal(t, run(), run())
}
