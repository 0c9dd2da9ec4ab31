package statistics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/pkg/formulas"
)

func TestNewReturnsMatrix_SortsSymbolsWhenUnordered(t *testing.T) {
	rm, err := NewReturnsMatrix(map[string][]float64{
		"MSFT": {0.01, 0.02},
		"AAPL": {0.03, -0.01},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL", "MSFT"}, rm.Symbols())
	assert.Equal(t, 2, rm.NumAssets())
	assert.Equal(t, 2, rm.Periods())
}

func TestNewReturnsMatrix_Validation(t *testing.T) {
	_, err := NewReturnsMatrix(map[string][]float64{}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = NewReturnsMatrix(map[string][]float64{"A": {0.01}}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "single period must be rejected")

	_, err = NewReturnsMatrix(map[string][]float64{
		"A": {0.01, 0.02},
		"B": {0.01},
	}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "mismatched lengths must be rejected")

	_, err = NewReturnsMatrix(map[string][]float64{"A": {0.01, math.NaN()}}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "NaN returns must be rejected")

	_, err = NewReturnsMatrix(map[string][]float64{"A": {0.01, 0.02}}, []string{"A", "B"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "symbol without a series must be rejected")
}

func TestNewReturnsMatrix_CopiesInput(t *testing.T) {
	series := map[string][]float64{"A": {0.01, 0.02}}
	rm, err := NewReturnsMatrix(series, nil)
	require.NoError(t, err)

	series["A"][0] = 99

	got, err := rm.Series("A")
	require.NoError(t, err)
	assert.Equal(t, 0.01, got[0], "matrix must own its data")
}

func TestPortfolioReturns_WeightedAndNormalized(t *testing.T) {
	rm, err := NewReturnsMatrix(map[string][]float64{
		"A": {0.02, -0.02},
		"B": {0.04, 0.00},
	}, nil)
	require.NoError(t, err)

	// Weights 2:2 normalize to 0.5/0.5
	got := rm.PortfolioReturns(map[string]float64{"A": 2, "B": 2})
	assert.InDelta(t, 0.03, got[0], 1e-12)
	assert.InDelta(t, -0.01, got[1], 1e-12)
}

func TestNormalizeWeights_ZeroSumUnchanged(t *testing.T) {
	weights := map[string]float64{"A": 0, "B": 0}
	assert.Equal(t, weights, NormalizeWeights(weights))
}

func TestCore_SingleAssetMetrics(t *testing.T) {
	rm, err := NewReturnsMatrix(map[string][]float64{
		"A": {0.01, 0.01, 0.01},
	}, nil)
	require.NoError(t, err)

	core := NewCore(rm, 0.02)
	metrics := core.PortfolioMetrics(map[string]float64{"A": 1})

	assert.InDelta(t, formulas.AnnualizeReturn(0.01), metrics.ExpectedReturn, 1e-9)
	assert.InDelta(t, 0, metrics.Volatility, 1e-12, "constant returns have zero volatility")
	assert.False(t, math.IsNaN(metrics.SharpeRatio), "Sharpe must stay finite at zero volatility")
	assert.Equal(t, 0.02, metrics.RiskFreeRate)
}

func TestCore_CovarianceSymmetric(t *testing.T) {
	rm, err := NewReturnsMatrix(map[string][]float64{
		"A": {0.01, -0.02, 0.03, 0.00},
		"B": {-0.01, 0.02, 0.01, -0.03},
		"C": {0.02, 0.01, -0.01, 0.02},
	}, nil)
	require.NoError(t, err)

	cov := NewCore(rm, 0).Covariance()
	for i := range cov {
		for j := range cov {
			assert.InDelta(t, cov[j][i], cov[i][j], 1e-15)
		}
	}
}

func TestCore_ReturnsCopies(t *testing.T) {
	rm, err := NewReturnsMatrix(map[string][]float64{
		"A": {0.01, -0.02, 0.03},
		"B": {0.00, 0.01, -0.01},
	}, nil)
	require.NoError(t, err)

	core := NewCore(rm, 0)

	cov := core.Covariance()
	cov[0][0] = 999
	assert.NotEqual(t, 999.0, core.Covariance()[0][0])

	mu := core.ExpectedReturns()
	mu["A"] = 999
	assert.NotEqual(t, 999.0, core.ExpectedReturns()["A"])
}
