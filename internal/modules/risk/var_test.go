package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/statistics"
	"github.com/aristath/portfolio-engine/pkg/formulas"
)

// fixtureReturns is a 20-point sample with a known 5th percentile of -2.545.
var fixtureReturns = []float64{
	2.3, -1.2, 3.4, 0.5, -2.1, 1.8, -0.9, 1.2, -3.4, 2.5,
	1.1, -0.8, -2.2, 1.5, 0.9, -1.7, 2.8, -0.5, 1.9, -2.5,
}

func TestHistoricalVaR_KnownFixture(t *testing.T) {
	v, err := HistoricalVaR(fixtureReturns, 0.95)
	require.NoError(t, err)

	assert.InDelta(t, -2.545, v, 1e-9)
}

func TestParametricVaR_NormalMatchesClosedForm(t *testing.T) {
	v, err := ParametricVaR(fixtureReturns, 0.95, DistributionNormal)
	require.NoError(t, err)

	mean := formulas.Mean(fixtureReturns)
	std := formulas.StdDev(fixtureReturns)
	z := -1.6448536269514729 // standard normal 5% quantile
	assert.InDelta(t, mean+z*std, v, 1e-9)

	// Empty distribution defaults to normal
	def, err := ParametricVaR(fixtureReturns, 0.95, "")
	require.NoError(t, err)
	assert.Equal(t, v, def)
}

func TestParametricVaR_StudentT(t *testing.T) {
	v, err := ParametricVaR(fixtureReturns, 0.95, DistributionStudentT)
	require.NoError(t, err)
	assert.Less(t, v, 0.0)

	_, err = ParametricVaR(fixtureReturns, 0.95, "cauchy")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestModifiedVaR_SmallSampleFallsBackToParametric(t *testing.T) {
	small := []float64{0.01, -0.02, 0.005}

	modified, err := ModifiedVaR(small, 0.95)
	require.NoError(t, err)

	parametric, err := ParametricVaR(small, 0.95, DistributionNormal)
	require.NoError(t, err)

	assert.Equal(t, parametric, modified, "fewer than 4 observations cannot feed Cornish-Fisher")
}

func TestConditionalVaR_NeverAboveVaR(t *testing.T) {
	for _, method := range []Method{MethodHistorical, MethodParametric, MethodModified} {
		v, err := VaR(fixtureReturns, 0.95, method, DistributionNormal)
		require.NoError(t, err, method)

		cvar, err := ConditionalVaR(fixtureReturns, 0.95, method)
		require.NoError(t, err, method)

		assert.LessOrEqual(t, cvar, v+1e-12, "CVaR must be at least as extreme as VaR (%s)", method)
	}
}

func TestVaR_ConfidenceValidation(t *testing.T) {
	for _, confidence := range []float64{0, 1, 1.5, -0.1} {
		_, err := HistoricalVaR(fixtureReturns, confidence)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, "confidence %v", confidence)
	}

	_, err := VaR(fixtureReturns, 0.95, "bootstrap", DistributionNormal)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = HistoricalVaR([]float64{0.01}, 0.95)
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "single observation")
}

func TestCalculate_ScalesWithHorizon(t *testing.T) {
	oneDay, err := Calculate(fixtureReturns, 0.95, MethodHistorical, DistributionNormal, 1)
	require.NoError(t, err)

	fourDay, err := Calculate(fixtureReturns, 0.95, MethodHistorical, DistributionNormal, 4)
	require.NoError(t, err)

	assert.InDelta(t, 2*oneDay.VaR, fourDay.VaR, 1e-9, "sqrt-of-time scaling")
	assert.InDelta(t, 2*oneDay.CVaR, fourDay.CVaR, 1e-9)
	assert.Equal(t, MethodHistorical, oneDay.Method)
	assert.Equal(t, 0.95, oneDay.ConfidenceLevel)
}

func TestStressTest_ShiftsVaRByShock(t *testing.T) {
	series := make([]float64, len(fixtureReturns))
	for i, r := range fixtureReturns {
		series[i] = r / 100
	}
	rm, err := statistics.NewReturnsMatrix(map[string][]float64{"PORT": series}, nil)
	require.NoError(t, err)

	weights := map[string]float64{"PORT": 1}
	results, err := StressTest(rm, weights, map[string]float64{
		"baseline":     0,
		"market_crash": -0.05,
	}, 0.95)
	require.NoError(t, err)

	// A flat shock shifts the whole distribution, so parametric VaR moves by
	// exactly the shock.
	assert.InDelta(t, results["baseline"]-0.05, results["market_crash"], 1e-9)
}

func TestStressTest_Validation(t *testing.T) {
	_, err := StressTest(nil, nil, map[string]float64{"x": 0}, 0.95)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	rm, err := statistics.NewReturnsMatrix(map[string][]float64{"A": {0.01, -0.01, 0.02}}, nil)
	require.NoError(t, err)

	_, err = StressTest(rm, map[string]float64{"A": 1}, nil, 2)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
