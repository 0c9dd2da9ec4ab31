// Package risk implements the forward-looking risk engine: historical,
// parametric and Cornish-Fisher Value at Risk, Conditional VaR, scenario
// stress testing and Monte Carlo portfolio simulation.
package risk

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/statistics"
	"github.com/aristath/portfolio-engine/pkg/formulas"
)

// Method selects how VaR is estimated.
type Method string

const (
	MethodHistorical Method = "historical"
	MethodParametric Method = "parametric"
	MethodModified   Method = "modified"
)

// Distribution selects the parametric return distribution.
type Distribution string

const (
	DistributionNormal   Distribution = "normal"
	DistributionStudentT Distribution = "student_t"
)

// RiskResult is one VaR/CVaR figure for a (confidence, method) pair.
type RiskResult struct {
	VaR             float64 `json:"var"`
	CVaR            float64 `json:"cvar"`
	ConfidenceLevel float64 `json:"confidence_level"`
	TimeHorizon     int     `json:"time_horizon"`
	Method          Method  `json:"method"`
}

// validateConfidence rejects anything outside the open interval (0,1).
// Out-of-range levels are never silently clamped.
func validateConfidence(confidence float64) error {
	if confidence <= 0 || confidence >= 1 {
		return fmt.Errorf("%w: confidence %v outside (0,1)", domain.ErrInvalidInput, confidence)
	}
	return nil
}

func validateReturns(returns []float64) error {
	if len(returns) < 2 {
		return fmt.Errorf("%w: need at least 2 return observations, got %d", domain.ErrInvalidInput, len(returns))
	}
	return nil
}

// HistoricalVaR is the (1-confidence)-percentile of the empirical return
// distribution.
func HistoricalVaR(returns []float64, confidence float64) (float64, error) {
	if err := validateConfidence(confidence); err != nil {
		return 0, err
	}
	if err := validateReturns(returns); err != nil {
		return 0, err
	}
	return formulas.Percentile(returns, (1-confidence)*100), nil
}

// ParametricVaR assumes returns follow a Normal or Student-t distribution
// fitted to the sample and returns mean + q*(scale) at the (1-confidence)
// quantile.
func ParametricVaR(returns []float64, confidence float64, dist Distribution) (float64, error) {
	if err := validateConfidence(confidence); err != nil {
		return 0, err
	}
	if err := validateReturns(returns); err != nil {
		return 0, err
	}

	mean := formulas.Mean(returns)
	std := formulas.StdDev(returns)

	switch dist {
	case "", DistributionNormal:
		z := distuv.UnitNormal.Quantile(1 - confidence)
		return mean + z*std, nil
	case DistributionStudentT:
		nu := fitStudentTDof(returns)
		// Match the sample variance: a standard t has variance nu/(nu-2).
		scale := std * math.Sqrt((nu-2)/nu)
		q := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: nu}.Quantile(1 - confidence)
		return mean + q*scale, nil
	default:
		return 0, fmt.Errorf("%w: unknown distribution %q", domain.ErrInvalidInput, dist)
	}
}

// fitStudentTDof estimates degrees of freedom by moment-matching the sample
// excess kurtosis (a t distribution has excess kurtosis 6/(nu-4)). Thin-tailed
// samples fall back to a high nu that is effectively normal.
func fitStudentTDof(returns []float64) float64 {
	kurt := formulas.ExcessKurtosis(returns)
	if kurt <= 0 {
		return 30
	}
	nu := 4 + 6/kurt
	return math.Max(nu, 4.5)
}

// ModifiedVaR applies the Cornish-Fisher expansion, adjusting the normal
// z-score with sample skewness and excess kurtosis. Needs at least 4
// observations; smaller samples fall back to the parametric normal estimate.
func ModifiedVaR(returns []float64, confidence float64) (float64, error) {
	if err := validateConfidence(confidence); err != nil {
		return 0, err
	}
	if err := validateReturns(returns); err != nil {
		return 0, err
	}

	if len(returns) < 4 {
		return ParametricVaR(returns, confidence, DistributionNormal)
	}

	mean := formulas.Mean(returns)
	std := formulas.StdDev(returns)
	skew := formulas.Skewness(returns)
	kurt := formulas.ExcessKurtosis(returns)

	z := distuv.UnitNormal.Quantile(1 - confidence)
	zcf := z +
		(z*z-1)*skew/6 +
		(z*z*z-3*z)*kurt/24 -
		(2*z*z*z-5*z)*skew*skew/36

	return mean + zcf*std, nil
}

// VaR computes Value at Risk with the requested method.
func VaR(returns []float64, confidence float64, method Method, dist Distribution) (float64, error) {
	switch method {
	case MethodHistorical:
		return HistoricalVaR(returns, confidence)
	case MethodParametric:
		return ParametricVaR(returns, confidence, dist)
	case MethodModified:
		return ModifiedVaR(returns, confidence)
	default:
		return 0, fmt.Errorf("%w: unknown VaR method %q", domain.ErrInvalidInput, method)
	}
}

// ConditionalVaR is the expected return in the tail at or below the VaR
// threshold. Parametric uses the closed form mean - sigma*phi(z_a)/a; the
// other methods average the empirical tail.
func ConditionalVaR(returns []float64, confidence float64, method Method) (float64, error) {
	if err := validateConfidence(confidence); err != nil {
		return 0, err
	}
	if err := validateReturns(returns); err != nil {
		return 0, err
	}

	if method == MethodParametric {
		mean := formulas.Mean(returns)
		std := formulas.StdDev(returns)
		alpha := 1 - confidence
		z := distuv.UnitNormal.Quantile(alpha)
		return mean - std*distuv.UnitNormal.Prob(z)/alpha, nil
	}

	threshold, err := VaR(returns, confidence, method, DistributionNormal)
	if err != nil {
		return 0, err
	}

	sum, count := 0.0, 0
	for _, r := range returns {
		if r <= threshold {
			sum += r
			count++
		}
	}
	if count == 0 {
		// The Cornish-Fisher threshold can sit below every observation.
		return threshold, nil
	}
	return sum / float64(count), nil
}

// Calculate produces a full RiskResult. Horizons beyond one period scale both
// figures by sqrt(horizon).
func Calculate(returns []float64, confidence float64, method Method, dist Distribution, timeHorizon int) (*RiskResult, error) {
	if timeHorizon <= 0 {
		timeHorizon = 1
	}

	valueAtRisk, err := VaR(returns, confidence, method, dist)
	if err != nil {
		return nil, err
	}
	cvar, err := ConditionalVaR(returns, confidence, method)
	if err != nil {
		return nil, err
	}

	if timeHorizon > 1 {
		scale := math.Sqrt(float64(timeHorizon))
		valueAtRisk *= scale
		cvar *= scale
	}

	return &RiskResult{
		VaR:             valueAtRisk,
		CVaR:            cvar,
		ConfidenceLevel: confidence,
		TimeHorizon:     timeHorizon,
		Method:          method,
	}, nil
}

// StressTest applies each named scenario as a flat return shock to the
// weighted portfolio series and reports the parametric VaR of the shocked
// distribution, one figure per scenario.
func StressTest(rm *statistics.ReturnsMatrix, weights map[string]float64, scenarios map[string]float64, confidence float64) (map[string]float64, error) {
	if err := validateConfidence(confidence); err != nil {
		return nil, err
	}
	if rm == nil {
		return nil, fmt.Errorf("%w: no returns matrix", domain.ErrInvalidInput)
	}

	portfolio := rm.PortfolioReturns(weights)
	results := make(map[string]float64, len(scenarios))

	for name, shock := range scenarios {
		shocked := make([]float64, len(portfolio))
		for i, r := range portfolio {
			shocked[i] = r + shock
		}
		v, err := ParametricVaR(shocked, confidence, DistributionNormal)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", name, err)
		}
		results[name] = v
	}

	return results, nil
}
