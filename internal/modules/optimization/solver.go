package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/pkg/formulas"
)

// mvObjective selects what the shared mean-variance solver optimizes.
type mvObjective int

const (
	objectiveMaxSharpe mvObjective = iota
	objectiveMinVolatility
	objectiveMaxReturn
)

// mvProblem is the shared constrained problem solved by the mean-variance
// and Black-Litterman optimizers and the frontier sweep. Expected returns and
// covariance are periodic; targets are annualized.
type mvProblem struct {
	mu               []float64
	cov              [][]float64
	bounds           Bounds
	objective        mvObjective
	targetReturn     *float64
	targetVolatility *float64
	riskFreeRate     float64
	maxIterations    int
}

// penaltyWeight keeps the equality constraints (full investment, return or
// volatility target) soft but dominant, so the objective stays smooth for the
// solver. Same approach as quadratic penalty methods in the literature.
const penaltyWeight = 1000.0

// defaultMaxIterations bounds the solver when the caller does not.
const defaultMaxIterations = 1000

// solveMeanVariance runs the penalty-method solver and returns weights in
// matrix symbol order, renormalized to sum exactly to 1. Non-convergence under
// both methods is reported as ErrOptimizationFailed with the solver status.
func solveMeanVariance(p mvProblem) ([]float64, error) {
	n := len(p.mu)
	if n == 0 {
		return nil, fmt.Errorf("%w: no assets to optimize", domain.ErrInvalidInput)
	}
	bounds := p.bounds.orDefault(n)

	if n == 1 {
		return []float64{1}, nil
	}

	annualReturn := func(w []float64) float64 {
		periodic := 0.0
		for i := 0; i < n; i++ {
			periodic += p.mu[i] * w[i]
		}
		return formulas.AnnualizeReturn(periodic)
	}
	annualVolatility := func(w []float64) float64 {
		variance := 0.0
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				variance += w[i] * w[j] * p.cov[i][j]
			}
		}
		return formulas.AnnualizeVolatility(math.Sqrt(math.Max(variance, 0)))
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			w := projectToBounds(x, bounds)

			ret := annualReturn(w)
			vol := annualVolatility(w)

			var obj float64
			switch p.objective {
			case objectiveMinVolatility:
				obj = vol
			case objectiveMaxReturn:
				obj = -ret
			default: // max Sharpe
				obj = -(ret - p.riskFreeRate) / (vol + sharpeGuard)
			}

			sum := 0.0
			for i := 0; i < n; i++ {
				sum += w[i]
			}
			obj += penaltyWeight * (sum - 1) * (sum - 1)

			if p.targetReturn != nil {
				d := ret - *p.targetReturn
				obj += penaltyWeight * d * d
			}
			if p.targetVolatility != nil {
				d := vol - *p.targetVolatility
				obj += penaltyWeight * d * d
			}

			return obj
		},
	}

	initial := make([]float64, n)
	for i := range initial {
		initial[i] = 1.0 / float64(n)
	}

	maxIter := p.maxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}
	settings := &optimize.Settings{MajorIterations: maxIter}

	result, err := optimize.Minimize(problem, initial, settings, &optimize.NelderMead{})
	if err != nil || !convergedStatus(result.Status) {
		// Gradient-based retry; gonum falls back to finite differences for the
		// missing gradient.
		bfgsResult, bfgsErr := optimize.Minimize(problem, initial, settings, &optimize.BFGS{})
		if bfgsErr != nil {
			if err != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrOptimizationFailed, err)
			}
			return nil, fmt.Errorf("%w: %v", domain.ErrOptimizationFailed, bfgsErr)
		}
		if !convergedStatus(bfgsResult.Status) {
			return nil, fmt.Errorf("%w: status=%v", domain.ErrOptimizationFailed, bfgsResult.Status)
		}
		result = bfgsResult
	}

	return finalizeWeights(result.X, bounds), nil
}

// sharpeGuard mirrors the epsilon used in PortfolioMetrics.
const sharpeGuard = 1e-8

// convergedStatus accepts the statuses the solver reports on success.
func convergedStatus(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence, optimize.FunctionThreshold:
		return true
	default:
		return false
	}
}

// projectToBounds clips each weight into its box bound.
func projectToBounds(x []float64, bounds Bounds) []float64 {
	proj := make([]float64, len(x))
	for i := range x {
		proj[i] = math.Max(bounds[i][0], math.Min(bounds[i][1], x[i]))
	}
	return proj
}

// finalizeWeights projects the solver output to bounds, floors tiny negatives
// and renormalizes so the weights sum exactly to 1.
func finalizeWeights(x []float64, bounds Bounds) []float64 {
	w := projectToBounds(x, bounds)

	sum := 0.0
	for i := range w {
		if w[i] < 0 && w[i] > -1e-12 {
			w[i] = 0
		}
		sum += w[i]
	}
	if sum == 0 {
		// Degenerate solver output; fall back to equal weights.
		for i := range w {
			w[i] = 1.0 / float64(len(w))
		}
		return w
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

// weightsToMap pairs solver-order weights with their symbols.
func weightsToMap(symbols []string, w []float64) map[string]float64 {
	out := make(map[string]float64, len(symbols))
	for i, symbol := range symbols {
		out[symbol] = w[i]
	}
	return out
}
