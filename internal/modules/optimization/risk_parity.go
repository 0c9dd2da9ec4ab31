package optimization

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/optimize"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/statistics"
)

// riskBudgetTolerance is how far the risk budgets may drift from summing to 1.
const riskBudgetTolerance = 1e-6

// RiskParityConfig configures the risk parity optimizer. RiskBudgets are
// per-asset target shares of total portfolio risk; nil means equal budgets.
type RiskParityConfig struct {
	RiskBudgets   map[string]float64
	WeightBounds  Bounds
	RiskFreeRate  float64
	MaxIterations int
}

// RiskParityOptimizer allocates weights so each asset's contribution to
// portfolio risk matches its target budget.
//
// Weight bounds are enforced through a penalty term added to the objective
// rather than as hard solver constraints. That keeps the objective smooth, at
// the cost that pre-clip weights may marginally violate the bounds; the final
// clip-and-renormalize step restores them.
type RiskParityOptimizer struct {
	core    *statistics.Core
	budgets []float64
	cfg     RiskParityConfig
	log     zerolog.Logger
}

// NewRiskParityOptimizer validates the risk budgets (must sum to 1, all
// non-negative) and builds the optimizer.
func NewRiskParityOptimizer(rm *statistics.ReturnsMatrix, cfg RiskParityConfig, log zerolog.Logger) (*RiskParityOptimizer, error) {
	symbols := rm.Symbols()
	n := len(symbols)

	if err := cfg.WeightBounds.validate(n); err != nil {
		return nil, err
	}

	budgets := make([]float64, n)
	if cfg.RiskBudgets == nil {
		for i := range budgets {
			budgets[i] = 1.0 / float64(n)
		}
	} else {
		sum := 0.0
		for i, symbol := range symbols {
			b, ok := cfg.RiskBudgets[symbol]
			if !ok {
				return nil, fmt.Errorf("%w: missing risk budget for %s", domain.ErrInvalidConfiguration, symbol)
			}
			if b < 0 {
				return nil, fmt.Errorf("%w: negative risk budget for %s", domain.ErrInvalidConfiguration, symbol)
			}
			budgets[i] = b
			sum += b
		}
		if math.Abs(sum-1) > riskBudgetTolerance {
			return nil, fmt.Errorf("%w: risk budgets sum to %v, expected 1.0", domain.ErrInvalidConfiguration, sum)
		}
	}

	return &RiskParityOptimizer{
		core:    statistics.NewCore(rm, cfg.RiskFreeRate),
		budgets: budgets,
		cfg:     cfg,
		log:     log.With().Str("component", "risk_parity").Logger(),
	}, nil
}

// Optimize minimizes the squared deviations between each asset's risk
// contribution and its target budget, subject to full investment and the
// penalty-enforced weight bounds.
func (o *RiskParityOptimizer) Optimize() (*Result, error) {
	symbols := o.core.Returns().Symbols()
	n := len(symbols)
	cov := o.core.Covariance()
	bounds := o.cfg.WeightBounds.orDefault(n)

	if n == 1 {
		weights := map[string]float64{symbols[0]: 1}
		return &Result{
			Weights:           weights,
			Metrics:           o.core.PortfolioMetrics(weights),
			RiskContributions: map[string]float64{symbols[0]: 1},
		}, nil
	}

	problem := optimize.Problem{
		Func: func(w []float64) float64 {
			sigmaW := make([]float64, n)
			variance := 0.0
			for i := 0; i < n; i++ {
				for j := 0; j < n; j++ {
					sigmaW[i] += cov[i][j] * w[j]
				}
				variance += w[i] * sigmaW[i]
			}
			sigma := math.Sqrt(math.Max(variance, 1e-18))

			obj := 0.0
			for i := 0; i < n; i++ {
				contribution := w[i] * sigmaW[i] / sigma
				d := contribution - o.budgets[i]*sigma
				obj += d * d
			}

			sum := 0.0
			for i := 0; i < n; i++ {
				sum += w[i]
			}
			obj += penaltyWeight * (sum - 1) * (sum - 1)

			for i := 0; i < n; i++ {
				if w[i] < bounds[i][0] {
					v := bounds[i][0] - w[i]
					obj += penaltyWeight * v * v
				}
				if w[i] > bounds[i][1] {
					v := w[i] - bounds[i][1]
					obj += penaltyWeight * v * v
				}
			}

			return obj
		},
	}

	initial := make([]float64, n)
	for i := range initial {
		initial[i] = 1.0 / float64(n)
	}

	maxIter := o.cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}
	settings := &optimize.Settings{MajorIterations: maxIter}

	result, err := optimize.Minimize(problem, initial, settings, &optimize.NelderMead{})
	if err != nil || !convergedStatus(result.Status) {
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

	w := finalizeWeights(result.X, bounds)
	weights := weightsToMap(symbols, w)
	metrics := o.core.PortfolioMetrics(weights)

	o.log.Debug().
		Float64("volatility", metrics.Volatility).
		Msg("Risk parity optimization complete")

	return &Result{
		Weights:           weights,
		Metrics:           metrics,
		RiskContributions: o.riskContributions(w, cov),
	}, nil
}

// riskContributions reports each asset's realized share of portfolio risk.
func (o *RiskParityOptimizer) riskContributions(w []float64, cov [][]float64) map[string]float64 {
	symbols := o.core.Returns().Symbols()
	n := len(w)

	sigmaW := make([]float64, n)
	variance := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sigmaW[i] += cov[i][j] * w[j]
		}
		variance += w[i] * sigmaW[i]
	}
	sigma := math.Sqrt(math.Max(variance, 1e-18))

	contributions := make(map[string]float64, n)
	for i, symbol := range symbols {
		contributions[symbol] = w[i] * sigmaW[i] / sigma / sigma
	}
	return contributions
}
