package optimization

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/statistics"
)

// MeanVarianceConfig configures the Markowitz optimizer. TargetReturn and
// TargetVolatility (both annualized) are mutually exclusive; leaving both nil
// maximizes the Sharpe ratio.
type MeanVarianceConfig struct {
	WeightBounds     Bounds
	TargetReturn     *float64
	TargetVolatility *float64
	RiskFreeRate     float64
	MaxIterations    int
}

// MeanVarianceOptimizer is the classic Markowitz optimizer over the sample
// moments of a returns matrix.
type MeanVarianceOptimizer struct {
	core *statistics.Core
	cfg  MeanVarianceConfig
	log  zerolog.Logger
}

// NewMeanVarianceOptimizer validates the configuration and builds the
// optimizer. Setting both targets is a ConflictingConstraint error.
func NewMeanVarianceOptimizer(rm *statistics.ReturnsMatrix, cfg MeanVarianceConfig, log zerolog.Logger) (*MeanVarianceOptimizer, error) {
	if cfg.TargetReturn != nil && cfg.TargetVolatility != nil {
		return nil, fmt.Errorf("%w: target_return and target_volatility are mutually exclusive", domain.ErrConflictingConstraint)
	}
	if err := cfg.WeightBounds.validate(rm.NumAssets()); err != nil {
		return nil, err
	}

	return &MeanVarianceOptimizer{
		core: statistics.NewCore(rm, cfg.RiskFreeRate),
		cfg:  cfg,
		log:  log.With().Str("component", "mean_variance").Logger(),
	}, nil
}

// Core exposes the statistics core the optimizer was built on.
func (o *MeanVarianceOptimizer) Core() *statistics.Core { return o.core }

// Optimize solves the configured problem:
//   - target_return set: minimize volatility at that return,
//   - target_volatility set: maximize return at that volatility,
//   - neither: maximize the Sharpe ratio.
func (o *MeanVarianceOptimizer) Optimize() (*Result, error) {
	symbols := o.core.Returns().Symbols()

	objective := objectiveMaxSharpe
	switch {
	case o.cfg.TargetReturn != nil:
		objective = objectiveMinVolatility
	case o.cfg.TargetVolatility != nil:
		objective = objectiveMaxReturn
	}

	w, err := solveMeanVariance(mvProblem{
		mu:               o.core.ExpectedReturnsVector(),
		cov:              o.core.Covariance(),
		bounds:           o.cfg.WeightBounds,
		objective:        objective,
		targetReturn:     o.cfg.TargetReturn,
		targetVolatility: o.cfg.TargetVolatility,
		riskFreeRate:     o.cfg.RiskFreeRate,
		maxIterations:    o.cfg.MaxIterations,
	})
	if err != nil {
		o.log.Warn().Err(err).Msg("Mean-variance solve failed")
		return nil, err
	}

	weights := weightsToMap(symbols, w)
	metrics := o.core.PortfolioMetrics(weights)

	o.log.Debug().
		Float64("expected_return", metrics.ExpectedReturn).
		Float64("volatility", metrics.Volatility).
		Float64("sharpe", metrics.SharpeRatio).
		Msg("Mean-variance optimization complete")

	return &Result{Weights: weights, Metrics: metrics}, nil
}
