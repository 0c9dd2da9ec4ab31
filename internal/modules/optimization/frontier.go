package optimization

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/modules/statistics"
	"github.com/aristath/portfolio-engine/pkg/formulas"
)

// DefaultFrontierPoints is how many target returns the sweep visits.
const DefaultFrontierPoints = 20

// FrontierConfig configures the efficient frontier sweep.
type FrontierConfig struct {
	NumPoints     int
	WeightBounds  Bounds
	RiskFreeRate  float64
	MaxIterations int
}

// FrontierPoint is one solved portfolio on the frontier.
type FrontierPoint struct {
	TargetReturn float64                     `json:"target_return"`
	Weights      map[string]float64          `json:"weights"`
	Metrics      statistics.PortfolioMetrics `json:"metrics"`
}

// Frontier is the swept efficient frontier, ordered by volatility, together
// with its three distinguished portfolios.
type Frontier struct {
	Points        []FrontierPoint `json:"points"`
	MinVolatility FrontierPoint   `json:"min_volatility"`
	MaxReturn     FrontierPoint   `json:"max_return"`
	Tangency      FrontierPoint   `json:"tangency"`
}

// FrontierBuilder sweeps target returns through the mean-variance solver to
// trace the efficient frontier.
type FrontierBuilder struct {
	core *statistics.Core
	cfg  FrontierConfig
	log  zerolog.Logger
}

// NewFrontierBuilder builds a frontier builder over a returns matrix.
func NewFrontierBuilder(rm *statistics.ReturnsMatrix, cfg FrontierConfig, log zerolog.Logger) (*FrontierBuilder, error) {
	if err := cfg.WeightBounds.validate(rm.NumAssets()); err != nil {
		return nil, err
	}
	if cfg.NumPoints <= 0 {
		cfg.NumPoints = DefaultFrontierPoints
	}

	return &FrontierBuilder{
		core: statistics.NewCore(rm, cfg.RiskFreeRate),
		cfg:  cfg,
		log:  log.With().Str("component", "frontier").Logger(),
	}, nil
}

// Build locates the minimum-volatility and maximum-return portfolios, then
// solves evenly spaced target returns between them. Points where the solver
// fails are skipped and logged, never fatal; the whole build fails only when
// the two anchors themselves cannot be solved.
func (b *FrontierBuilder) Build() (*Frontier, error) {
	symbols := b.core.Returns().Symbols()
	mu := b.core.ExpectedReturnsVector()
	cov := b.core.Covariance()

	solve := func(target *float64) (FrontierPoint, error) {
		w, err := solveMeanVariance(mvProblem{
			mu:            mu,
			cov:           cov,
			bounds:        b.cfg.WeightBounds,
			objective:     objectiveMinVolatility,
			targetReturn:  target,
			riskFreeRate:  b.cfg.RiskFreeRate,
			maxIterations: b.cfg.MaxIterations,
		})
		if err != nil {
			return FrontierPoint{}, err
		}
		weights := weightsToMap(symbols, w)
		point := FrontierPoint{
			Weights: weights,
			Metrics: b.core.PortfolioMetrics(weights),
		}
		if target != nil {
			point.TargetReturn = *target
		}
		return point, nil
	}

	minVol, err := solve(nil)
	if err != nil {
		return nil, fmt.Errorf("minimum-volatility anchor: %w", err)
	}
	minVol.TargetReturn = minVol.Metrics.ExpectedReturn

	// The upper anchor targets the best single asset's annualized return.
	maxAssetReturn := formulas.AnnualizeReturn(mu[0])
	for _, m := range mu[1:] {
		if r := formulas.AnnualizeReturn(m); r > maxAssetReturn {
			maxAssetReturn = r
		}
	}

	maxReturn, err := solve(&maxAssetReturn)
	if err != nil {
		return nil, fmt.Errorf("maximum-return anchor: %w", err)
	}

	points := []FrontierPoint{minVol, maxReturn}

	low, high := minVol.Metrics.ExpectedReturn, maxAssetReturn
	for i := 0; i < b.cfg.NumPoints; i++ {
		target := low
		if b.cfg.NumPoints > 1 {
			target = low + (high-low)*float64(i)/float64(b.cfg.NumPoints-1)
		}
		point, err := solve(&target)
		if err != nil {
			b.log.Warn().Err(err).Float64("target_return", target).Msg("Skipping frontier point")
			continue
		}
		points = append(points, point)
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].Metrics.Volatility < points[j].Metrics.Volatility
	})

	tangency := points[0]
	for _, p := range points[1:] {
		if p.Metrics.SharpeRatio > tangency.Metrics.SharpeRatio {
			tangency = p
		}
	}

	b.log.Debug().
		Int("points", len(points)).
		Float64("tangency_sharpe", tangency.Metrics.SharpeRatio).
		Msg("Efficient frontier built")

	return &Frontier{
		Points:        points,
		MinVolatility: minVol,
		MaxReturn:     maxReturn,
		Tangency:      tangency,
	}, nil
}
