package optimization

import (
	"fmt"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/statistics"
)

// Black-Litterman defaults.
const (
	DefaultRiskAversion = 2.5
	DefaultTau          = 0.05
)

// InvestorView is a subjective opinion on one or more assets: the listed
// assets, their relative weights within the view, the view's expected return
// (periodic, same scale as the equilibrium prior) and a confidence in (0,1].
type InvestorView struct {
	Assets         []string  `json:"assets"`
	Weights        []float64 `json:"weights"`
	ExpectedReturn float64   `json:"expected_return"`
	Confidence     float64   `json:"confidence"`
}

// BlackLittermanConfig configures the Black-Litterman optimizer. MarketCaps
// may be nil, in which case equal market weights are assumed; when supplied,
// every asset in the returns matrix must have one.
type BlackLittermanConfig struct {
	MarketCaps    map[string]float64
	Views         []InvestorView
	RiskAversion  float64
	Tau           float64
	WeightBounds  Bounds
	RiskFreeRate  float64
	MaxIterations int
}

// BlackLittermanOptimizer blends market-implied equilibrium returns with
// confidence-weighted investor views into posterior expected returns, then
// feeds them into a max-Sharpe mean-variance optimization.
type BlackLittermanOptimizer struct {
	core *statistics.Core
	cfg  BlackLittermanConfig
	log  zerolog.Logger
}

// NewBlackLittermanOptimizer validates market caps and views and builds the
// optimizer. Defaults: risk aversion 2.5, tau 0.05.
func NewBlackLittermanOptimizer(rm *statistics.ReturnsMatrix, cfg BlackLittermanConfig, log zerolog.Logger) (*BlackLittermanOptimizer, error) {
	if err := cfg.WeightBounds.validate(rm.NumAssets()); err != nil {
		return nil, err
	}
	if cfg.RiskAversion == 0 {
		cfg.RiskAversion = DefaultRiskAversion
	}
	if cfg.Tau == 0 {
		cfg.Tau = DefaultTau
	}

	known := make(map[string]bool, rm.NumAssets())
	for _, symbol := range rm.Symbols() {
		known[symbol] = true
	}

	for symbol, marketCap := range cfg.MarketCaps {
		if !known[symbol] {
			return nil, fmt.Errorf("%w: market cap for unknown symbol %s", domain.ErrInvalidInput, symbol)
		}
		if marketCap <= 0 {
			return nil, fmt.Errorf("%w: non-positive market cap for %s", domain.ErrInvalidInput, symbol)
		}
	}
	if len(cfg.MarketCaps) > 0 {
		// Partial caps would silently give the uncovered assets zero market
		// weight, skewing the equilibrium prior.
		for _, symbol := range rm.Symbols() {
			if _, ok := cfg.MarketCaps[symbol]; !ok {
				return nil, fmt.Errorf("%w: market caps supplied but %s has none", domain.ErrInvalidInput, symbol)
			}
		}
	}

	for i, view := range cfg.Views {
		if len(view.Assets) == 0 {
			return nil, fmt.Errorf("%w: view %d names no assets", domain.ErrInvalidInput, i)
		}
		if len(view.Assets) != len(view.Weights) {
			return nil, fmt.Errorf("%w: view %d has %d assets but %d weights",
				domain.ErrInvalidInput, i, len(view.Assets), len(view.Weights))
		}
		if view.Confidence <= 0 || view.Confidence > 1 {
			return nil, fmt.Errorf("%w: view %d confidence %v outside (0,1]", domain.ErrInvalidInput, i, view.Confidence)
		}
		for _, asset := range view.Assets {
			if !known[asset] {
				return nil, fmt.Errorf("%w: view %d references unknown symbol %s", domain.ErrInvalidInput, i, asset)
			}
		}
	}

	return &BlackLittermanOptimizer{
		core: statistics.NewCore(rm, cfg.RiskFreeRate),
		cfg:  cfg,
		log:  log.With().Str("component", "black_litterman").Logger(),
	}, nil
}

// EquilibriumReturns computes the market-implied prior Pi = lambda * Sigma * w_mkt.
func (o *BlackLittermanOptimizer) EquilibriumReturns() map[string]float64 {
	symbols := o.core.Returns().Symbols()
	n := len(symbols)
	cov := o.core.Covariance()

	wMkt := o.marketWeights(symbols)

	pi := make(map[string]float64, n)
	for i, symbol := range symbols {
		sum := 0.0
		for j := 0; j < n; j++ {
			sum += cov[i][j] * wMkt[j]
		}
		pi[symbol] = o.cfg.RiskAversion * sum
	}
	return pi
}

// marketWeights converts market caps to weights, or equal weights when caps
// were omitted.
func (o *BlackLittermanOptimizer) marketWeights(symbols []string) []float64 {
	n := len(symbols)
	w := make([]float64, n)

	if len(o.cfg.MarketCaps) == 0 {
		for i := range w {
			w[i] = 1.0 / float64(n)
		}
		return w
	}

	total := 0.0
	for i, symbol := range symbols {
		w[i] = o.cfg.MarketCaps[symbol]
		total += w[i]
	}
	for i := range w {
		w[i] /= total
	}
	return w
}

// Optimize runs the full Black-Litterman pipeline: equilibrium prior, view
// blending, and a max-Sharpe mean-variance optimization on the posterior
// returns with the covariance held unchanged.
func (o *BlackLittermanOptimizer) Optimize() (*Result, error) {
	symbols := o.core.Returns().Symbols()
	equilibrium := o.EquilibriumReturns()

	posterior, err := o.posteriorReturns(symbols, equilibrium)
	if err != nil {
		return nil, err
	}

	mu := make([]float64, len(symbols))
	for i, symbol := range symbols {
		mu[i] = posterior[symbol]
	}

	w, err := solveMeanVariance(mvProblem{
		mu:            mu,
		cov:           o.core.Covariance(),
		bounds:        o.cfg.WeightBounds,
		objective:     objectiveMaxSharpe,
		riskFreeRate:  o.cfg.RiskFreeRate,
		maxIterations: o.cfg.MaxIterations,
	})
	if err != nil {
		o.log.Warn().Err(err).Msg("Black-Litterman solve failed")
		return nil, err
	}

	weights := weightsToMap(symbols, w)
	metrics := o.core.PortfolioMetrics(weights)

	o.log.Debug().
		Int("num_views", len(o.cfg.Views)).
		Float64("sharpe", metrics.SharpeRatio).
		Msg("Black-Litterman optimization complete")

	return &Result{
		Weights:            weights,
		Metrics:            metrics,
		EquilibriumReturns: equilibrium,
	}, nil
}

// PosteriorReturns exposes the blended expected returns, mostly for
// diagnostics and tests.
func (o *BlackLittermanOptimizer) PosteriorReturns() (map[string]float64, error) {
	symbols := o.core.Returns().Symbols()
	return o.posteriorReturns(symbols, o.EquilibriumReturns())
}

// posteriorReturns applies the Black-Litterman master formula:
//
//	mu = [(tau*Sigma)^-1 + P' Omega^-1 P]^-1 [(tau*Sigma)^-1 Pi + P' Omega^-1 Q]
//
// With zero views the posterior equals the prior exactly, so the matrix
// machinery is skipped entirely.
func (o *BlackLittermanOptimizer) posteriorReturns(symbols []string, equilibrium map[string]float64) (map[string]float64, error) {
	if len(o.cfg.Views) == 0 {
		return equilibrium, nil
	}

	n := len(symbols)
	m := len(o.cfg.Views)

	index := make(map[string]int, n)
	for i, symbol := range symbols {
		index[symbol] = i
	}

	// Pick matrix P, view returns Q and diagonal uncertainty Omega with
	// Omega_ii = 1/confidence_i. The uncertainty mapping is deliberate and
	// load-bearing: downstream numbers are calibrated against it.
	P := mat.NewDense(m, n, nil)
	Q := mat.NewVecDense(m, nil)
	omegaInv := mat.NewDense(m, m, nil)
	for i, view := range o.cfg.Views {
		for k, asset := range view.Assets {
			P.Set(i, index[asset], view.Weights[k])
		}
		Q.SetVec(i, view.ExpectedReturn)
		omegaInv.Set(i, i, view.Confidence) // (1/confidence)^-1
	}

	cov := o.core.Covariance()
	tauSigma := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			tauSigma.Set(i, j, o.cfg.Tau*cov[i][j])
		}
	}

	var tauSigmaInv mat.Dense
	if err := tauSigmaInv.Inverse(tauSigma); err != nil {
		return nil, fmt.Errorf("%w: cannot invert tau*Sigma: %v", domain.ErrNumericalInstability, err)
	}

	var pT mat.Dense
	pT.CloneFrom(P.T())

	var pTOmegaInv mat.Dense
	pTOmegaInv.Mul(&pT, omegaInv)

	var pTOmegaInvP mat.Dense
	pTOmegaInvP.Mul(&pTOmegaInv, P)

	var lhs mat.Dense
	lhs.Add(&tauSigmaInv, &pTOmegaInvP)

	var lhsInv mat.Dense
	if err := lhsInv.Inverse(&lhs); err != nil {
		return nil, fmt.Errorf("%w: cannot invert posterior precision: %v", domain.ErrNumericalInstability, err)
	}

	pi := mat.NewVecDense(n, nil)
	for i, symbol := range symbols {
		pi.SetVec(i, equilibrium[symbol])
	}

	var tauSigmaInvPi mat.VecDense
	tauSigmaInvPi.MulVec(&tauSigmaInv, pi)

	var pTOmegaInvQ mat.VecDense
	pTOmegaInvQ.MulVec(&pTOmegaInv, Q)

	var rhs mat.VecDense
	rhs.AddVec(&tauSigmaInvPi, &pTOmegaInvQ)

	var blended mat.VecDense
	blended.MulVec(&lhsInv, &rhs)

	posterior := make(map[string]float64, n)
	for i, symbol := range symbols {
		posterior[symbol] = blended.AtVec(i)
	}
	return posterior, nil
}
