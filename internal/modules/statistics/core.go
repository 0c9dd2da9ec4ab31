package statistics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/aristath/portfolio-engine/pkg/formulas"
)

// sharpeEpsilon guards the Sharpe ratio against division by zero on
// zero-volatility portfolios.
const sharpeEpsilon = 1e-8

// PortfolioMetrics holds annualized portfolio figures derived from a weights
// vector and the sample moments of the returns matrix.
type PortfolioMetrics struct {
	ExpectedReturn float64 `json:"expected_return"`
	Volatility     float64 `json:"volatility"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	RiskFreeRate   float64 `json:"risk_free_rate"`
}

// Core computes and caches the sample moments of a returns matrix. Expected
// returns and covariance stay periodic (daily); annualization is applied only
// when deriving PortfolioMetrics. A Core is immutable after construction.
type Core struct {
	rm           *ReturnsMatrix
	riskFreeRate float64
	mu           map[string]float64
	cov          [][]float64
}

// NewCore derives the expected-returns vector (per-asset sample mean) and the
// sample covariance matrix from the returns matrix. riskFreeRate is annual.
func NewCore(rm *ReturnsMatrix, riskFreeRate float64) *Core {
	symbols := rm.symbols
	n := len(symbols)

	mu := make(map[string]float64, n)
	for _, symbol := range symbols {
		mu[symbol] = stat.Mean(rm.series[symbol], nil)
	}

	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		ri := rm.series[symbols[i]]
		for j := i; j < n; j++ {
			c := stat.Covariance(ri, rm.series[symbols[j]], nil)
			cov[i][j] = c
			cov[j][i] = c
		}
	}

	return &Core{
		rm:           rm,
		riskFreeRate: riskFreeRate,
		mu:           mu,
		cov:          cov,
	}
}

// Returns exposes the underlying returns matrix.
func (c *Core) Returns() *ReturnsMatrix { return c.rm }

// RiskFreeRate returns the annual risk-free rate the core was built with.
func (c *Core) RiskFreeRate() float64 { return c.riskFreeRate }

// ExpectedReturns returns a copy of the periodic expected-returns vector.
func (c *Core) ExpectedReturns() map[string]float64 {
	out := make(map[string]float64, len(c.mu))
	for symbol, m := range c.mu {
		out[symbol] = m
	}
	return out
}

// Covariance returns a copy of the periodic sample covariance matrix, rows and
// columns in Symbols() order.
func (c *Core) Covariance() [][]float64 {
	out := make([][]float64, len(c.cov))
	for i := range c.cov {
		out[i] = make([]float64, len(c.cov[i]))
		copy(out[i], c.cov[i])
	}
	return out
}

// ExpectedReturnsVector returns the periodic means in Symbols() order.
func (c *Core) ExpectedReturnsVector() []float64 {
	out := make([]float64, len(c.rm.symbols))
	for i, symbol := range c.rm.symbols {
		out[i] = c.mu[symbol]
	}
	return out
}

// PortfolioMetrics computes annualized return, volatility and Sharpe for the
// given weights. Weights are renormalized to sum to 1 before use.
func (c *Core) PortfolioMetrics(weights map[string]float64) PortfolioMetrics {
	normalized := NormalizeWeights(weights)

	w := make([]float64, len(c.rm.symbols))
	for i, symbol := range c.rm.symbols {
		w[i] = normalized[symbol]
	}

	periodicReturn := 0.0
	for i, symbol := range c.rm.symbols {
		periodicReturn += w[i] * c.mu[symbol]
	}

	periodicVariance := 0.0
	for i := range w {
		for j := range w {
			periodicVariance += w[i] * w[j] * c.cov[i][j]
		}
	}
	periodicVolatility := math.Sqrt(math.Max(periodicVariance, 0))

	annualReturn := formulas.AnnualizeReturn(periodicReturn)
	annualVolatility := formulas.AnnualizeVolatility(periodicVolatility)

	return PortfolioMetrics{
		ExpectedReturn: annualReturn,
		Volatility:     annualVolatility,
		SharpeRatio:    (annualReturn - c.riskFreeRate) / (annualVolatility + sharpeEpsilon),
		RiskFreeRate:   c.riskFreeRate,
	}
}
