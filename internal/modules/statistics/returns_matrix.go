// Package statistics provides the shared statistical foundation for the
// optimizers and the risk engine: returns matrices, expected returns,
// covariance estimation and annualized portfolio metrics.
package statistics

import (
	"fmt"
	"math"
	"sort"

	"github.com/aristath/portfolio-engine/internal/domain"
)

// ReturnsMatrix is an immutable table of periodic returns: rows are
// chronological fixed-frequency periods, columns are assets. Series are keyed
// by symbol and share a single length.
type ReturnsMatrix struct {
	symbols []string
	series  map[string][]float64
	periods int
}

// NewReturnsMatrix validates and builds a returns matrix. When symbols is nil
// the column order is the sorted symbol set, so downstream matrix layouts are
// deterministic.
func NewReturnsMatrix(series map[string][]float64, symbols []string) (*ReturnsMatrix, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: returns matrix has no assets", domain.ErrInvalidInput)
	}

	if symbols == nil {
		symbols = make([]string, 0, len(series))
		for symbol := range series {
			symbols = append(symbols, symbol)
		}
		sort.Strings(symbols)
	}

	periods := -1
	owned := make(map[string][]float64, len(symbols))
	for _, symbol := range symbols {
		ret, ok := series[symbol]
		if !ok {
			return nil, fmt.Errorf("%w: missing returns for symbol %s", domain.ErrInvalidInput, symbol)
		}
		if periods == -1 {
			periods = len(ret)
		}
		if len(ret) != periods {
			return nil, fmt.Errorf("%w: inconsistent return lengths (%s has %d, expected %d)",
				domain.ErrInvalidInput, symbol, len(ret), periods)
		}
		for i, r := range ret {
			if math.IsNaN(r) || math.IsInf(r, 0) {
				return nil, fmt.Errorf("%w: non-finite return for %s at period %d", domain.ErrInvalidInput, symbol, i)
			}
		}
		cp := make([]float64, periods)
		copy(cp, ret)
		owned[symbol] = cp
	}

	if periods < 2 {
		return nil, fmt.Errorf("%w: need at least 2 periods, got %d", domain.ErrInvalidInput, periods)
	}

	ordered := make([]string, len(symbols))
	copy(ordered, symbols)

	return &ReturnsMatrix{
		symbols: ordered,
		series:  owned,
		periods: periods,
	}, nil
}

// Symbols returns the asset ordering of the matrix columns.
func (rm *ReturnsMatrix) Symbols() []string {
	out := make([]string, len(rm.symbols))
	copy(out, rm.symbols)
	return out
}

// NumAssets returns the number of assets (columns).
func (rm *ReturnsMatrix) NumAssets() int { return len(rm.symbols) }

// Periods returns the number of time periods (rows).
func (rm *ReturnsMatrix) Periods() int { return rm.periods }

// Series returns a copy of one asset's return series.
func (rm *ReturnsMatrix) Series(symbol string) ([]float64, error) {
	ret, ok := rm.series[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: unknown symbol %s", domain.ErrInvalidInput, symbol)
	}
	out := make([]float64, len(ret))
	copy(out, ret)
	return out, nil
}

// PortfolioReturns collapses the matrix into a single weighted return series.
// Weights are renormalized to sum to 1 first; symbols absent from the weights
// map contribute zero.
func (rm *ReturnsMatrix) PortfolioReturns(weights map[string]float64) []float64 {
	normalized := NormalizeWeights(weights)

	out := make([]float64, rm.periods)
	for symbol, w := range normalized {
		ret, ok := rm.series[symbol]
		if !ok || w == 0 {
			continue
		}
		for t := 0; t < rm.periods; t++ {
			out[t] += w * ret[t]
		}
	}
	return out
}

// NormalizeWeights scales weights so they sum to 1. A zero-sum input is
// returned unchanged rather than divided by zero.
func NormalizeWeights(weights map[string]float64) map[string]float64 {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}

	normalized := make(map[string]float64, len(weights))
	if sum == 0 {
		for symbol, w := range weights {
			normalized[symbol] = w
		}
		return normalized
	}
	for symbol, w := range weights {
		normalized[symbol] = w / sum
	}
	return normalized
}
