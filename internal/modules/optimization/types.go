// Package optimization implements the portfolio construction engine:
// mean-variance, risk parity, Black-Litterman and hierarchical risk parity
// allocation over a shared statistics core.
package optimization

import (
	"fmt"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/statistics"
)

// Kind identifies an optimizer. The set is closed: callers select a variant
// through this enum, never through free-form strings.
type Kind int

const (
	KindMeanVariance Kind = iota
	KindRiskParity
	KindBlackLitterman
	KindHierarchicalRiskParity
)

// String returns the wire name of the optimizer kind.
func (k Kind) String() string {
	switch k {
	case KindMeanVariance:
		return "mean_variance"
	case KindRiskParity:
		return "risk_parity"
	case KindBlackLitterman:
		return "black_litterman"
	case KindHierarchicalRiskParity:
		return "hierarchical_risk_parity"
	default:
		return "unknown"
	}
}

// ParseKind maps a wire string to a Kind. Used only at the API boundary.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "mean_variance":
		return KindMeanVariance, nil
	case "risk_parity":
		return KindRiskParity, nil
	case "black_litterman":
		return KindBlackLitterman, nil
	case "hierarchical_risk_parity", "hrp":
		return KindHierarchicalRiskParity, nil
	default:
		return 0, fmt.Errorf("%w: unknown optimizer %q", domain.ErrInvalidInput, s)
	}
}

// Optimizer is the single polymorphic surface all optimizer kinds expose.
type Optimizer interface {
	Optimize() (*Result, error)
}

// Result is the common optimizer output: a weights vector summing to 1 and
// the annualized metrics of that portfolio. RiskContributions is populated by
// risk parity; EquilibriumReturns by Black-Litterman.
type Result struct {
	Weights            map[string]float64          `json:"weights"`
	Metrics            statistics.PortfolioMetrics `json:"metrics"`
	RiskContributions  map[string]float64          `json:"risk_contributions,omitempty"`
	EquilibriumReturns map[string]float64          `json:"equilibrium_returns,omitempty"`
}

// Bounds holds per-asset weight bounds in matrix symbol order. An empty
// Bounds means the default [0,1] (long-only) box.
type Bounds [][2]float64

// DefaultBounds builds the long-only [0,1] box for n assets.
func DefaultBounds(n int) Bounds {
	b := make(Bounds, n)
	for i := range b {
		b[i] = [2]float64{0, 1}
	}
	return b
}

// validate checks the bounds against the asset count and ordering.
func (b Bounds) validate(n int) error {
	if len(b) == 0 {
		return nil
	}
	if len(b) != n {
		return fmt.Errorf("%w: %d weight bounds for %d assets", domain.ErrInvalidInput, len(b), n)
	}
	for i, bound := range b {
		if bound[0] > bound[1] {
			return fmt.Errorf("%w: bound %d has lower %v above upper %v", domain.ErrInvalidInput, i, bound[0], bound[1])
		}
	}
	return nil
}

// orDefault returns the bounds, or the [0,1] box when unset.
func (b Bounds) orDefault(n int) Bounds {
	if len(b) == 0 {
		return DefaultBounds(n)
	}
	return b
}
