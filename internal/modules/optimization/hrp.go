package optimization

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/statistics"
)

// Linkage selects the cluster-distance rule for hierarchical clustering.
type Linkage string

const (
	LinkageSingle   Linkage = "single"
	LinkageComplete Linkage = "complete"
	LinkageAverage  Linkage = "average"
)

// HRPConfig configures the hierarchical risk parity optimizer.
type HRPConfig struct {
	LinkageMethod Linkage
	WeightBounds  Bounds
	RiskFreeRate  float64
}

// HRPOptimizer implements Hierarchical Risk Parity: cluster assets by
// correlation distance, order them quasi-diagonally and recursively bisect the
// risk allocation down the cluster tree. It never inverts the covariance
// matrix, so it stays stable on singular or ill-conditioned inputs where
// mean-variance breaks down.
type HRPOptimizer struct {
	core *statistics.Core
	cfg  HRPConfig
	log  zerolog.Logger
}

// NewHRPOptimizer validates the configuration and builds the optimizer.
// The default linkage method is single.
func NewHRPOptimizer(rm *statistics.ReturnsMatrix, cfg HRPConfig, log zerolog.Logger) (*HRPOptimizer, error) {
	if err := cfg.WeightBounds.validate(rm.NumAssets()); err != nil {
		return nil, err
	}
	switch cfg.LinkageMethod {
	case "", LinkageSingle, LinkageComplete, LinkageAverage:
	default:
		return nil, fmt.Errorf("%w: unknown linkage method %q", domain.ErrInvalidConfiguration, cfg.LinkageMethod)
	}
	if cfg.LinkageMethod == "" {
		cfg.LinkageMethod = LinkageSingle
	}

	return &HRPOptimizer{
		core: statistics.NewCore(rm, cfg.RiskFreeRate),
		cfg:  cfg,
		log:  log.With().Str("component", "hrp").Logger(),
	}, nil
}

// Optimize runs the HRP pipeline: distance matrix, linkage tree,
// quasi-diagonal ordering, recursive bisection, then normalize / clip /
// renormalize.
func (o *HRPOptimizer) Optimize() (*Result, error) {
	symbols := o.core.Returns().Symbols()
	n := len(symbols)
	cov := o.core.Covariance()
	bounds := o.cfg.WeightBounds.orDefault(n)

	if n == 1 {
		weights := map[string]float64{symbols[0]: 1}
		return &Result{Weights: weights, Metrics: o.core.PortfolioMetrics(weights)}, nil
	}

	dist := distanceMatrix(correlationFromCovariance(cov))
	merges := buildLinkage(dist, o.cfg.LinkageMethod)
	order := leafOrder(merges, n)
	raw := recursiveBisection(cov, order)

	w := finalizeWeights(raw, bounds)
	weights := weightsToMap(symbols, w)
	metrics := o.core.PortfolioMetrics(weights)

	o.log.Debug().
		Str("linkage", string(o.cfg.LinkageMethod)).
		Float64("volatility", metrics.Volatility).
		Msg("HRP optimization complete")

	return &Result{Weights: weights, Metrics: metrics}, nil
}

// correlationFromCovariance derives the correlation matrix, clamping into
// [-1,1] and treating zero-variance assets as uncorrelated.
func correlationFromCovariance(cov [][]float64) [][]float64 {
	n := len(cov)
	corr := make([][]float64, n)
	for i := range corr {
		corr[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		corr[i][i] = 1
		for j := i + 1; j < n; j++ {
			denom := math.Sqrt(cov[i][i] * cov[j][j])
			var rho float64
			if denom > 0 {
				rho = cov[i][j] / denom
			}
			rho = math.Max(-1, math.Min(1, rho))
			corr[i][j] = rho
			corr[j][i] = rho
		}
	}
	return corr
}

// distanceMatrix converts correlations to distances d = sqrt(0.5*(1-rho)),
// symmetrized with a zero diagonal.
func distanceMatrix(corr [][]float64) [][]float64 {
	n := len(corr)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := math.Sqrt(0.5 * (1 - corr[i][j]))
			dist[i][j] = d
			dist[j][i] = d
		}
	}
	return dist
}

// merge records one agglomeration step. Node ids follow the scipy linkage
// convention: leaves are 0..n-1, the k-th merge creates node n+k.
type merge struct {
	left  int
	right int
}

// buildLinkage runs naive agglomerative clustering over the condensed
// distance matrix. O(n^3) is fine at portfolio sizes.
func buildLinkage(dist [][]float64, method Linkage) []merge {
	n := len(dist)

	type cluster struct {
		node    int
		members []int
	}

	active := make([]cluster, n)
	for i := 0; i < n; i++ {
		active[i] = cluster{node: i, members: []int{i}}
	}

	clusterDistance := func(a, b cluster) float64 {
		var best float64
		switch method {
		case LinkageComplete:
			best = math.Inf(-1)
			for _, i := range a.members {
				for _, j := range b.members {
					best = math.Max(best, dist[i][j])
				}
			}
		case LinkageAverage:
			sum := 0.0
			for _, i := range a.members {
				for _, j := range b.members {
					sum += dist[i][j]
				}
			}
			best = sum / float64(len(a.members)*len(b.members))
		default: // single
			best = math.Inf(1)
			for _, i := range a.members {
				for _, j := range b.members {
					best = math.Min(best, dist[i][j])
				}
			}
		}
		return best
	}

	merges := make([]merge, 0, n-1)
	nextNode := n

	for len(active) > 1 {
		bestI, bestJ := 0, 1
		bestDist := math.Inf(1)
		for i := 0; i < len(active); i++ {
			for j := i + 1; j < len(active); j++ {
				if d := clusterDistance(active[i], active[j]); d < bestDist {
					bestDist = d
					bestI, bestJ = i, j
				}
			}
		}

		a, b := active[bestI], active[bestJ]
		merges = append(merges, merge{left: a.node, right: b.node})

		merged := cluster{
			node:    nextNode,
			members: append(append([]int{}, a.members...), b.members...),
		}
		nextNode++

		// Remove the higher index first to keep positions stable.
		active = append(active[:bestJ], active[bestJ+1:]...)
		active = append(active[:bestI], active[bestI+1:]...)
		active = append(active, merged)
	}

	return merges
}

// leafOrder walks the linkage tree from the root, expanding internal nodes
// until only leaves remain. The resulting permutation places correlated
// assets adjacent (quasi-diagonalization).
func leafOrder(merges []merge, n int) []int {
	if len(merges) == 0 {
		return []int{0}
	}

	root := n + len(merges) - 1
	queue := []int{root}
	order := make([]int, 0, n)

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node < n {
			order = append(order, node)
			continue
		}
		m := merges[node-n]
		// Expand children in place so siblings stay adjacent.
		queue = append([]int{m.left, m.right}, queue...)
	}

	return order
}

// recursiveBisection splits each ordered cluster at its midpoint and shifts
// weight toward the lower-variance half. Cluster variance is the mean of the
// diagonal covariance entries of its members, not the textbook
// minimum-variance sub-portfolio.
func recursiveBisection(cov [][]float64, order []int) []float64 {
	n := len(cov)
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1
	}

	clusterVariance := func(members []int) float64 {
		sum := 0.0
		for _, i := range members {
			sum += cov[i][i]
		}
		return sum / float64(len(members))
	}

	stack := [][]int{order}
	for len(stack) > 0 {
		cluster := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if len(cluster) < 2 {
			continue
		}

		mid := len(cluster) / 2
		left, right := cluster[:mid], cluster[mid:]

		varLeft := clusterVariance(left)
		varRight := clusterVariance(right)

		alpha := 0.5
		if varLeft+varRight > 0 {
			alpha = 1 - varLeft/(varLeft+varRight)
		}

		for _, i := range left {
			weights[i] *= alpha
		}
		for _, i := range right {
			weights[i] *= 1 - alpha
		}

		stack = append(stack, left, right)
	}

	return weights
}
