package risk

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/statistics"
	"github.com/aristath/portfolio-engine/pkg/formulas"
)

// Monte Carlo defaults.
const (
	DefaultNumSimulations = 10000
	DefaultTimeHorizon    = 252
)

// DefaultConfidenceLevels are reported when the caller supplies none.
var DefaultConfidenceLevels = []float64{0.90, 0.95, 0.99}

// ConfidenceKey renders a confidence level as the map key used in simulation
// results, e.g. 0.95 becomes "0.95". JSON object keys must be strings.
func ConfidenceKey(confidence float64) string {
	return strconv.FormatFloat(confidence, 'g', -1, 64)
}

// SimulatorConfig configures a Monte Carlo run. A fixed Seed makes the run
// fully reproducible.
type SimulatorConfig struct {
	NumSimulations   int
	TimeHorizon      int
	InitialValue     float64
	ConfidenceLevels []float64
	Seed             int64
}

// SimulationResult summarizes the distribution of terminal portfolio values.
type SimulationResult struct {
	InitialValue        float64               `json:"initial_value"`
	ExpectedValue       float64               `json:"expected_value"`
	ExpectedReturn      float64               `json:"expected_return"`
	Volatility          float64               `json:"volatility"`
	ConfidenceIntervals map[string][2]float64 `json:"confidence_intervals"`
	ValueAtRisk         map[string]float64    `json:"value_at_risk"`
	ConditionalVaR      map[string]float64    `json:"conditional_var"`
	NumSimulations      int                   `json:"num_simulations"`
	TimeHorizon         int                   `json:"time_horizon"`
}

// Simulator draws correlated return paths from the historical mean vector and
// covariance matrix and compounds them into terminal portfolio values.
type Simulator struct {
	core    *statistics.Core
	weights map[string]float64
	cfg     SimulatorConfig
	log     zerolog.Logger
}

// NewSimulator validates the configuration and builds a simulator for the
// given portfolio weights.
func NewSimulator(rm *statistics.ReturnsMatrix, weights map[string]float64, cfg SimulatorConfig, log zerolog.Logger) (*Simulator, error) {
	if rm == nil {
		return nil, fmt.Errorf("%w: no returns matrix", domain.ErrInvalidInput)
	}
	if cfg.NumSimulations <= 0 {
		cfg.NumSimulations = DefaultNumSimulations
	}
	if cfg.TimeHorizon <= 0 {
		cfg.TimeHorizon = DefaultTimeHorizon
	}
	if cfg.InitialValue <= 0 {
		return nil, fmt.Errorf("%w: initial value must be positive, got %v", domain.ErrInvalidInput, cfg.InitialValue)
	}
	if len(cfg.ConfidenceLevels) == 0 {
		cfg.ConfidenceLevels = DefaultConfidenceLevels
	}
	for _, c := range cfg.ConfidenceLevels {
		if err := validateConfidence(c); err != nil {
			return nil, err
		}
	}

	return &Simulator{
		core:    statistics.NewCore(rm, 0),
		weights: weights,
		cfg:     cfg,
		log:     log.With().Str("component", "monte_carlo").Logger(),
	}, nil
}

// Run executes the simulation and aggregates the terminal value distribution.
func (s *Simulator) Run() (*SimulationResult, error) {
	symbols := s.core.Returns().Symbols()
	n := len(symbols)
	mu := s.core.ExpectedReturnsVector()
	cov := s.core.Covariance()

	w := make([]float64, n)
	total := 0.0
	for i, symbol := range symbols {
		w[i] = s.weights[symbol]
		total += w[i]
	}
	if total == 0 {
		for i := range w {
			w[i] = 1.0 / float64(n)
		}
	} else {
		for i := range w {
			w[i] /= total
		}
	}

	chol, err := factorize(cov)
	if err != nil {
		return nil, err
	}

	var lower mat.TriDense
	chol.LTo(&lower)

	rng := rand.New(rand.NewSource(s.cfg.Seed))

	terminal := make([]float64, s.cfg.NumSimulations)
	z := make([]float64, n)
	shocked := make([]float64, n)

	for sim := 0; sim < s.cfg.NumSimulations; sim++ {
		value := s.cfg.InitialValue
		for t := 0; t < s.cfg.TimeHorizon; t++ {
			for i := range z {
				z[i] = rng.NormFloat64()
			}
			// shocked = mu + L*z, one correlated draw per asset.
			for i := 0; i < n; i++ {
				sum := 0.0
				for j := 0; j <= i; j++ {
					sum += lower.At(i, j) * z[j]
				}
				shocked[i] = mu[i] + sum
			}
			periodReturn := 0.0
			for i := 0; i < n; i++ {
				periodReturn += w[i] * shocked[i]
			}
			value *= 1 + periodReturn
		}
		terminal[sim] = value
	}

	result := s.summarize(terminal)

	s.log.Info().
		Int("simulations", s.cfg.NumSimulations).
		Int("horizon", s.cfg.TimeHorizon).
		Float64("expected_value", result.ExpectedValue).
		Msg("Monte Carlo simulation complete")

	return result, nil
}

// summarize converts the terminal value sample into intervals, VaR and CVaR.
// VaR figures are currency losses relative to the initial value, positive when
// the tail outcome sits below it.
func (s *Simulator) summarize(terminal []float64) *SimulationResult {
	sorted := make([]float64, len(terminal))
	copy(sorted, terminal)
	sort.Float64s(sorted)

	mean := formulas.Mean(sorted)

	returns := make([]float64, len(sorted))
	for i, v := range sorted {
		returns[i] = v/s.cfg.InitialValue - 1
	}

	intervals := make(map[string][2]float64, len(s.cfg.ConfidenceLevels))
	valueAtRisk := make(map[string]float64, len(s.cfg.ConfidenceLevels))
	conditional := make(map[string]float64, len(s.cfg.ConfidenceLevels))

	for _, confidence := range s.cfg.ConfidenceLevels {
		key := ConfidenceKey(confidence)
		tail := (1 - confidence) * 100
		lo := formulas.Percentile(sorted, tail/2)
		hi := formulas.Percentile(sorted, 100-tail/2)
		intervals[key] = [2]float64{lo, hi}

		cutoff := formulas.Percentile(sorted, tail)
		valueAtRisk[key] = s.cfg.InitialValue - cutoff

		sum, count := 0.0, 0
		for _, v := range sorted {
			if v <= cutoff {
				sum += v
				count++
			}
		}
		if count > 0 {
			conditional[key] = s.cfg.InitialValue - sum/float64(count)
		} else {
			conditional[key] = valueAtRisk[key]
		}
	}

	return &SimulationResult{
		InitialValue:        s.cfg.InitialValue,
		ExpectedValue:       mean,
		ExpectedReturn:      mean/s.cfg.InitialValue - 1,
		Volatility:          formulas.StdDev(returns),
		ConfidenceIntervals: intervals,
		ValueAtRisk:         valueAtRisk,
		ConditionalVaR:      conditional,
		NumSimulations:      s.cfg.NumSimulations,
		TimeHorizon:         s.cfg.TimeHorizon,
	}
}

// factorize Cholesky-decomposes the covariance matrix, repairing
// non-positive-definite inputs by clamping negative eigenvalues before giving
// up.
func factorize(cov [][]float64) (*mat.Cholesky, error) {
	n := len(cov)
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, cov[i][j])
		}
	}

	var chol mat.Cholesky
	if chol.Factorize(sym) {
		return &chol, nil
	}

	repaired, err := nearestPositiveDefinite(sym)
	if err != nil {
		return nil, err
	}
	if !chol.Factorize(repaired) {
		return nil, fmt.Errorf("%w: covariance matrix is not positive definite after repair", domain.ErrNumericalInstability)
	}
	return &chol, nil
}

// nearestPositiveDefinite projects a symmetric matrix onto the positive
// definite cone by clamping its eigenvalues to a small floor.
func nearestPositiveDefinite(sym *mat.SymDense) (*mat.SymDense, error) {
	n := sym.SymmetricDim()

	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		return nil, fmt.Errorf("%w: eigendecomposition failed", domain.ErrNumericalInstability)
	}

	values := eig.Values(nil)
	floor := 0.0
	for _, v := range values {
		floor = math.Max(floor, math.Abs(v))
	}
	floor = math.Max(floor*1e-10, 1e-12)

	for i, v := range values {
		if v < floor {
			values[i] = floor
		}
	}

	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// Rebuild V * diag(clamped) * V'.
	scaled := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			scaled.Set(i, j, vectors.At(i, j)*values[j])
		}
	}
	var rebuilt mat.Dense
	rebuilt.Mul(scaled, vectors.T())

	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, (rebuilt.At(i, j)+rebuilt.At(j, i))/2)
		}
	}
	return out, nil
}
