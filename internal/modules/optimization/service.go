package optimization

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/statistics"
)

// Request carries everything needed to run one optimizer. Only the fields
// relevant to the selected Kind are consulted.
type Request struct {
	Kind          Kind
	Returns       *statistics.ReturnsMatrix
	WeightBounds  Bounds
	RiskFreeRate  float64
	MaxIterations int

	// Mean-variance
	TargetReturn     *float64
	TargetVolatility *float64

	// Risk parity
	RiskBudgets map[string]float64

	// Black-Litterman
	MarketCaps   map[string]float64
	Views        []InvestorView
	RiskAversion float64
	Tau          float64

	// Hierarchical risk parity
	LinkageMethod Linkage
}

// Service builds and runs optimizers. It is stateless; every call owns its
// inputs and outputs, so concurrent hosts need no synchronization.
type Service struct {
	log zerolog.Logger
}

// NewService creates the optimizer service.
func NewService(log zerolog.Logger) *Service {
	return &Service{log: log.With().Str("component", "optimizer_service").Logger()}
}

// Optimize dispatches the request to its optimizer kind and runs it.
func (s *Service) Optimize(req Request) (*Result, error) {
	if req.Returns == nil {
		return nil, fmt.Errorf("%w: no returns matrix", domain.ErrInvalidInput)
	}

	opt, err := s.build(req)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("optimizer", req.Kind.String()).
		Int("num_assets", req.Returns.NumAssets()).
		Int("num_periods", req.Returns.Periods()).
		Msg("Running portfolio optimization")

	return opt.Optimize()
}

// build constructs the optimizer behind the closed Kind enum.
func (s *Service) build(req Request) (Optimizer, error) {
	switch req.Kind {
	case KindMeanVariance:
		return NewMeanVarianceOptimizer(req.Returns, MeanVarianceConfig{
			WeightBounds:     req.WeightBounds,
			TargetReturn:     req.TargetReturn,
			TargetVolatility: req.TargetVolatility,
			RiskFreeRate:     req.RiskFreeRate,
			MaxIterations:    req.MaxIterations,
		}, s.log)
	case KindRiskParity:
		return NewRiskParityOptimizer(req.Returns, RiskParityConfig{
			RiskBudgets:   req.RiskBudgets,
			WeightBounds:  req.WeightBounds,
			RiskFreeRate:  req.RiskFreeRate,
			MaxIterations: req.MaxIterations,
		}, s.log)
	case KindBlackLitterman:
		return NewBlackLittermanOptimizer(req.Returns, BlackLittermanConfig{
			MarketCaps:    req.MarketCaps,
			Views:         req.Views,
			RiskAversion:  req.RiskAversion,
			Tau:           req.Tau,
			WeightBounds:  req.WeightBounds,
			RiskFreeRate:  req.RiskFreeRate,
			MaxIterations: req.MaxIterations,
		}, s.log)
	case KindHierarchicalRiskParity:
		return NewHRPOptimizer(req.Returns, HRPConfig{
			LinkageMethod: req.LinkageMethod,
			WeightBounds:  req.WeightBounds,
			RiskFreeRate:  req.RiskFreeRate,
		}, s.log)
	default:
		return nil, fmt.Errorf("%w: unknown optimizer kind %d", domain.ErrInvalidInput, req.Kind)
	}
}
