package history

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/statistics"
	"github.com/aristath/portfolio-engine/pkg/formulas"
)

// Service builds aligned return matrices from stored price history
type Service struct {
	repo *Repository
	log  zerolog.Logger
}

// NewService creates the history service
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("component", "history_service").Logger(),
	}
}

// BuildReturnsMatrix aligns stored price series on the union of trading dates
// and converts them to simple returns. Gaps are forward-filled from the last
// known close; leading gaps are back-filled from the first observation, which
// yields a flat (zero-return) prefix rather than a hole. A lookback of 0 uses
// all available history.
func (s *Service) BuildReturnsMatrix(symbols []string, lookback int) (*statistics.ReturnsMatrix, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: no symbols requested", domain.ErrInvalidInput)
	}

	closes := make(map[string]map[string]float64, len(symbols))
	dateSet := make(map[string]bool)

	for _, symbol := range symbols {
		prices, err := s.repo.GetDailyPrices(symbol, lookback)
		if err != nil {
			return nil, err
		}
		if len(prices) < 3 {
			return nil, fmt.Errorf("%w: %s has %d observations, need at least 3 prices for 2 returns",
				domain.ErrInvalidInput, symbol, len(prices))
		}
		bySymbol := make(map[string]float64, len(prices))
		for _, p := range prices {
			bySymbol[p.Date] = p.Close
			dateSet[p.Date] = true
		}
		closes[symbol] = bySymbol
	}

	dates := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	series := make(map[string][]float64, len(symbols))
	for _, symbol := range symbols {
		aligned := alignSeries(closes[symbol], dates)
		series[symbol] = formulas.CalculateReturns(aligned)
	}

	rm, err := statistics.NewReturnsMatrix(series, symbols)
	if err != nil {
		return nil, err
	}

	s.log.Debug().
		Int("num_assets", rm.NumAssets()).
		Int("num_periods", rm.Periods()).
		Msg("Returns matrix built from price history")

	return rm, nil
}

// alignSeries fills one symbol's closes onto the full date axis
func alignSeries(closes map[string]float64, dates []string) []float64 {
	aligned := make([]float64, len(dates))

	last, haveLast := 0.0, false
	for i, d := range dates {
		if c, ok := closes[d]; ok {
			last, haveLast = c, true
		}
		if haveLast {
			aligned[i] = last
		}
	}

	// Back-fill the leading gap from the first real observation
	first := 0.0
	for _, v := range aligned {
		if v != 0 {
			first = v
			break
		}
	}
	for i := range aligned {
		if aligned[i] == 0 {
			aligned[i] = first
		} else {
			break
		}
	}

	return aligned
}
