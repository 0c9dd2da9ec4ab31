package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is the annualization base for daily return series.
const TradingDaysPerYear = 252

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Variance calculates the sample variance of a slice of float64 values
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.Variance(data, nil)
}

// Skewness calculates the sample skewness of a slice of float64 values
func Skewness(data []float64) float64 {
	if len(data) < 3 {
		return 0
	}
	return stat.Skew(data, nil)
}

// ExcessKurtosis calculates the sample excess kurtosis (kurtosis - 3).
// gonum's ExKurtosis already reports the excess form.
func ExcessKurtosis(data []float64) float64 {
	if len(data) < 4 {
		return 0
	}
	return stat.ExKurtosis(data, nil)
}

// Percentile returns the p-th percentile (p in [0,100]) of data using linear
// interpolation between closest ranks. Matches numpy's default behavior, which
// the risk figures are calibrated against.
func Percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	if len(data) == 1 {
		return data[0]
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := lo + 1
	frac := rank - float64(lo)
	if hi >= len(sorted) {
		return sorted[lo]
	}
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// CalculateReturns converts a price series to simple periodic returns.
// Returns[i] = Price[i+1]/Price[i] - 1
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = prices[i]/prices[i-1] - 1
		}
	}

	return returns
}

// AnnualizeReturn compounds a periodic (daily) return over a full trading year.
// Formula: (1+r)^252 - 1
func AnnualizeReturn(periodicReturn float64) float64 {
	return math.Pow(1+periodicReturn, TradingDaysPerYear) - 1
}

// AnnualizeVolatility scales a periodic (daily) volatility by sqrt(252).
func AnnualizeVolatility(periodicVolatility float64) float64 {
	return periodicVolatility * math.Sqrt(TradingDaysPerYear)
}

// Correlation calculates the Pearson correlation coefficient between two datasets
func Correlation(x, y []float64) float64 {
	if len(x) == 0 || len(y) == 0 || len(x) != len(y) {
		return 0
	}
	return stat.Correlation(x, y, nil)
}

// Covariance calculates the sample covariance between two datasets
func Covariance(x, y []float64) float64 {
	if len(x) == 0 || len(y) == 0 || len(x) != len(y) {
		return 0
	}
	return stat.Covariance(x, y, nil)
}
