// Package metrics computes performance statistics for portfolio return
// series. All outputs pass a single sanitization step so callers never see
// NaN or Inf values.
package metrics

import (
	"math"

	"github.com/quantfolio/quantfolio/pkg/formulas"
)

// DefaultDrawdownFloor is the lower clamp applied to drawdown figures.
const DefaultDrawdownFloor = -0.999

// Options tunes metric computation.
type Options struct {
	PeriodsPerYear int     // defaults to 252
	DrawdownFloor  float64 // defaults to DefaultDrawdownFloor, must be negative
}

func (o Options) withDefaults() Options {
	if o.PeriodsPerYear <= 0 {
		o.PeriodsPerYear = formulas.TradingDaysPerYear
	}
	if o.DrawdownFloor >= 0 {
		o.DrawdownFloor = DefaultDrawdownFloor
	}
	return o
}

// Summary is the standard performance report for a return series.
type Summary struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	AnnualizedVol    float64 `json:"annualized_volatility"`
	Sharpe           float64 `json:"sharpe"`
	Sortino          float64 `json:"sortino"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	HitRate          float64 `json:"hit_rate"`
	Periods          int     `json:"periods"`
}

// Compute builds the full summary for a periodic return series. An empty
// series yields a zero summary.
func Compute(returns []float64, opts Options) Summary {
	opts = opts.withDefaults()
	n := len(returns)
	if n == 0 {
		return Summary{}
	}

	equity := EquityCurve(returns)
	total := equity[len(equity)-1] - 1

	annualized := 0.0
	if total > -1 {
		annualized = math.Pow(1+total, float64(opts.PeriodsPerYear)/float64(n)) - 1
	} else {
		annualized = -1
	}

	vol := formulas.AnnualizedVolatility(returns, opts.PeriodsPerYear)

	var wins int
	for _, r := range returns {
		if r > 0 {
			wins++
		}
	}

	s := Summary{
		TotalReturn:      total,
		AnnualizedReturn: annualized,
		AnnualizedVol:    vol,
		Sharpe:           safeRatio(annualized, vol),
		Sortino:          safeRatio(annualized, downsideVolatility(returns, opts.PeriodsPerYear)),
		MaxDrawdown:      MaxDrawdown(returns),
		HitRate:          float64(wins) / float64(n),
		Periods:          n,
	}
	return sanitizeSummary(s, opts)
}

// EquityCurve compounds a return series into cumulative equity with base 1.
func EquityCurve(returns []float64) []float64 {
	equity := make([]float64, len(returns)+1)
	equity[0] = 1.0
	for i, r := range returns {
		equity[i+1] = equity[i] * (1 + r)
	}
	return equity
}

// MaxDrawdown is the most negative peak-to-trough equity decline, as a
// non-positive fraction.
func MaxDrawdown(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	peak := 1.0
	equity := 1.0
	maxDD := 0.0
	for _, r := range returns {
		equity *= 1 + r
		if equity > peak {
			peak = equity
		}
		dd := equity/peak - 1
		if dd < maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// downsideVolatility annualizes the standard deviation of negative returns
// only. Zero when there are fewer than two losing periods.
func downsideVolatility(returns []float64, periodsPerYear int) float64 {
	var losses []float64
	for _, r := range returns {
		if r < 0 {
			losses = append(losses, r)
		}
	}
	if len(losses) < 2 {
		return 0
	}
	return formulas.StdDev(losses) * math.Sqrt(float64(periodsPerYear))
}

// safeRatio divides, mapping a numerically zero denominator to 0.
func safeRatio(num, denom float64) float64 {
	if denom <= 1e-10 {
		return 0
	}
	return num / denom
}

// sanitizeSummary replaces non-finite ratios with zero and clamps drawdown
// to the configured floor. This is the single cleanup point for the package.
func sanitizeSummary(s Summary, opts Options) Summary {
	s.TotalReturn = finiteOrZero(s.TotalReturn)
	s.AnnualizedReturn = finiteOrZero(s.AnnualizedReturn)
	s.AnnualizedVol = finiteOrZero(s.AnnualizedVol)
	s.Sharpe = finiteOrZero(s.Sharpe)
	s.Sortino = finiteOrZero(s.Sortino)
	s.HitRate = finiteOrZero(s.HitRate)
	s.MaxDrawdown = finiteOrZero(s.MaxDrawdown)
	if s.MaxDrawdown < opts.DrawdownFloor {
		s.MaxDrawdown = opts.DrawdownFloor
	}
	return s
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
