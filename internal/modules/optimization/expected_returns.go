package optimization

import (
	"fmt"

	"github.com/markcheno/go-talib"

	"github.com/quantfolio/quantfolio/internal/modules/returns"
	"github.com/quantfolio/quantfolio/pkg/formulas"
)

const (
	// DefaultMomentumLookback is the rate-of-change window in periods.
	DefaultMomentumLookback = 63
	// DefaultMomentumSmoothing is the EMA period applied to the price index
	// before measuring momentum.
	DefaultMomentumSmoothing = 10
)

// HistoricalMeanReturns estimates annualized expected returns as the
// per-asset mean periodic return scaled by periodsPerYear.
func HistoricalMeanReturns(rm *returns.Matrix, periodsPerYear int) []float64 {
	if periodsPerYear <= 0 {
		periodsPerYear = formulas.TradingDaysPerYear
	}
	mu := rm.ColumnMeans()
	for i := range mu {
		mu[i] *= float64(periodsPerYear)
	}
	return mu
}

// MomentumReturns estimates annualized expected returns from smoothed price
// momentum. Each asset's return series is compounded into a price index,
// smoothed with an EMA, and the trailing rate of change over the lookback is
// annualized. Needs lookback + smoothing observations.
func MomentumReturns(rm *returns.Matrix, lookback, smoothing int) ([]float64, error) {
	if lookback <= 0 {
		lookback = DefaultMomentumLookback
	}
	if smoothing <= 0 {
		smoothing = DefaultMomentumSmoothing
	}
	if rm.T() < lookback+smoothing {
		return nil, fmt.Errorf("%w: momentum needs %d observations, got %d",
			returns.ErrInsufficientData, lookback+smoothing, rm.T())
	}

	mu := make([]float64, rm.N())
	for j := 0; j < rm.N(); j++ {
		index := priceIndex(rm.Column(j))
		smoothed := talib.Ema(index, smoothing)
		roc := talib.Roc(smoothed, lookback)
		last := roc[len(roc)-1]
		// Roc reports percent change over the lookback window.
		mu[j] = last / 100.0 * float64(formulas.TradingDaysPerYear) / float64(lookback)
	}
	return mu, nil
}

// priceIndex compounds a return series into a synthetic price series with
// base 100.
func priceIndex(rets []float64) []float64 {
	index := make([]float64, len(rets)+1)
	index[0] = 100.0
	for i, r := range rets {
		index[i+1] = index[i] * (1 + r)
	}
	return index
}
