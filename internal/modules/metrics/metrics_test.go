package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeEmptySeries(t *testing.T) {
	s := Compute(nil, Options{})
	assert.Equal(t, Summary{}, s)
}

func TestComputeConstantPositiveReturns(t *testing.T) {
	returns := make([]float64, 252)
	for i := range returns {
		returns[i] = 0.001
	}
	s := Compute(returns, Options{})

	expectedTotal := math.Pow(1.001, 252) - 1
	assert.InDelta(t, expectedTotal, s.TotalReturn, 1e-9)
	assert.InDelta(t, expectedTotal, s.AnnualizedReturn, 1e-9)
	assert.Equal(t, 1.0, s.HitRate)
	assert.Equal(t, 0.0, s.MaxDrawdown)
	// Zero volatility maps Sharpe to 0 rather than Inf.
	assert.Equal(t, 0.0, s.Sharpe)
}

func TestComputeMixedReturns(t *testing.T) {
	returns := []float64{0.02, -0.01, 0.03, -0.02, 0.01}
	s := Compute(returns, Options{})

	assert.Equal(t, 5, s.Periods)
	assert.InDelta(t, 0.6, s.HitRate, 1e-12)
	assert.Greater(t, s.AnnualizedVol, 0.0)
	assert.Less(t, s.MaxDrawdown, 0.0)
	assert.False(t, math.IsNaN(s.Sharpe))
	assert.False(t, math.IsNaN(s.Sortino))
}

func TestMaxDrawdownKnownSeries(t *testing.T) {
	// Up 10%, down 50%, up 10%: trough is 45% below the peak.
	returns := []float64{0.10, -0.50, 0.10}
	dd := MaxDrawdown(returns)
	assert.InDelta(t, -0.50, dd, 1e-12)
}

func TestDrawdownFloorClamp(t *testing.T) {
	returns := []float64{-0.9999999}
	s := Compute(returns, Options{})
	assert.GreaterOrEqual(t, s.MaxDrawdown, DefaultDrawdownFloor)
}

func TestEquityCurve(t *testing.T) {
	equity := EquityCurve([]float64{0.1, -0.1})
	require.Len(t, equity, 3)
	assert.InDelta(t, 1.0, equity[0], 1e-12)
	assert.InDelta(t, 1.1, equity[1], 1e-12)
	assert.InDelta(t, 0.99, equity[2], 1e-12)
}

func TestSortinoUsesDownsideOnly(t *testing.T) {
	// Large gains with small losses: Sortino should exceed Sharpe.
	returns := []float64{0.05, -0.001, 0.04, -0.002, 0.06, -0.001, 0.05, -0.002}
	s := Compute(returns, Options{})
	assert.Greater(t, s.Sortino, s.Sharpe)
}

func TestAnalyzeDrawdownsEpisodes(t *testing.T) {
	// Two separate drawdown episodes with a recovery in between.
	returns := []float64{0.10, -0.05, 0.10, 0.10, -0.10, -0.05, 0.50}
	a := AnalyzeDrawdowns(returns, Options{})

	assert.Equal(t, 2, a.DrawdownCount)
	assert.Less(t, a.MaxDrawdown, -0.10)
	assert.Less(t, a.AvgDrawdown, 0.0)
	assert.GreaterOrEqual(t, a.LongestDuration, 2)
	require.Len(t, a.Underwater, len(returns))
	assert.Equal(t, 0.0, a.Underwater[0])
	assert.Less(t, a.Underwater[4], 0.0)
}

func TestAnalyzeDrawdownsMonotoneRise(t *testing.T) {
	returns := []float64{0.01, 0.02, 0.01}
	a := AnalyzeDrawdowns(returns, Options{})

	assert.Equal(t, 0, a.DrawdownCount)
	assert.Equal(t, 0.0, a.MaxDrawdown)
	for _, u := range a.Underwater {
		assert.Equal(t, 0.0, u)
	}
}
