package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeanAndStdDev(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	assert.InDelta(t, 3.0, Mean(values), 1e-12)
	assert.InDelta(t, math.Sqrt(2.5), StdDev(values), 1e-12)
}

func TestMeanEmpty(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 0.0, StdDev([]float64{1.0}))
}

func TestCalculateReturns(t *testing.T) {
	prices := []float64{100, 110, 99}
	returns := CalculateReturns(prices)

	assert.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-12)
	assert.InDelta(t, -0.10, returns[1], 1e-12)
}

func TestCalculateReturnsZeroPrice(t *testing.T) {
	returns := CalculateReturns([]float64{0, 100, 110})
	assert.Equal(t, 0.0, returns[0])
	assert.InDelta(t, 0.10, returns[1], 1e-12)
}

func TestAnnualizedVolatility(t *testing.T) {
	returns := []float64{0.01, -0.01, 0.01, -0.01}
	expected := StdDev(returns) * math.Sqrt(252)
	assert.InDelta(t, expected, AnnualizedVolatility(returns, 252), 1e-12)
}

func TestCorrelationPerfect(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	y := []float64{2, 4, 6, 8}
	assert.InDelta(t, 1.0, Correlation(x, y), 1e-12)
}

func TestSumAbsDiff(t *testing.T) {
	assert.InDelta(t, 0.4, SumAbsDiff([]float64{0.5, 0.5}, []float64{0.3, 0.7}), 1e-12)
}

func TestNormalize(t *testing.T) {
	out := Normalize([]float64{1, 3})
	assert.InDelta(t, 0.25, out[0], 1e-12)
	assert.InDelta(t, 0.75, out[1], 1e-12)

	fallback := Normalize([]float64{0, 0})
	assert.InDelta(t, 0.5, fallback[0], 1e-12)
	assert.InDelta(t, 0.5, fallback[1], 1e-12)
}
