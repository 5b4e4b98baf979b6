package optimization

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/quantfolio/internal/modules/returns"
)

func returnMatrix(t *testing.T, rows [][]float64, assets []string) *returns.Matrix {
	t.Helper()
	ts := make([]time.Time, len(rows))
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := range ts {
		ts[i] = start.AddDate(0, 0, i)
	}
	m, err := returns.New(ts, assets, rows)
	require.NoError(t, err)
	return m
}

func TestHistoricalMeanReturns(t *testing.T) {
	rows := [][]float64{
		{0.01, -0.01},
		{0.01, -0.01},
		{0.01, -0.01},
	}
	rm := returnMatrix(t, rows, []string{"AAA", "BBB"})

	mu := HistoricalMeanReturns(rm, 252)
	assert.InDelta(t, 0.01*252, mu[0], 1e-9)
	assert.InDelta(t, -0.01*252, mu[1], 1e-9)
}

func TestMomentumReturnsInsufficientData(t *testing.T) {
	rows := make([][]float64, 20)
	for i := range rows {
		rows[i] = []float64{0.001}
	}
	rm := returnMatrix(t, rows, []string{"AAA"})

	_, err := MomentumReturns(rm, 63, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, returns.ErrInsufficientData)
}

func TestMomentumReturnsSignsFollowTrend(t *testing.T) {
	rows := make([][]float64, 120)
	for i := range rows {
		rows[i] = []float64{0.002, -0.002}
	}
	rm := returnMatrix(t, rows, []string{"UP", "DOWN"})

	mu, err := MomentumReturns(rm, 63, 10)
	require.NoError(t, err)

	assert.Greater(t, mu[0], 0.0)
	assert.Less(t, mu[1], 0.0)
}
