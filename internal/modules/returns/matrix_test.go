package returns

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTimestamps(n int) []time.Time {
	ts := make([]time.Time, n)
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := range ts {
		ts[i] = start.AddDate(0, 0, i)
	}
	return ts
}

func TestNewValidMatrix(t *testing.T) {
	m, err := New(testTimestamps(3), []string{"AAA", "BBB"}, [][]float64{
		{0.01, 0.02},
		{-0.01, 0.00},
		{0.02, -0.01},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, m.T())
	assert.Equal(t, 2, m.N())
	assert.Equal(t, []string{"AAA", "BBB"}, m.Assets())
	assert.Equal(t, []float64{0.02, 0.00, -0.01}, m.Column(1))
}

func TestNewRejectsEmptyRows(t *testing.T) {
	_, err := New(nil, []string{"AAA"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestNewRejectsRaggedRows(t *testing.T) {
	_, err := New(testTimestamps(2), []string{"AAA", "BBB"}, [][]float64{
		{0.01, 0.02},
		{0.01},
	})
	assert.Error(t, err)
}

func TestNewRejectsNonFinite(t *testing.T) {
	_, err := New(testTimestamps(2), []string{"AAA"}, [][]float64{
		{0.01},
		{math.NaN()},
	})
	assert.Error(t, err)
}

func TestNewRejectsUnorderedTimestamps(t *testing.T) {
	ts := testTimestamps(2)
	ts[1] = ts[0]
	_, err := New(ts, []string{"AAA"}, [][]float64{{0.01}, {0.02}})
	assert.Error(t, err)
}

func TestSlice(t *testing.T) {
	m, err := New(testTimestamps(5), []string{"AAA"}, [][]float64{
		{0.01}, {0.02}, {0.03}, {0.04}, {0.05},
	})
	require.NoError(t, err)

	sub, err := m.Slice(1, 4)
	require.NoError(t, err)
	assert.Equal(t, 3, sub.T())
	assert.InDelta(t, 0.02, sub.Row(0)[0], 1e-12)

	_, err = m.Slice(3, 3)
	assert.Error(t, err)
}

func TestPortfolioSeries(t *testing.T) {
	m, err := New(testTimestamps(2), []string{"AAA", "BBB"}, [][]float64{
		{0.10, 0.20},
		{-0.10, 0.00},
	})
	require.NoError(t, err)

	series, err := m.PortfolioSeries([]float64{0.5, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.15, series[0], 1e-12)
	assert.InDelta(t, -0.05, series[1], 1e-12)

	_, err = m.PortfolioSeries([]float64{1.0})
	assert.Error(t, err)
}

func TestColumnMeansAndEqualWeights(t *testing.T) {
	m, err := New(testTimestamps(2), []string{"AAA", "BBB"}, [][]float64{
		{0.10, 0.00},
		{0.20, 0.10},
	})
	require.NoError(t, err)

	means := m.ColumnMeans()
	assert.InDelta(t, 0.15, means[0], 1e-12)
	assert.InDelta(t, 0.05, means[1], 1e-12)

	w := m.EqualWeights()
	assert.InDelta(t, 0.5, w[0], 1e-12)
	assert.InDelta(t, 0.5, w[1], 1e-12)
}
