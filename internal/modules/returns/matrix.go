// Package returns defines the aligned return matrix consumed by the risk,
// optimization, backtest and walk-forward modules.
package returns

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInsufficientData indicates too few observations for the requested
// computation. It is surfaced to callers, never silently degraded.
var ErrInsufficientData = errors.New("insufficient data")

// Matrix is an ordered sequence of timestamped return observations over a
// fixed asset set. Rows are chronological with strictly increasing
// timestamps, every row covers every asset, and all values are finite.
// A Matrix is immutable once constructed.
type Matrix struct {
	timestamps []time.Time
	assets     []string
	rows       [][]float64
}

// New validates and constructs a Matrix. The rows slice is retained, not
// copied; callers must not mutate it afterwards.
func New(timestamps []time.Time, assets []string, rows [][]float64) (*Matrix, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("no assets provided")
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no return observations", ErrInsufficientData)
	}
	if len(timestamps) != len(rows) {
		return nil, fmt.Errorf("timestamp count %d does not match row count %d", len(timestamps), len(rows))
	}

	for i, row := range rows {
		if len(row) != len(assets) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(assets))
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("non-finite return at row %d for asset %s", i, assets[j])
			}
		}
		if i > 0 && !timestamps[i].After(timestamps[i-1]) {
			return nil, fmt.Errorf("timestamps not strictly increasing at row %d", i)
		}
	}

	return &Matrix{
		timestamps: timestamps,
		assets:     assets,
		rows:       rows,
	}, nil
}

// T returns the number of observations.
func (m *Matrix) T() int {
	return len(m.rows)
}

// N returns the number of assets.
func (m *Matrix) N() int {
	return len(m.assets)
}

// Assets returns the asset identifiers in column order.
func (m *Matrix) Assets() []string {
	out := make([]string, len(m.assets))
	copy(out, m.assets)
	return out
}

// Timestamps returns the observation timestamps in row order.
func (m *Matrix) Timestamps() []time.Time {
	out := make([]time.Time, len(m.timestamps))
	copy(out, m.timestamps)
	return out
}

// Row returns the return observation at index i.
func (m *Matrix) Row(i int) []float64 {
	out := make([]float64, len(m.rows[i]))
	copy(out, m.rows[i])
	return out
}

// Column returns the full return series for asset column j.
func (m *Matrix) Column(j int) []float64 {
	out := make([]float64, len(m.rows))
	for i, row := range m.rows {
		out[i] = row[j]
	}
	return out
}

// Slice returns a view matrix over rows [start, end). The underlying data
// is shared, which is safe because matrices are immutable.
func (m *Matrix) Slice(start, end int) (*Matrix, error) {
	if start < 0 || end > len(m.rows) || start >= end {
		return nil, fmt.Errorf("invalid slice range [%d, %d) for %d rows", start, end, len(m.rows))
	}
	return &Matrix{
		timestamps: m.timestamps[start:end],
		assets:     m.assets,
		rows:       m.rows[start:end],
	}, nil
}

// PortfolioSeries computes the per-period portfolio return series for a
// fixed weight vector in column order.
func (m *Matrix) PortfolioSeries(weights []float64) ([]float64, error) {
	if len(weights) != len(m.assets) {
		return nil, fmt.Errorf("weight count %d does not match asset count %d", len(weights), len(m.assets))
	}
	series := make([]float64, len(m.rows))
	for i, row := range m.rows {
		var r float64
		for j, w := range weights {
			r += w * row[j]
		}
		series[i] = r
	}
	return series, nil
}

// ColumnMeans returns the per-asset mean return over all observations.
func (m *Matrix) ColumnMeans() []float64 {
	means := make([]float64, len(m.assets))
	for _, row := range m.rows {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= float64(len(m.rows))
	}
	return means
}

// EqualWeights returns the 1/N weight vector for the matrix asset set.
func (m *Matrix) EqualWeights() []float64 {
	w := make([]float64, len(m.assets))
	for i := range w {
		w[i] = 1.0 / float64(len(m.assets))
	}
	return w
}
