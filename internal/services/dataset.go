// Package services holds cross-module application services.
package services

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/internal/modules/history"
	"github.com/quantfolio/quantfolio/internal/modules/returns"
)

// DatasetRequest selects the return history for an analysis. Either Tickers
// (resolved against stored price history) or inline Dates/Assets/Rows must
// be provided, not both.
type DatasetRequest struct {
	Tickers  []string    `json:"tickers,omitempty"`
	Lookback int         `json:"lookback,omitempty"`
	Dates    []string    `json:"dates,omitempty"`
	Assets   []string    `json:"assets,omitempty"`
	Rows     [][]float64 `json:"rows,omitempty"`
}

// DatasetService resolves dataset requests into validated return matrices.
type DatasetService struct {
	history         *history.Repository
	defaultLookback int
	log             zerolog.Logger
}

// NewDatasetService creates a dataset resolver.
func NewDatasetService(historyRepo *history.Repository, defaultLookback int, log zerolog.Logger) *DatasetService {
	return &DatasetService{
		history:         historyRepo,
		defaultLookback: defaultLookback,
		log:             log.With().Str("component", "dataset_service").Logger(),
	}
}

// Resolve builds the return matrix for a request. Ticker requests read from
// stored price history; inline requests parse the supplied rows directly.
func (s *DatasetService) Resolve(req DatasetRequest) (*returns.Matrix, error) {
	hasTickers := len(req.Tickers) > 0
	hasInline := len(req.Rows) > 0

	switch {
	case hasTickers && hasInline:
		return nil, fmt.Errorf("provide either tickers or inline rows, not both")
	case hasTickers:
		lookback := req.Lookback
		if lookback <= 0 {
			lookback = s.defaultLookback
		}
		return s.history.ReturnMatrix(req.Tickers, lookback)
	case hasInline:
		return parseInline(req)
	default:
		return nil, fmt.Errorf("no dataset provided")
	}
}

func parseInline(req DatasetRequest) (*returns.Matrix, error) {
	if len(req.Assets) == 0 {
		return nil, fmt.Errorf("inline rows require asset names")
	}
	if len(req.Dates) != len(req.Rows) {
		return nil, fmt.Errorf("got %d dates for %d rows", len(req.Dates), len(req.Rows))
	}

	timestamps := make([]time.Time, len(req.Dates))
	for i, d := range req.Dates {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q at row %d: %w", d, i, err)
		}
		timestamps[i] = t
	}
	return returns.New(timestamps, req.Assets, req.Rows)
}
