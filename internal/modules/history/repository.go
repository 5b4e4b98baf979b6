// Package history stores daily close prices and assembles aligned return
// matrices for the numerical modules.
package history

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/internal/database"
	"github.com/quantfolio/quantfolio/internal/modules/returns"
	"github.com/quantfolio/quantfolio/pkg/formulas"
)

// PricePoint is one daily close observation.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// Repository provides access to the daily_prices table.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a price history repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("component", "history_repo").Logger(),
	}
}

// UpsertPrices stores price points for a ticker, replacing same-day rows.
func (r *Repository) UpsertPrices(ticker string, points []PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare("INSERT OR REPLACE INTO daily_prices (ticker, date, close) VALUES (?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, p := range points {
			if p.Close <= 0 {
				return fmt.Errorf("non-positive close %.4f for %s on %s", p.Close, ticker, p.Date.Format("2006-01-02"))
			}
			if _, err := stmt.Exec(ticker, p.Date.UTC().Unix(), p.Close); err != nil {
				return fmt.Errorf("failed to upsert price: %w", err)
			}
		}
		return nil
	})
}

// GetPrices fetches up to limit most recent prices for a ticker, returned in
// chronological order.
func (r *Repository) GetPrices(ticker string, limit int) ([]PricePoint, error) {
	rows, err := r.db.Query(`
		SELECT date, close
		FROM daily_prices
		WHERE ticker = ?
		ORDER BY date DESC
		LIMIT ?
	`, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices for %s: %w", ticker, err)
	}
	defer rows.Close()

	var points []PricePoint
	for rows.Next() {
		var dateUnix int64
		var p PricePoint
		if err := rows.Scan(&dateUnix, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		p.Date = time.Unix(dateUnix, 0).UTC()
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prices: %w", err)
	}

	// Reverse into chronological order.
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}

// Tickers lists all tickers with stored prices.
func (r *Repository) Tickers() ([]string, error) {
	rows, err := r.db.Query("SELECT DISTINCT ticker FROM daily_prices ORDER BY ticker")
	if err != nil {
		return nil, fmt.Errorf("failed to query tickers: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}

// ReturnMatrix assembles an aligned return matrix for the given tickers
// over up to lookback price observations. Prices are aligned on the union
// of observation dates; gaps are forward filled then back filled before
// computing returns. Tickers with no stored prices are an error.
func (r *Repository) ReturnMatrix(tickers []string, lookback int) (*returns.Matrix, error) {
	if len(tickers) == 0 {
		return nil, fmt.Errorf("no tickers requested")
	}

	series := make(map[string]map[int64]float64, len(tickers))
	dateSet := make(map[int64]struct{})
	for _, ticker := range tickers {
		points, err := r.GetPrices(ticker, lookback)
		if err != nil {
			return nil, err
		}
		if len(points) == 0 {
			return nil, fmt.Errorf("%w: no prices stored for %s", returns.ErrInsufficientData, ticker)
		}
		byDate := make(map[int64]float64, len(points))
		for _, p := range points {
			key := p.Date.Unix()
			byDate[key] = p.Close
			dateSet[key] = struct{}{}
		}
		series[ticker] = byDate
	}

	dates := make([]int64, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i] < dates[j] })
	if len(dates) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 aligned dates, got %d", returns.ErrInsufficientData, len(dates))
	}

	// Build the aligned price panel, filling gaps per ticker.
	prices := make([][]float64, len(tickers))
	for j, ticker := range tickers {
		col := make([]float64, len(dates))
		for i, d := range dates {
			if v, ok := series[ticker][d]; ok {
				col[i] = v
			}
		}
		fillGaps(col)
		prices[j] = col
	}

	timestamps := make([]time.Time, len(dates)-1)
	rows := make([][]float64, len(dates)-1)
	for i := range rows {
		timestamps[i] = time.Unix(dates[i+1], 0).UTC()
		rows[i] = make([]float64, len(tickers))
	}
	for j := range tickers {
		rets := formulas.CalculateReturns(prices[j])
		for i, v := range rets {
			rows[i][j] = v
		}
	}

	r.log.Debug().
		Int("tickers", len(tickers)).
		Int("observations", len(rows)).
		Msg("Assembled aligned return matrix")

	return returns.New(timestamps, tickers, rows)
}

// fillGaps forward fills zero entries from the previous observation, then
// back fills any leading gap from the first real value.
func fillGaps(col []float64) {
	last := 0.0
	for i, v := range col {
		if v > 0 {
			last = v
		} else if last > 0 {
			col[i] = last
		}
	}
	first := 0.0
	for _, v := range col {
		if v > 0 {
			first = v
			break
		}
	}
	for i := range col {
		if col[i] <= 0 && first > 0 {
			col[i] = first
		} else if col[i] > 0 {
			break
		}
	}
}
