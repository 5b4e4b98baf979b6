// Package backtest simulates holding a target allocation through a return
// history with periodic rebalancing and proportional transaction costs.
package backtest

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/internal/modules/metrics"
	"github.com/quantfolio/quantfolio/internal/modules/returns"
	"github.com/quantfolio/quantfolio/pkg/formulas"
)

// Frequency selects the rebalancing schedule. Rebalances fire on the first
// observation of each new calendar period, never on the first row.
type Frequency string

const (
	FrequencyNone      Frequency = "none"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyAnnual    Frequency = "annual"
)

// Params configures a simulation run.
type Params struct {
	TargetWeights []float64 `json:"target_weights"`
	Frequency     Frequency `json:"frequency"`
	CostBps       float64   `json:"cost_bps"`
}

// RebalanceEvent records one rebalance: the drifted-to-target turnover and
// the cost charged against that day's return.
type RebalanceEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Index     int       `json:"index"`
	Turnover  float64   `json:"turnover"`
	Cost      float64   `json:"cost"`
}

// Result is the full simulation output. Returns are net of costs; Equity is
// the compounded net curve with base 1. TurnoverSeries has one entry per
// period, zero everywhere except rebalance days.
type Result struct {
	Returns        []float64                `json:"returns"`
	TurnoverSeries []float64                `json:"turnover_series"`
	Equity         []float64                `json:"equity"`
	FinalWeights   []float64                `json:"final_weights"`
	Events         []RebalanceEvent         `json:"events"`
	TotalTurnover  float64                  `json:"total_turnover"`
	TotalCost      float64                  `json:"total_cost"`
	Summary        metrics.Summary          `json:"summary"`
	Drawdown       metrics.DrawdownAnalysis `json:"drawdown"`
}

// Simulator replays a target allocation through return history.
type Simulator struct {
	log         zerolog.Logger
	metricsOpts metrics.Options
}

// NewSimulator creates a rebalancing simulator. Zero-valued metric options
// fall back to the package defaults.
func NewSimulator(log zerolog.Logger, metricsOpts metrics.Options) *Simulator {
	return &Simulator{
		log:         log.With().Str("component", "backtest_simulator").Logger(),
		metricsOpts: metricsOpts,
	}
}

// Run simulates the allocation over the full return matrix. With frequency
// none the portfolio is pure buy and hold: weights drift freely and total
// turnover is exactly zero. On each rebalance day the cost is deducted from
// that day's return before the day's market move is applied.
func (s *Simulator) Run(rm *returns.Matrix, params Params) (*Result, error) {
	n := rm.N()
	if len(params.TargetWeights) != n {
		return nil, fmt.Errorf("target weights have length %d, want %d", len(params.TargetWeights), n)
	}
	var sum float64
	for _, w := range params.TargetWeights {
		if w < 0 {
			return nil, fmt.Errorf("negative target weight %.4f", w)
		}
		sum += w
	}
	if diff := sum - 1; diff < -1e-4 || diff > 1e-4 {
		return nil, fmt.Errorf("target weights sum to %.6f, want 1", sum)
	}
	if params.CostBps < 0 {
		return nil, fmt.Errorf("negative cost: %.2f bps", params.CostBps)
	}
	switch params.Frequency {
	case FrequencyNone, FrequencyMonthly, FrequencyQuarterly, FrequencyAnnual:
	case "":
		params.Frequency = FrequencyNone
	case "yearly":
		params.Frequency = FrequencyAnnual
	default:
		return nil, fmt.Errorf("unknown rebalance frequency: %s", params.Frequency)
	}

	timestamps := rm.Timestamps()
	costDecimal := params.CostBps / 10000.0
	target := append([]float64(nil), params.TargetWeights...)
	weights := append([]float64(nil), target...)

	result := &Result{
		Returns:        make([]float64, rm.T()),
		TurnoverSeries: make([]float64, rm.T()),
	}

	for i := 0; i < rm.T(); i++ {
		costToday := 0.0
		if i > 0 && isBoundary(params.Frequency, timestamps[i-1], timestamps[i]) {
			turnover := formulas.SumAbsDiff(weights, target)
			cost := turnover * costDecimal
			result.Events = append(result.Events, RebalanceEvent{
				Timestamp: timestamps[i],
				Index:     i,
				Turnover:  turnover,
				Cost:      cost,
			})
			result.TurnoverSeries[i] = turnover
			result.TotalTurnover += turnover
			result.TotalCost += cost
			costToday = cost
			copy(weights, target)
		}

		row := rm.Row(i)
		var dayReturn float64
		for j, w := range weights {
			dayReturn += w * row[j]
		}
		result.Returns[i] = dayReturn - costToday

		driftWeights(weights, row)
	}

	result.Equity = metrics.EquityCurve(result.Returns)
	result.FinalWeights = weights
	result.Summary = metrics.Compute(result.Returns, s.metricsOpts)
	result.Drawdown = metrics.AnalyzeDrawdowns(result.Returns, s.metricsOpts)

	s.log.Debug().
		Str("frequency", string(params.Frequency)).
		Int("periods", rm.T()).
		Int("rebalances", len(result.Events)).
		Float64("total_cost", result.TotalCost).
		Msg("Completed rebalance simulation")

	return result, nil
}

// isBoundary reports whether curr opens a new calendar period relative to
// prev under the given frequency.
func isBoundary(freq Frequency, prev, curr time.Time) bool {
	switch freq {
	case FrequencyMonthly:
		return prev.Year() != curr.Year() || prev.Month() != curr.Month()
	case FrequencyQuarterly:
		return prev.Year() != curr.Year() || quarterOf(prev) != quarterOf(curr)
	case FrequencyAnnual:
		return prev.Year() != curr.Year()
	default:
		return false
	}
}

func quarterOf(t time.Time) int {
	return (int(t.Month()) - 1) / 3
}

// driftWeights applies one period of market moves to the holdings and
// renormalizes. A portfolio wiped to zero keeps its previous weights.
func driftWeights(weights, rets []float64) {
	var total float64
	for j := range weights {
		weights[j] *= 1 + rets[j]
		total += weights[j]
	}
	if total <= 1e-12 {
		return
	}
	for j := range weights {
		weights[j] /= total
	}
}
