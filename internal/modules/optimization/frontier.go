package optimization

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/quantfolio/quantfolio/internal/modules/risk"
)

const (
	// DefaultFrontierPoints is the sweep resolution when unspecified.
	DefaultFrontierPoints = 20
	// MaxFrontierPoints caps the sweep to bound request cost.
	MaxFrontierPoints = 200
	// frontierReturnCeiling keeps the top target slightly inside the
	// single-asset maximum so the last point stays solvable under the box.
	frontierReturnCeiling = 0.95
)

// FrontierOptions configures an efficient frontier sweep.
type FrontierOptions struct {
	Points      int       `json:"points"`
	CostBps     float64   `json:"cost_bps"`
	PrevWeights []float64 `json:"prev_weights,omitempty"`
}

// FrontierPoint is one solved portfolio on the frontier. NetReturn deducts
// the one-time transaction cost of moving from the previous weights; it
// equals ExpectedReturn when no costs apply.
type FrontierPoint struct {
	TargetReturn   float64   `json:"target_return"`
	ExpectedReturn float64   `json:"expected_return"`
	NetReturn      float64   `json:"net_return"`
	Volatility     float64   `json:"volatility"`
	Sharpe         float64   `json:"sharpe"`
	Turnover       float64   `json:"turnover"`
	Weights        []float64 `json:"weights"`
}

// Frontier is the full sweep result. Points are ordered by target return
// and infeasible targets are skipped, not interpolated.
type Frontier struct {
	Assets      []string        `json:"assets"`
	Points      []FrontierPoint `json:"points"`
	MinVariance *Portfolio      `json:"min_variance"`
	MaxSharpe   *FrontierPoint  `json:"max_sharpe,omitempty"`
	Skipped     int             `json:"skipped"`
}

// EfficientFrontier sweeps target returns from the minimum variance
// portfolio's return up to just under the best single-asset return, solving
// each point independently. Points run in parallel; inputs are immutable
// across workers.
func (o *Optimizer) EfficientFrontier(cov *risk.Covariance, mu []float64, cons Constraints, opts FrontierOptions) (*Frontier, error) {
	n := cov.Dim()
	if len(mu) != n {
		return nil, fmt.Errorf("expected returns have length %d, want %d", len(mu), n)
	}
	if err := cons.Validate(n); err != nil {
		return nil, err
	}

	points := opts.Points
	if points <= 0 {
		points = DefaultFrontierPoints
	}
	if points > MaxFrontierPoints {
		points = MaxFrontierPoints
	}

	minVar, err := o.MinVariance(cov, mu, cons, opts.PrevWeights)
	if err != nil {
		return nil, err
	}

	maxMu := mu[0]
	for _, m := range mu[1:] {
		if m > maxMu {
			maxMu = m
		}
	}
	low := minVar.ExpectedReturn
	high := frontierReturnCeiling * maxMu
	if high < low {
		high = low
	}

	costDecimal := opts.CostBps / 10000.0

	results := make([]*FrontierPoint, points)
	var g errgroup.Group
	var mu2 sync.Mutex
	skipped := 0

	for i := 0; i < points; i++ {
		i := i
		g.Go(func() error {
			target := low
			if points > 1 {
				target = low + (high-low)*float64(i)/float64(points-1)
			}
			p, err := o.TargetReturn(cov, mu, target, cons, opts.PrevWeights, costDecimal)
			if err != nil {
				return err
			}
			if p.Status != StatusOptimal {
				mu2.Lock()
				skipped++
				mu2.Unlock()
				return nil
			}
			fp := &FrontierPoint{
				TargetReturn:   target,
				ExpectedReturn: p.ExpectedReturn,
				NetReturn:      p.ExpectedReturn,
				Volatility:     p.Volatility,
				Turnover:       p.Turnover,
				Weights:        p.Weights,
			}
			if costDecimal > 0 && len(opts.PrevWeights) == n {
				fp.NetReturn = p.ExpectedReturn - fp.Turnover*costDecimal
			}
			fp.Sharpe = safeSharpe(fp.NetReturn, fp.Volatility)
			results[i] = fp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	frontier := &Frontier{
		Assets:      cov.Assets,
		MinVariance: minVar,
		Skipped:     skipped,
	}
	for _, fp := range results {
		if fp == nil {
			continue
		}
		frontier.Points = append(frontier.Points, *fp)
		if frontier.MaxSharpe == nil || fp.Sharpe > frontier.MaxSharpe.Sharpe {
			p := *fp
			frontier.MaxSharpe = &p
		}
	}

	o.log.Info().
		Int("points", len(frontier.Points)).
		Int("skipped", skipped).
		Float64("cost_bps", opts.CostBps).
		Msg("Computed efficient frontier")

	return frontier, nil
}
