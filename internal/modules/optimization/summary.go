package optimization

import (
	"github.com/quantfolio/quantfolio/internal/modules/risk"
)

// Summary runs the standard strategies side by side over one covariance and
// expected return estimate so they can be compared on equal footing.
type Summary struct {
	Assets       []string          `json:"assets"`
	MinVariance  *Portfolio        `json:"min_variance"`
	MaxSharpe    *FrontierPoint    `json:"max_sharpe,omitempty"`
	RiskParity   *RiskParityResult `json:"risk_parity"`
	EqualWeight  *Portfolio        `json:"equal_weight"`
	FrontierSize int               `json:"frontier_size"`
}

// Summarize computes minimum variance, maximum Sharpe, risk parity and the
// equal weight baseline for the same inputs.
func (o *Optimizer) Summarize(cov *risk.Covariance, mu []float64, cons Constraints, opts FrontierOptions) (*Summary, error) {
	frontier, err := o.EfficientFrontier(cov, mu, cons, opts)
	if err != nil {
		return nil, err
	}

	parity, err := o.RiskParity(cov, mu, nil)
	if err != nil {
		return nil, err
	}

	equal := o.buildPortfolio(cov, mu, cons.equalWeights(cov.Dim()), opts.PrevWeights, StatusOptimal, false)

	return &Summary{
		Assets:       cov.Assets,
		MinVariance:  frontier.MinVariance,
		MaxSharpe:    frontier.MaxSharpe,
		RiskParity:   parity,
		EqualWeight:  equal,
		FrontierSize: len(frontier.Points),
	}, nil
}
