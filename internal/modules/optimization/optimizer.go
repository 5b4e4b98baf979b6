package optimization

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/internal/modules/risk"
)

// Portfolio is an optimized allocation with its ex-ante statistics. Returns
// and volatility are on the same scale as the inputs (annualized when the
// covariance and expected returns are annualized).
type Portfolio struct {
	Assets         []string  `json:"assets"`
	Weights        []float64 `json:"weights"`
	ExpectedReturn float64   `json:"expected_return"`
	Volatility     float64   `json:"volatility"`
	Sharpe         float64   `json:"sharpe"`
	Turnover       float64   `json:"turnover,omitempty"`
	Status         Status    `json:"status"`
	FallbackUsed   bool      `json:"fallback_used"`
}

// Optimizer runs constrained portfolio optimizations over a covariance
// matrix and optional expected returns.
type Optimizer struct {
	solver QPSolver
	log    zerolog.Logger
}

// NewOptimizer creates an optimizer with the default quadratic solver.
func NewOptimizer(log zerolog.Logger) *Optimizer {
	return &Optimizer{
		solver: NewPenaltySolver(),
		log:    log.With().Str("component", "optimizer").Logger(),
	}
}

// MinVariance finds the lowest-volatility fully invested portfolio inside
// the constraint box. If the solver fails to converge, the projected equal
// weight portfolio is returned with FallbackUsed set rather than an error.
func (o *Optimizer) MinVariance(cov *risk.Covariance, mu []float64, cons Constraints, prev []float64) (*Portfolio, error) {
	if err := cons.Validate(cov.Dim()); err != nil {
		return nil, err
	}

	sol, err := o.solver.Solve(&Problem{
		Sigma:       cov.Values,
		Mu:          mu,
		Constraints: cons,
		PrevWeights: prev,
	})
	if err != nil {
		return nil, err
	}

	if sol.Status == StatusDegraded {
		o.log.Warn().Msg("Minimum variance solve did not converge, using equal weight fallback")
		return o.fallbackPortfolio(cov, mu, cons, prev), nil
	}
	return o.buildPortfolio(cov, mu, sol.Weights, prev, sol.Status, false), nil
}

// TargetReturn finds the lowest-volatility portfolio whose expected return
// is at least target. Infeasible targets report StatusInfeasible.
func (o *Optimizer) TargetReturn(cov *risk.Covariance, mu []float64, target float64, cons Constraints, prev []float64, costPenalty float64) (*Portfolio, error) {
	if err := cons.Validate(cov.Dim()); err != nil {
		return nil, err
	}

	sol, err := o.solver.Solve(&Problem{
		Sigma:        cov.Values,
		Mu:           mu,
		TargetReturn: &target,
		Constraints:  cons,
		PrevWeights:  prev,
		CostPenalty:  costPenalty,
	})
	if err != nil {
		return nil, err
	}

	if sol.Status == StatusDegraded {
		return o.fallbackPortfolio(cov, mu, cons, prev), nil
	}
	return o.buildPortfolio(cov, mu, sol.Weights, prev, sol.Status, false), nil
}

func (o *Optimizer) fallbackPortfolio(cov *risk.Covariance, mu []float64, cons Constraints, prev []float64) *Portfolio {
	w := cons.equalWeights(cov.Dim())
	p := o.buildPortfolio(cov, mu, w, prev, StatusDegraded, true)
	return p
}

func (o *Optimizer) buildPortfolio(cov *risk.Covariance, mu, weights, prev []float64, status Status, fallback bool) *Portfolio {
	p := &Portfolio{
		Assets:       cov.Assets,
		Weights:      weights,
		Volatility:   portfolioVolatility(cov, weights),
		Status:       status,
		FallbackUsed: fallback,
	}
	if len(mu) == len(weights) {
		p.ExpectedReturn = dot(mu, weights)
		p.Sharpe = safeSharpe(p.ExpectedReturn, p.Volatility)
	}
	if len(prev) == len(weights) {
		p.Turnover = l1Distance(weights, prev)
	}
	return p
}

func portfolioVolatility(cov *risk.Covariance, w []float64) float64 {
	v := quadraticForm(cov.Values, w)
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}

// safeSharpe returns ret/vol, or 0 when volatility is numerically zero.
func safeSharpe(ret, vol float64) float64 {
	if vol <= 1e-10 {
		return 0
	}
	return ret / vol
}

func l1Distance(x, y []float64) float64 {
	var s float64
	for i := range x {
		s += math.Abs(x[i] - y[i])
	}
	return s
}
