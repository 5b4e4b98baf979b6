package optimization

import (
	"fmt"
	"math"

	"github.com/quantfolio/quantfolio/internal/modules/risk"
)

const (
	riskParityMaxIters = 100
	riskParityTol      = 1e-6
)

// RiskParityResult carries the allocation plus per-asset risk contributions
// so callers can verify the parity property directly.
type RiskParityResult struct {
	Portfolio
	RiskContributions []float64 `json:"risk_contributions"`
	Converged         bool      `json:"converged"`
	Iterations        int       `json:"iterations"`
}

// RiskParity finds weights where each asset contributes its budgeted share
// of total portfolio risk. Budgets default to equal shares when nil. Each
// iteration rescales every weight by the square root of its budget-to-share
// ratio, a damped multiplicative update whose fixed point is the parity
// allocation; on non-convergence the best iterate is returned with
// Converged false instead of an error.
func (o *Optimizer) RiskParity(cov *risk.Covariance, mu []float64, budgets []float64) (*RiskParityResult, error) {
	n := cov.Dim()
	if n == 0 {
		return nil, fmt.Errorf("empty covariance matrix")
	}
	if budgets == nil {
		budgets = make([]float64, n)
		for i := range budgets {
			budgets[i] = 1.0 / float64(n)
		}
	}
	if len(budgets) != n {
		return nil, fmt.Errorf("%w: %d risk budgets for %d assets", ErrInvalidConstraint, len(budgets), n)
	}
	var budgetSum float64
	for _, b := range budgets {
		if b <= 0 {
			return nil, fmt.Errorf("%w: risk budgets must be positive", ErrInvalidConstraint)
		}
		budgetSum += b
	}
	for i := range budgets {
		budgets[i] /= budgetSum
	}

	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}

	best := make([]float64, n)
	copy(best, w)
	shares := make([]float64, n)
	bestErr := -1.0
	converged := false
	iterations := 0

	for iter := 0; iter < riskParityMaxIters; iter++ {
		iterations = iter + 1
		mrc := marginalContributions(cov, w)

		totalRisk := dot(w, mrc)
		maxDev := 0.0
		for i := range w {
			shares[i] = 0
			if totalRisk > 0 {
				shares[i] = w[i] * mrc[i] / totalRisk
			}
			dev := shares[i] - budgets[i]
			if dev < 0 {
				dev = -dev
			}
			if dev > maxDev {
				maxDev = dev
			}
		}
		if bestErr < 0 || maxDev < bestErr {
			bestErr = maxDev
			copy(best, w)
		}
		if maxDev < riskParityTol {
			converged = true
			break
		}

		for i := range w {
			if shares[i] <= 1e-12 {
				// A collapsed weight cannot recover through scaling.
				w[i] = budgets[i]
				continue
			}
			w[i] *= math.Sqrt(budgets[i] / shares[i])
		}
		normalizeInPlace(w)
	}

	if !converged {
		copy(w, best)
		o.log.Warn().
			Float64("max_deviation", bestErr).
			Int("iterations", iterations).
			Msg("Risk parity did not converge, returning best iterate")
	}

	mrc := marginalContributions(cov, w)
	totalRisk := dot(w, mrc)
	contributions := make([]float64, n)
	for i := range w {
		if totalRisk > 0 {
			contributions[i] = w[i] * mrc[i] / totalRisk
		}
	}

	res := &RiskParityResult{
		Portfolio:         *o.buildPortfolio(cov, mu, w, nil, StatusOptimal, false),
		RiskContributions: contributions,
		Converged:         converged,
		Iterations:        iterations,
	}
	if !converged {
		res.Status = StatusDegraded
	}
	return res, nil
}

// marginalContributions computes Sigma * w, the gradient of portfolio
// variance per asset.
func marginalContributions(cov *risk.Covariance, w []float64) []float64 {
	n := len(w)
	mrc := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			mrc[i] += cov.At(i, j) * w[j]
		}
	}
	return mrc
}

func normalizeInPlace(w []float64) {
	var sum float64
	for _, v := range w {
		sum += v
	}
	if sum <= 0 {
		for i := range w {
			w[i] = 1.0 / float64(len(w))
		}
		return
	}
	for i := range w {
		w[i] /= sum
	}
}
