// Package optimization computes portfolio weight vectors under box, budget
// and turnover constraints. It provides mean-variance optimization with an
// efficient frontier sweep, risk parity, and Black-Litterman view blending.
package optimization

import (
	"errors"
	"fmt"
)

// ErrInvalidConstraint indicates an inconsistent or infeasible constraint
// set. It is detected before any solver work begins.
var ErrInvalidConstraint = errors.New("invalid constraint")

// Constraints bounds the weight vector. Every solution satisfies
// MinWeight <= w_i <= MaxWeight, sum(w) = 1 and, when MaxTurnover is set,
// sum(|w - prev|) <= MaxTurnover relative to the previous weights.
type Constraints struct {
	MinWeight   float64  `json:"min_weight"`
	MaxWeight   float64  `json:"max_weight"`
	MaxTurnover *float64 `json:"max_turnover,omitempty"`
}

// DefaultConstraints is the long-only unconstrained box.
func DefaultConstraints() Constraints {
	return Constraints{MinWeight: 0, MaxWeight: 1}
}

// Validate checks the constraint set for n assets. A box that cannot contain
// a fully invested portfolio is rejected here rather than handed to the
// solver.
func (c Constraints) Validate(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: no assets", ErrInvalidConstraint)
	}
	if c.MinWeight > c.MaxWeight {
		return fmt.Errorf("%w: min weight %.4f exceeds max weight %.4f", ErrInvalidConstraint, c.MinWeight, c.MaxWeight)
	}
	if c.MaxWeight*float64(n) < 1 {
		return fmt.Errorf("%w: max weight %.4f too small for %d assets to sum to 1", ErrInvalidConstraint, c.MaxWeight, n)
	}
	if c.MinWeight*float64(n) > 1 {
		return fmt.Errorf("%w: min weight %.4f too large for %d assets to sum to 1", ErrInvalidConstraint, c.MinWeight, n)
	}
	if c.MaxTurnover != nil && *c.MaxTurnover < 0 {
		return fmt.Errorf("%w: negative turnover limit", ErrInvalidConstraint)
	}
	return nil
}

// projectToFeasible clips weights to the box and redistributes the budget
// residual among unclamped assets until the vector sums to 1 within
// tolerance. The constraint set must have passed Validate.
func (c Constraints) projectToFeasible(weights []float64) []float64 {
	n := len(weights)
	w := make([]float64, n)
	copy(w, weights)

	for iter := 0; iter < 100; iter++ {
		var sum float64
		for i := range w {
			if w[i] < c.MinWeight {
				w[i] = c.MinWeight
			}
			if w[i] > c.MaxWeight {
				w[i] = c.MaxWeight
			}
			sum += w[i]
		}
		residual := 1.0 - sum
		if residual > -1e-10 && residual < 1e-10 {
			return w
		}

		// Spread the residual across assets with headroom in the needed
		// direction.
		free := 0
		for i := range w {
			if residual > 0 && w[i] < c.MaxWeight-1e-12 {
				free++
			} else if residual < 0 && w[i] > c.MinWeight+1e-12 {
				free++
			}
		}
		if free == 0 {
			return w
		}
		share := residual / float64(free)
		for i := range w {
			if residual > 0 && w[i] < c.MaxWeight-1e-12 {
				w[i] += share
			} else if residual < 0 && w[i] > c.MinWeight+1e-12 {
				w[i] += share
			}
		}
	}
	return w
}

// equalWeights returns the 1/n vector projected into the box.
func (c Constraints) equalWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}
	return c.projectToFeasible(w)
}
