package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Status reports how a solve ended.
type Status string

const (
	// StatusOptimal: the solver converged and the solution satisfies the
	// constraints within tolerance.
	StatusOptimal Status = "optimal"
	// StatusDegraded: the solver failed and a safe fallback was substituted.
	StatusDegraded Status = "degraded"
	// StatusInfeasible: no weight vector can satisfy the constraints.
	StatusInfeasible Status = "infeasible"
)

// Problem is a single constrained quadratic solve. Sigma is required; Mu and
// TargetReturn add a minimum expected return constraint; PrevWeights with
// CostPenalty adds a transaction cost term to the objective; PrevWeights
// with Constraints.MaxTurnover caps total reallocation.
type Problem struct {
	Sigma        *mat.SymDense
	Mu           []float64
	TargetReturn *float64
	Constraints  Constraints
	PrevWeights  []float64
	CostPenalty  float64 // decimal cost per unit of turnover added to the objective
}

// Solution is a solved weight vector with solve metadata.
type Solution struct {
	Weights   []float64
	Status    Status
	Objective float64 // w' Sigma w at the final weights
}

// QPSolver solves box- and budget-constrained quadratic portfolio problems.
type QPSolver interface {
	Solve(p *Problem) (*Solution, error)
}

const (
	penaltyWeight = 1000.0
	smoothAbsEps  = 1e-8
)

// successStatuses are the gonum termination statuses accepted as converged.
var successStatuses = map[optimize.Status]bool{
	optimize.Success:             true,
	optimize.GradientThreshold:   true,
	optimize.FunctionConvergence: true,
	optimize.FunctionThreshold:   true,
}

// PenaltySolver minimizes w' Sigma w with the equality and inequality
// constraints folded into quadratic penalty terms, running BFGS first and
// falling back to Nelder-Mead when the gradient method stalls. The final
// iterate is projected back onto the feasible box.
type PenaltySolver struct{}

// NewPenaltySolver creates the default quadratic solver.
func NewPenaltySolver() *PenaltySolver {
	return &PenaltySolver{}
}

// Solve runs the penalty minimization. It returns an error only for
// malformed problems; solver non-convergence yields a degraded solution so
// callers can decide between fallback and skip.
func (s *PenaltySolver) Solve(p *Problem) (*Solution, error) {
	n, _ := p.Sigma.Dims()
	if n == 0 {
		return nil, fmt.Errorf("empty covariance matrix")
	}
	if err := p.Constraints.Validate(n); err != nil {
		return nil, err
	}
	if p.TargetReturn != nil && len(p.Mu) != n {
		return nil, fmt.Errorf("target return set but expected returns have length %d, want %d", len(p.Mu), n)
	}
	if len(p.PrevWeights) > 0 && len(p.PrevWeights) != n {
		return nil, fmt.Errorf("previous weights have length %d, want %d", len(p.PrevWeights), n)
	}

	if n == 1 {
		w := p.Constraints.projectToFeasible([]float64{1})
		return &Solution{Weights: w, Status: StatusOptimal, Objective: p.Sigma.At(0, 0)}, nil
	}

	objective := s.buildObjective(p, n)
	x0 := p.Constraints.equalWeights(n)
	if len(p.PrevWeights) > 0 {
		x0 = p.Constraints.projectToFeasible(p.PrevWeights)
	}

	result, converged := s.minimize(objective, x0, &optimize.BFGS{})
	if !converged {
		result, converged = s.minimize(objective, x0, &optimize.NelderMead{})
	}

	weights := p.Constraints.projectToFeasible(result)
	sol := &Solution{
		Weights:   weights,
		Status:    StatusOptimal,
		Objective: quadraticForm(p.Sigma, weights),
	}
	if !converged {
		sol.Status = StatusDegraded
	} else if p.TargetReturn != nil && dot(p.Mu, weights) < *p.TargetReturn-1e-4 {
		// Converged but could not reach the return floor within the box.
		sol.Status = StatusInfeasible
	}
	return sol, nil
}

func (s *PenaltySolver) minimize(problem optimize.Problem, x0 []float64, method optimize.Method) ([]float64, bool) {
	settings := &optimize.Settings{
		MajorIterations: 1000,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Iterations: 50,
		},
	}
	result, err := optimize.Minimize(problem, x0, settings, method)
	if err != nil || result == nil {
		return x0, false
	}
	if !successStatuses[result.Status] {
		return result.X, false
	}
	return result.X, true
}

// buildObjective folds all constraints into a smooth penalized objective
// with an analytic gradient.
func (s *PenaltySolver) buildObjective(p *Problem, n int) optimize.Problem {
	fn := func(w []float64) float64 {
		obj := quadraticForm(p.Sigma, w)

		var sum float64
		for _, wi := range w {
			sum += wi
		}
		obj += penaltyWeight * (sum - 1) * (sum - 1)

		for _, wi := range w {
			if d := p.Constraints.MinWeight - wi; d > 0 {
				obj += penaltyWeight * d * d
			}
			if d := wi - p.Constraints.MaxWeight; d > 0 {
				obj += penaltyWeight * d * d
			}
		}

		if p.TargetReturn != nil {
			if d := *p.TargetReturn - dot(p.Mu, w); d > 0 {
				obj += penaltyWeight * d * d
			}
		}

		if len(p.PrevWeights) > 0 {
			turnover := smoothTurnover(w, p.PrevWeights)
			if p.CostPenalty > 0 {
				obj += p.CostPenalty * turnover
			}
			if p.Constraints.MaxTurnover != nil {
				if d := turnover - *p.Constraints.MaxTurnover; d > 0 {
					obj += penaltyWeight * d * d
				}
			}
		}
		return obj
	}

	grad := func(g, w []float64) {
		// d/dw (w' Sigma w) = 2 Sigma w
		for i := 0; i < n; i++ {
			var v float64
			for j := 0; j < n; j++ {
				v += p.Sigma.At(i, j) * w[j]
			}
			g[i] = 2 * v
		}

		var sum float64
		for _, wi := range w {
			sum += wi
		}
		for i := range g {
			g[i] += 2 * penaltyWeight * (sum - 1)
		}

		for i, wi := range w {
			if d := p.Constraints.MinWeight - wi; d > 0 {
				g[i] -= 2 * penaltyWeight * d
			}
			if d := wi - p.Constraints.MaxWeight; d > 0 {
				g[i] += 2 * penaltyWeight * d
			}
		}

		if p.TargetReturn != nil {
			if d := *p.TargetReturn - dot(p.Mu, w); d > 0 {
				for i := range g {
					g[i] -= 2 * penaltyWeight * d * p.Mu[i]
				}
			}
		}

		if len(p.PrevWeights) > 0 {
			turnover := smoothTurnover(w, p.PrevWeights)
			scale := 0.0
			if p.CostPenalty > 0 {
				scale += p.CostPenalty
			}
			if p.Constraints.MaxTurnover != nil {
				if d := turnover - *p.Constraints.MaxTurnover; d > 0 {
					scale += 2 * penaltyWeight * d
				}
			}
			if scale != 0 {
				for i := range g {
					diff := w[i] - p.PrevWeights[i]
					g[i] += scale * diff / math.Sqrt(diff*diff+smoothAbsEps)
				}
			}
		}
	}

	return optimize.Problem{Func: fn, Grad: grad}
}

// smoothTurnover is sum(|w - prev|) with a smooth absolute value so the
// objective stays differentiable at the previous weights.
func smoothTurnover(w, prev []float64) float64 {
	var t float64
	for i := range w {
		d := w[i] - prev[i]
		t += math.Sqrt(d*d + smoothAbsEps)
	}
	return t
}

func quadraticForm(sigma *mat.SymDense, w []float64) float64 {
	var obj float64
	n := len(w)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			obj += w[i] * sigma.At(i, j) * w[j]
		}
	}
	return obj
}

func dot(x, y []float64) float64 {
	var s float64
	for i := range x {
		s += x[i] * y[i]
	}
	return s
}
