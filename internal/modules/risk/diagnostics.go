package risk

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// eigenvalueFloor: eigenvalues at or below this are treated as numerically
// zero for conditioning diagnostics.
const eigenvalueFloor = 1e-10

// Diagnostics summarizes the numerical conditioning of a covariance matrix.
type Diagnostics struct {
	ConditionNumber float64 `json:"condition_number"`
	EffectiveRank   float64 `json:"effective_rank"`
	MinEigenvalue   float64 `json:"min_eigenvalue"`
	MaxEigenvalue   float64 `json:"max_eigenvalue"`
	Ridged          bool    `json:"ridged"`
}

// Diagnose computes conditioning diagnostics for a covariance matrix.
// Condition number uses only eigenvalues above the numerical floor;
// effective rank is the entropy-based participation count of the
// eigenvalue distribution.
func Diagnose(cov *Covariance) Diagnostics {
	eigs := eigenvalues(cov.Values)
	d := Diagnostics{Ridged: cov.Ridged}
	if len(eigs) == 0 {
		return d
	}

	d.MinEigenvalue = eigs[0]
	d.MaxEigenvalue = eigs[0]
	var total float64
	for _, e := range eigs {
		if e < d.MinEigenvalue {
			d.MinEigenvalue = e
		}
		if e > d.MaxEigenvalue {
			d.MaxEigenvalue = e
		}
		if e > 0 {
			total += e
		}
	}

	minPositive := math.Inf(1)
	for _, e := range eigs {
		if e > eigenvalueFloor && e < minPositive {
			minPositive = e
		}
	}
	if !math.IsInf(minPositive, 1) && minPositive > 0 {
		d.ConditionNumber = d.MaxEigenvalue / minPositive
	}

	if total > 0 {
		var entropy float64
		for _, e := range eigs {
			if e <= 0 {
				continue
			}
			p := e / total
			entropy -= p * math.Log(p+1e-10)
		}
		d.EffectiveRank = math.Exp(entropy)
	}
	return d
}

// minEigenvalue returns the smallest eigenvalue of a symmetric matrix, or
// -Inf if the decomposition fails.
func minEigenvalue(m *mat.SymDense) float64 {
	eigs := eigenvalues(m)
	if len(eigs) == 0 {
		return math.Inf(-1)
	}
	min := eigs[0]
	for _, e := range eigs[1:] {
		if e < min {
			min = e
		}
	}
	return min
}

func eigenvalues(m *mat.SymDense) []float64 {
	var eig mat.EigenSym
	if !eig.Factorize(m, false) {
		return nil
	}
	return eig.Values(nil)
}
