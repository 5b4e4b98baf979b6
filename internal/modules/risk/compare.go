package risk

import (
	"math"

	"github.com/quantfolio/quantfolio/internal/modules/returns"
)

// MethodSummary describes one estimator's output for side-by-side review.
type MethodSummary struct {
	Method         Method      `json:"method"`
	Shrinkage      float64     `json:"shrinkage,omitempty"`
	AvgVariance    float64     `json:"avg_variance"`
	AvgCorrelation float64     `json:"avg_correlation"`
	Diagnostics    Diagnostics `json:"diagnostics"`
}

// Comparison holds the per-method summaries plus pairwise Frobenius
// distances between the estimated matrices.
type Comparison struct {
	Assets       []string                      `json:"assets"`
	Observations int                           `json:"observations"`
	Methods      []MethodSummary               `json:"methods"`
	Distances    map[string]map[string]float64 `json:"frobenius_distances"`
}

// Compare runs every estimator on the same return matrix and reports how
// their outputs differ. Useful for choosing a method before optimization.
func (e *Estimator) Compare(rm *returns.Matrix, opts Options) (*Comparison, error) {
	methods := []Method{MethodSample, MethodShrinkage, MethodExponential}
	covs := make(map[Method]*Covariance, len(methods))

	cmp := &Comparison{
		Assets:       rm.Assets(),
		Observations: rm.T(),
		Distances:    make(map[string]map[string]float64),
	}

	for _, m := range methods {
		o := opts
		o.Method = m
		cov, err := e.Estimate(rm, o)
		if err != nil {
			return nil, err
		}
		covs[m] = cov
		cmp.Methods = append(cmp.Methods, MethodSummary{
			Method:         m,
			Shrinkage:      cov.Shrinkage,
			AvgVariance:    avgVariance(cov),
			AvgCorrelation: avgCorrelation(cov),
			Diagnostics:    Diagnose(cov),
		})
	}

	for _, a := range methods {
		row := make(map[string]float64, len(methods))
		for _, b := range methods {
			if a == b {
				continue
			}
			row[string(b)] = frobeniusDistance(covs[a], covs[b])
		}
		cmp.Distances[string(a)] = row
	}
	return cmp, nil
}

func avgVariance(cov *Covariance) float64 {
	n := cov.Dim()
	var sum float64
	for i := 0; i < n; i++ {
		sum += cov.Variance(i)
	}
	return sum / float64(n)
}

// avgCorrelation averages the off-diagonal correlations implied by the
// covariance matrix. Returns 0 for a single asset.
func avgCorrelation(cov *Covariance) float64 {
	n := cov.Dim()
	if n < 2 {
		return 0
	}
	var sum float64
	var count int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			denom := math.Sqrt(cov.Variance(i) * cov.Variance(j))
			if denom > 0 {
				sum += cov.At(i, j) / denom
				count++
			}
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func frobeniusDistance(a, b *Covariance) float64 {
	n := a.Dim()
	var sum float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			d := a.At(i, j) - b.At(i, j)
			sum += d * d
		}
	}
	return math.Sqrt(sum)
}
