// Package risk builds annualized, well-conditioned covariance matrices from
// return history.
//
// Three estimators are provided: plain sample covariance, Ledoit-Wolf
// shrinkage toward a diagonal variance target, and exponentially weighted
// covariance with a configurable half-life. All of them run the same
// conditioning step before returning: if the minimum eigenvalue is below
// RidgeEpsilon a ridge term is added, so near-singular input is repaired
// locally instead of surfacing as an error.
package risk

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/quantfolio/quantfolio/internal/modules/returns"
)

// Method selects the covariance estimator.
type Method string

const (
	MethodSample      Method = "sample"
	MethodShrinkage   Method = "shrinkage"
	MethodExponential Method = "exponential"
)

const (
	// DefaultPeriodsPerYear is the annualization factor for daily returns.
	DefaultPeriodsPerYear = 252
	// DefaultHalflife is the exponential estimator decay half-life in periods.
	DefaultHalflife = 60
	// RidgeEpsilon is both the minimum acceptable eigenvalue and the ridge
	// magnitude added when the matrix falls below it.
	RidgeEpsilon = 1e-6
)

// Options configures an estimation call.
type Options struct {
	Method         Method
	Annualize      bool
	PeriodsPerYear int // defaults to DefaultPeriodsPerYear
	Halflife       int // exponential method only, defaults to DefaultHalflife
}

// Covariance is an N x N symmetric covariance matrix over a fixed asset set.
type Covariance struct {
	Assets    []string
	Values    *mat.SymDense
	Method    Method
	Factor    float64 // annualization factor applied (1 if not annualized)
	Shrinkage float64 // delta in [0, 1]; 0 for non-shrinkage methods
	Ridged    bool    // true when a ridge term was added for conditioning
}

// Dim returns the matrix dimension.
func (c *Covariance) Dim() int {
	return len(c.Assets)
}

// At returns the covariance between assets i and j.
func (c *Covariance) At(i, j int) float64 {
	return c.Values.At(i, j)
}

// Variance returns the diagonal entry for asset i.
func (c *Covariance) Variance(i int) float64 {
	return c.Values.At(i, i)
}

// Rows returns the matrix as a row-major slice of slices.
func (c *Covariance) Rows() [][]float64 {
	n := c.Dim()
	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		rows[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			rows[i][j] = c.Values.At(i, j)
		}
	}
	return rows
}

// Estimator computes covariance matrices from return history.
type Estimator struct {
	log zerolog.Logger
}

// NewEstimator creates a covariance estimator.
func NewEstimator(log zerolog.Logger) *Estimator {
	return &Estimator{
		log: log.With().Str("component", "covariance_estimator").Logger(),
	}
}

// Estimate builds a covariance matrix from the return matrix using the
// configured method. A single asset yields a 1x1 variance matrix; fewer
// than 2 observations is an error.
func (e *Estimator) Estimate(rm *returns.Matrix, opts Options) (*Covariance, error) {
	if rm.T() < 2 {
		return nil, fmt.Errorf("%w: need at least 2 observations, got %d", returns.ErrInsufficientData, rm.T())
	}

	if opts.Method == "" {
		opts.Method = MethodSample
	}
	if opts.PeriodsPerYear <= 0 {
		opts.PeriodsPerYear = DefaultPeriodsPerYear
	}
	if opts.Halflife <= 0 {
		opts.Halflife = DefaultHalflife
	}

	var (
		values    *mat.SymDense
		shrinkage float64
		err       error
	)

	switch opts.Method {
	case MethodSample:
		values = sampleCovariance(rm)
	case MethodShrinkage:
		values, shrinkage = shrinkageCovariance(rm)
	case MethodExponential:
		values, err = exponentialCovariance(rm, opts.Halflife)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown covariance method: %s", opts.Method)
	}

	factor := 1.0
	if opts.Annualize {
		factor = float64(opts.PeriodsPerYear)
		values.ScaleSym(factor, values)
	}

	cov := &Covariance{
		Assets:    rm.Assets(),
		Values:    values,
		Method:    opts.Method,
		Factor:    factor,
		Shrinkage: shrinkage,
	}
	e.conditionInPlace(cov)

	e.log.Debug().
		Str("method", string(opts.Method)).
		Int("assets", cov.Dim()).
		Int("observations", rm.T()).
		Float64("shrinkage", shrinkage).
		Bool("ridged", cov.Ridged).
		Msg("Estimated covariance matrix")

	return cov, nil
}

// conditionInPlace adds a ridge term when the minimum eigenvalue falls below
// RidgeEpsilon. Near-singular input is never an error, only repaired.
func (e *Estimator) conditionInPlace(cov *Covariance) {
	minEig := minEigenvalue(cov.Values)
	if minEig >= RidgeEpsilon {
		return
	}
	n := cov.Dim()
	for i := 0; i < n; i++ {
		cov.Values.SetSym(i, i, cov.Values.At(i, i)+RidgeEpsilon)
	}
	cov.Ridged = true
	e.log.Warn().
		Float64("min_eigenvalue", minEig).
		Msg("Covariance near singular, applied ridge regularization")
}

// sampleCovariance computes the sample covariance matrix (N-1 denominator).
func sampleCovariance(rm *returns.Matrix) *mat.SymDense {
	n := rm.N()
	t := rm.T()
	means := rm.ColumnMeans()
	cols := columnData(rm)

	cov := mat.NewSymDense(n, nil)
	denom := float64(t - 1)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var s float64
			for k := 0; k < t; k++ {
				s += (cols[i][k] - means[i]) * (cols[j][k] - means[j])
			}
			cov.SetSym(i, j, s/denom)
		}
	}
	return cov
}

// shrinkageCovariance blends the sample covariance with a diagonal variance
// target using the analytic Ledoit-Wolf intensity:
//
//	Sigma = delta*F + (1-delta)*S
//
// delta is estimated from the asymptotic variance of the sample covariance
// entries relative to their squared deviation from the target and is
// clamped to [0, 1].
func shrinkageCovariance(rm *returns.Matrix) (*mat.SymDense, float64) {
	n := rm.N()
	t := rm.T()
	means := rm.ColumnMeans()
	cols := columnData(rm)

	// Population covariance of the demeaned data (1/T denominator), as the
	// shrinkage derivation assumes.
	s := mat.NewSymDense(n, nil)
	ft := float64(t)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var sum float64
			for k := 0; k < t; k++ {
				sum += (cols[i][k] - means[i]) * (cols[j][k] - means[j])
			}
			s.SetSym(i, j, sum/ft)
		}
	}

	// phi: sum of asymptotic variances of the sample covariance entries.
	// gamma: squared Frobenius distance from the diagonal target (the
	// diagonal matches the target exactly, so only off-diagonals count).
	var phi, gamma float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sij := s.At(i, j)
			var v float64
			for k := 0; k < t; k++ {
				d := (cols[i][k]-means[i])*(cols[j][k]-means[j]) - sij
				v += d * d
			}
			phi += v / ft
			if i != j {
				gamma += sij * sij
			}
		}
	}

	delta := 0.0
	if gamma > 0 {
		delta = phi / ft / gamma
	}
	delta = math.Max(0, math.Min(1, delta))

	shrunk := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			target := 0.0
			if i == j {
				target = s.At(i, i)
			}
			shrunk.SetSym(i, j, delta*target+(1-delta)*s.At(i, j))
		}
	}
	return shrunk, delta
}

// exponentialCovariance computes a weighted covariance with per-period
// weights w_t = (1-lambda)*lambda^age where lambda = 2^(-1/halflife), so
// recent observations dominate. Uses the effective-sample correction
// denom = 1 - sum(w^2).
func exponentialCovariance(rm *returns.Matrix, halflife int) (*mat.SymDense, error) {
	n := rm.N()
	t := rm.T()
	cols := columnData(rm)

	lambda := math.Pow(2, -1.0/float64(halflife))
	weights := make([]float64, t)
	var sum float64
	for k := 0; k < t; k++ {
		age := float64(t - 1 - k) // 0 for the newest observation
		weights[k] = (1 - lambda) * math.Pow(lambda, age)
		sum += weights[k]
	}
	if sum <= 0 {
		return nil, fmt.Errorf("invalid exponential weight sum: %v", sum)
	}
	for k := range weights {
		weights[k] /= sum
	}

	mu := make([]float64, n)
	for i := 0; i < n; i++ {
		for k := 0; k < t; k++ {
			mu[i] += weights[k] * cols[i][k]
		}
	}

	var sumW2 float64
	for _, w := range weights {
		sumW2 += w * w
	}
	denom := 1.0 - sumW2
	if denom <= 0 {
		return nil, fmt.Errorf("%w: exponential weights leave no effective sample", returns.ErrInsufficientData)
	}

	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var s float64
			for k := 0; k < t; k++ {
				s += weights[k] * (cols[i][k] - mu[i]) * (cols[j][k] - mu[j])
			}
			cov.SetSym(i, j, s/denom)
		}
	}
	return cov, nil
}

// columnData extracts the per-asset return series once for reuse.
func columnData(rm *returns.Matrix) [][]float64 {
	cols := make([][]float64, rm.N())
	for j := 0; j < rm.N(); j++ {
		cols[j] = rm.Column(j)
	}
	return cols
}
