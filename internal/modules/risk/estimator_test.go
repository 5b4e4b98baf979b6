package risk

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/quantfolio/internal/modules/returns"
)

func testMatrix(t *testing.T, rows [][]float64) *returns.Matrix {
	t.Helper()
	ts := make([]time.Time, len(rows))
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := range ts {
		ts[i] = start.AddDate(0, 0, i)
	}
	assets := make([]string, len(rows[0]))
	names := []string{"AAA", "BBB", "CCC", "DDD"}
	copy(assets, names[:len(rows[0])])
	m, err := returns.New(ts, assets, rows)
	require.NoError(t, err)
	return m
}

func randomMatrix(t *testing.T, periods, assets int, seed int64) *returns.Matrix {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	rows := make([][]float64, periods)
	for i := range rows {
		rows[i] = make([]float64, assets)
		for j := range rows[i] {
			rows[i][j] = rng.NormFloat64() * 0.01
		}
	}
	return testMatrix(t, rows)
}

func newTestEstimator() *Estimator {
	return NewEstimator(zerolog.Nop())
}

func TestEstimateSampleIsSymmetric(t *testing.T) {
	rm := randomMatrix(t, 100, 3, 1)
	cov, err := newTestEstimator().Estimate(rm, Options{Method: MethodSample})
	require.NoError(t, err)

	for i := 0; i < cov.Dim(); i++ {
		for j := 0; j < cov.Dim(); j++ {
			assert.InDelta(t, cov.At(i, j), cov.At(j, i), 1e-15)
		}
	}
}

func TestEstimateDeterministic(t *testing.T) {
	rm := randomMatrix(t, 80, 3, 7)
	est := newTestEstimator()

	for _, method := range []Method{MethodSample, MethodShrinkage, MethodExponential} {
		a, err := est.Estimate(rm, Options{Method: method})
		require.NoError(t, err)
		b, err := est.Estimate(rm, Options{Method: method})
		require.NoError(t, err)
		for i := 0; i < a.Dim(); i++ {
			for j := 0; j < a.Dim(); j++ {
				assert.Equal(t, a.At(i, j), b.At(i, j), "method %s", method)
			}
		}
	}
}

func TestEstimateAnnualization(t *testing.T) {
	rm := randomMatrix(t, 100, 2, 3)
	est := newTestEstimator()

	daily, err := est.Estimate(rm, Options{Method: MethodSample})
	require.NoError(t, err)
	annual, err := est.Estimate(rm, Options{Method: MethodSample, Annualize: true})
	require.NoError(t, err)

	assert.Equal(t, 252.0, annual.Factor)
	assert.InDelta(t, daily.At(0, 1)*252, annual.At(0, 1), 1e-12)
}

func TestEstimateInsufficientData(t *testing.T) {
	rm := testMatrix(t, [][]float64{{0.01, 0.02}})
	_, err := newTestEstimator().Estimate(rm, Options{Method: MethodSample})
	require.Error(t, err)
	assert.ErrorIs(t, err, returns.ErrInsufficientData)
}

func TestEstimateSingleAsset(t *testing.T) {
	rm := testMatrix(t, [][]float64{{0.01}, {-0.02}, {0.03}, {0.00}})
	cov, err := newTestEstimator().Estimate(rm, Options{Method: MethodSample})
	require.NoError(t, err)

	assert.Equal(t, 1, cov.Dim())
	assert.Greater(t, cov.Variance(0), 0.0)
}

func TestShrinkageIntensityBounds(t *testing.T) {
	rm := randomMatrix(t, 50, 4, 11)
	cov, err := newTestEstimator().Estimate(rm, Options{Method: MethodShrinkage})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, cov.Shrinkage, 0.0)
	assert.LessOrEqual(t, cov.Shrinkage, 1.0)
}

func TestShrinkagePullsOffDiagonalsTowardZero(t *testing.T) {
	rm := randomMatrix(t, 60, 3, 5)
	est := newTestEstimator()

	sample, err := est.Estimate(rm, Options{Method: MethodSample})
	require.NoError(t, err)
	shrunk, err := est.Estimate(rm, Options{Method: MethodShrinkage})
	require.NoError(t, err)

	// Off-diagonal magnitudes shrink toward the diagonal target.
	popScale := float64(rm.T()-1) / float64(rm.T())
	assert.LessOrEqual(t, math.Abs(shrunk.At(0, 1)), math.Abs(sample.At(0, 1))*popScale+1e-12)
}

func TestExponentialWeightsRecentData(t *testing.T) {
	// Calm early regime, volatile recent regime. The exponential estimator
	// with a short half-life should report higher variance than the plain
	// sample estimate.
	rows := make([][]float64, 200)
	rng := rand.New(rand.NewSource(9))
	for i := range rows {
		scale := 0.002
		if i >= 150 {
			scale = 0.03
		}
		rows[i] = []float64{rng.NormFloat64() * scale}
	}
	rm := testMatrix(t, rows)
	est := newTestEstimator()

	sample, err := est.Estimate(rm, Options{Method: MethodSample})
	require.NoError(t, err)
	expo, err := est.Estimate(rm, Options{Method: MethodExponential, Halflife: 20})
	require.NoError(t, err)

	assert.Greater(t, expo.Variance(0), sample.Variance(0))
}

func TestRidgeRepairsDegenerateMatrix(t *testing.T) {
	// Two perfectly collinear assets make the sample covariance singular.
	rows := make([][]float64, 50)
	rng := rand.New(rand.NewSource(2))
	for i := range rows {
		r := rng.NormFloat64() * 0.01
		rows[i] = []float64{r, r}
	}
	rm := testMatrix(t, rows)

	cov, err := newTestEstimator().Estimate(rm, Options{Method: MethodSample})
	require.NoError(t, err)

	assert.True(t, cov.Ridged)
	d := Diagnose(cov)
	assert.GreaterOrEqual(t, d.MinEigenvalue, RidgeEpsilon/2)
}

func TestDiagnoseIdentityLike(t *testing.T) {
	// Independent assets with equal variance have effective rank near N and
	// a modest condition number.
	rm := randomMatrix(t, 500, 3, 13)
	cov, err := newTestEstimator().Estimate(rm, Options{Method: MethodSample})
	require.NoError(t, err)

	d := Diagnose(cov)
	assert.Greater(t, d.EffectiveRank, 2.0)
	assert.LessOrEqual(t, d.EffectiveRank, 3.1)
	assert.Greater(t, d.ConditionNumber, 0.0)
}

func TestCompareCoversAllMethods(t *testing.T) {
	rm := randomMatrix(t, 120, 3, 21)
	cmp, err := newTestEstimator().Compare(rm, Options{Annualize: true})
	require.NoError(t, err)

	require.Len(t, cmp.Methods, 3)
	assert.Equal(t, 120, cmp.Observations)
	assert.Contains(t, cmp.Distances["sample"], "shrinkage")
	for _, m := range cmp.Methods {
		assert.Greater(t, m.AvgVariance, 0.0)
	}
}
