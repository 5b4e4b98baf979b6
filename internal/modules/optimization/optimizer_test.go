package optimization

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/quantfolio/quantfolio/internal/modules/risk"
)

func testCovariance(assets []string, values []float64) *risk.Covariance {
	n := len(assets)
	return &risk.Covariance{
		Assets: assets,
		Values: mat.NewSymDense(n, values),
		Method: risk.MethodSample,
		Factor: 252,
	}
}

// Three moderately correlated assets with distinct volatilities.
func threeAssetCov() *risk.Covariance {
	return testCovariance([]string{"AAA", "BBB", "CCC"}, []float64{
		0.04, 0.01, 0.005,
		0.01, 0.09, 0.012,
		0.005, 0.012, 0.16,
	})
}

func newTestOptimizer() *Optimizer {
	return NewOptimizer(zerolog.Nop())
}

func assertFeasible(t *testing.T, w []float64, cons Constraints) {
	t.Helper()
	var sum float64
	for i, wi := range w {
		assert.GreaterOrEqual(t, wi, cons.MinWeight-1e-6, "weight %d below bound", i)
		assert.LessOrEqual(t, wi, cons.MaxWeight+1e-6, "weight %d above bound", i)
		sum += wi
	}
	assert.InDelta(t, 1.0, sum, 1e-4)
}

func TestConstraintsValidate(t *testing.T) {
	assert.NoError(t, DefaultConstraints().Validate(3))

	err := Constraints{MinWeight: 0.5, MaxWeight: 0.2}.Validate(3)
	assert.ErrorIs(t, err, ErrInvalidConstraint)

	err = Constraints{MinWeight: 0, MaxWeight: 0.2}.Validate(3)
	assert.ErrorIs(t, err, ErrInvalidConstraint)

	err = Constraints{MinWeight: 0.5, MaxWeight: 1}.Validate(3)
	assert.ErrorIs(t, err, ErrInvalidConstraint)

	neg := -0.1
	err = Constraints{MinWeight: 0, MaxWeight: 1, MaxTurnover: &neg}.Validate(3)
	assert.ErrorIs(t, err, ErrInvalidConstraint)
}

func TestMinVarianceIsFeasible(t *testing.T) {
	cov := threeAssetCov()
	mu := []float64{0.05, 0.08, 0.12}
	cons := DefaultConstraints()

	p, err := newTestOptimizer().MinVariance(cov, mu, cons, nil)
	require.NoError(t, err)

	assertFeasible(t, p.Weights, cons)
	assert.False(t, p.FallbackUsed)
	assert.Greater(t, p.Volatility, 0.0)
}

func TestMinVarianceBeatsEqualWeight(t *testing.T) {
	cov := threeAssetCov()
	o := newTestOptimizer()

	p, err := o.MinVariance(cov, nil, DefaultConstraints(), nil)
	require.NoError(t, err)

	equal := []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}
	equalVol := portfolioVolatility(cov, equal)
	assert.LessOrEqual(t, p.Volatility, equalVol+1e-6)
}

func TestMinVarianceRespectsBox(t *testing.T) {
	cov := threeAssetCov()
	cons := Constraints{MinWeight: 0.1, MaxWeight: 0.5}

	p, err := newTestOptimizer().MinVariance(cov, nil, cons, nil)
	require.NoError(t, err)
	assertFeasible(t, p.Weights, cons)
}

func TestMinVarianceTiltsTowardLowVolAsset(t *testing.T) {
	cov := threeAssetCov()
	p, err := newTestOptimizer().MinVariance(cov, nil, DefaultConstraints(), nil)
	require.NoError(t, err)

	// Asset 0 has the lowest variance and should carry the largest weight.
	assert.Greater(t, p.Weights[0], p.Weights[1])
	assert.Greater(t, p.Weights[0], p.Weights[2])
}

func TestTargetReturnInfeasible(t *testing.T) {
	cov := threeAssetCov()
	mu := []float64{0.05, 0.08, 0.12}

	p, err := newTestOptimizer().TargetReturn(cov, mu, 0.50, DefaultConstraints(), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusInfeasible, p.Status)
}

func TestEfficientFrontierMonotoneRisk(t *testing.T) {
	cov := threeAssetCov()
	mu := []float64{0.05, 0.08, 0.12}

	f, err := newTestOptimizer().EfficientFrontier(cov, mu, DefaultConstraints(), FrontierOptions{Points: 10})
	require.NoError(t, err)
	require.NotEmpty(t, f.Points)

	// The minimum variance portfolio is the risk floor for every point.
	for _, fp := range f.Points {
		assert.GreaterOrEqual(t, fp.Volatility+1e-6, f.MinVariance.Volatility)
		assertFeasible(t, fp.Weights, DefaultConstraints())
	}
	require.NotNil(t, f.MaxSharpe)
	assert.Greater(t, f.MaxSharpe.Sharpe, 0.0)
}

func TestEfficientFrontierCostAware(t *testing.T) {
	cov := threeAssetCov()
	mu := []float64{0.05, 0.08, 0.12}
	prev := []float64{1, 0, 0}

	f, err := newTestOptimizer().EfficientFrontier(cov, mu, DefaultConstraints(), FrontierOptions{
		Points:      8,
		CostBps:     50,
		PrevWeights: prev,
	})
	require.NoError(t, err)

	for _, fp := range f.Points {
		if fp.Turnover > 1e-6 {
			assert.Less(t, fp.NetReturn, fp.ExpectedReturn)
			assert.InDelta(t, fp.ExpectedReturn-fp.Turnover*0.005, fp.NetReturn, 1e-9)
		}
	}
}

func TestMaxTurnoverCap(t *testing.T) {
	cov := threeAssetCov()
	mu := []float64{0.05, 0.08, 0.12}
	prev := []float64{1, 0, 0}
	limit := 0.3
	cons := Constraints{MinWeight: 0, MaxWeight: 1, MaxTurnover: &limit}

	p, err := newTestOptimizer().TargetReturn(cov, mu, 0.06, cons, prev, 0)
	require.NoError(t, err)
	if p.Status == StatusOptimal {
		assert.LessOrEqual(t, p.Turnover, limit+0.02)
	}
}

func TestRiskParityEqualContributions(t *testing.T) {
	cov := threeAssetCov()
	res, err := newTestOptimizer().RiskParity(cov, nil, nil)
	require.NoError(t, err)

	assert.True(t, res.Converged)
	for _, rc := range res.RiskContributions {
		assert.InDelta(t, 1.0/3, rc, 1e-4)
	}
	assertFeasible(t, res.Weights, DefaultConstraints())
}

func TestRiskParityInverseVolClosedForm(t *testing.T) {
	// Uncorrelated assets with 10% and 20% volatility: equal risk
	// contribution means weights proportional to inverse volatility,
	// 2/3 and 1/3.
	cov := testCovariance([]string{"AAA", "BBB"}, []float64{
		0.01, 0,
		0, 0.04,
	})
	res, err := newTestOptimizer().RiskParity(cov, nil, nil)
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.InDelta(t, 2.0/3, res.Weights[0], 1e-3)
	assert.InDelta(t, 1.0/3, res.Weights[1], 1e-3)
	assert.InDelta(t, 0.5, res.RiskContributions[0], 1e-4)
	assert.InDelta(t, 0.5, res.RiskContributions[1], 1e-4)
}

func TestRiskParityCustomBudgets(t *testing.T) {
	cov := threeAssetCov()
	res, err := newTestOptimizer().RiskParity(cov, nil, []float64{2, 1, 1})
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.InDelta(t, 0.5, res.RiskContributions[0], 1e-4)
	assert.InDelta(t, 0.25, res.RiskContributions[1], 1e-4)
}

func TestRiskParityRejectsBadBudgets(t *testing.T) {
	cov := threeAssetCov()
	o := newTestOptimizer()

	_, err := o.RiskParity(cov, nil, []float64{1, 1})
	assert.ErrorIs(t, err, ErrInvalidConstraint)

	_, err = o.RiskParity(cov, nil, []float64{1, -1, 1})
	assert.ErrorIs(t, err, ErrInvalidConstraint)
}

func TestBlackLittermanNoViews(t *testing.T) {
	cov := threeAssetCov()
	prior := []float64{0.05, 0.08, 0.12}

	res, err := newTestOptimizer().BlackLitterman(cov, prior, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, prior, res.PosteriorReturns)
	assert.False(t, res.UsedPrior)
	assert.Equal(t, DefaultTau, res.Tau)
}

func TestBlackLittermanUnknownAsset(t *testing.T) {
	cov := threeAssetCov()
	prior := []float64{0.05, 0.08, 0.12}

	_, err := newTestOptimizer().BlackLitterman(cov, prior, []View{
		{Weights: map[string]float64{"ZZZ": 1}, Return: 0.2},
	}, 0)
	assert.Error(t, err)
}

func TestBlackLittermanAbsoluteViewPullsPosterior(t *testing.T) {
	cov := threeAssetCov()
	prior := []float64{0.05, 0.08, 0.12}

	res, err := newTestOptimizer().BlackLitterman(cov, prior, []View{
		{Weights: map[string]float64{"AAA": 1}, Return: 0.15},
	}, DefaultTau)
	require.NoError(t, err)
	require.False(t, res.UsedPrior)

	// The view raises AAA's posterior above its prior but not past the view.
	assert.Greater(t, res.PosteriorReturns[0], prior[0])
	assert.Less(t, res.PosteriorReturns[0], 0.15)
}

func TestBlackLittermanHighConfidenceDominates(t *testing.T) {
	cov := threeAssetCov()
	prior := []float64{0.05, 0.08, 0.12}
	o := newTestOptimizer()

	tight, err := o.BlackLitterman(cov, prior, []View{
		{Weights: map[string]float64{"AAA": 1}, Return: 0.15, Confidence: 0.001},
	}, DefaultTau)
	require.NoError(t, err)

	loose, err := o.BlackLitterman(cov, prior, []View{
		{Weights: map[string]float64{"AAA": 1}, Return: 0.15, Confidence: 0.5},
	}, DefaultTau)
	require.NoError(t, err)

	assert.Greater(t, tight.PosteriorReturns[0], loose.PosteriorReturns[0])
	assert.InDelta(t, 0.15, tight.PosteriorReturns[0], 0.01)
}

func TestSummarize(t *testing.T) {
	cov := threeAssetCov()
	mu := []float64{0.05, 0.08, 0.12}

	s, err := newTestOptimizer().Summarize(cov, mu, DefaultConstraints(), FrontierOptions{Points: 10})
	require.NoError(t, err)

	require.NotNil(t, s.MinVariance)
	require.NotNil(t, s.RiskParity)
	require.NotNil(t, s.EqualWeight)
	assert.LessOrEqual(t, s.MinVariance.Volatility, s.EqualWeight.Volatility+1e-6)
}

func TestSafeSharpeZeroVol(t *testing.T) {
	assert.Equal(t, 0.0, safeSharpe(0.1, 0))
	assert.InDelta(t, 2.0, safeSharpe(0.2, 0.1), 1e-12)
}

func TestProjectToFeasible(t *testing.T) {
	cons := Constraints{MinWeight: 0.1, MaxWeight: 0.6}
	w := cons.projectToFeasible([]float64{0.9, 0.05, 0.05})

	var sum float64
	for _, wi := range w {
		assert.GreaterOrEqual(t, wi, cons.MinWeight-1e-9)
		assert.LessOrEqual(t, wi, cons.MaxWeight+1e-9)
		sum += wi
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestSingleAssetSolve(t *testing.T) {
	cov := testCovariance([]string{"AAA"}, []float64{0.04})
	p, err := newTestOptimizer().MinVariance(cov, []float64{0.07}, DefaultConstraints(), nil)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, p.Weights[0], 1e-9)
	assert.InDelta(t, math.Sqrt(0.04), p.Volatility, 1e-9)
}
