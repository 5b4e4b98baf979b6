package optimization

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/quantfolio/quantfolio/internal/modules/risk"
)

// DefaultTau is the standard prior uncertainty scalar.
const DefaultTau = 0.025

// View is an investor view over a linear combination of assets. Weights maps
// asset identifiers to picks (e.g. {"AAA": 1} for an absolute view, or
// {"AAA": 1, "BBB": -1} for a relative one). Return is the expected return
// of that combination. Confidence, when positive, is the standard deviation
// of the view; when zero the uncertainty is derived from the prior as
// diag(P Sigma P') * tau.
type View struct {
	Weights    map[string]float64 `json:"weights"`
	Return     float64            `json:"return"`
	Confidence float64            `json:"confidence,omitempty"`
}

// BlackLittermanResult is the blended expected return vector. UsedPrior is
// set when the posterior could not be computed and the prior was passed
// through unchanged.
type BlackLittermanResult struct {
	Assets           []string  `json:"assets"`
	PriorReturns     []float64 `json:"prior_returns"`
	PosteriorReturns []float64 `json:"posterior_returns"`
	Tau              float64   `json:"tau"`
	Views            int       `json:"views"`
	UsedPrior        bool      `json:"used_prior"`
}

// BlackLitterman blends prior expected returns with investor views:
//
//	mu_bl = [(tau Sigma)^-1 + P' Omega^-1 P]^-1 [(tau Sigma)^-1 mu0 + P' Omega^-1 q]
//
// Views naming unknown assets are an error. An empty view set returns the
// prior unchanged, and a numerically failed blend falls back to the prior
// with UsedPrior set.
func (o *Optimizer) BlackLitterman(cov *risk.Covariance, prior []float64, views []View, tau float64) (*BlackLittermanResult, error) {
	n := cov.Dim()
	if len(prior) != n {
		return nil, fmt.Errorf("prior returns have length %d, want %d", len(prior), n)
	}
	if tau <= 0 {
		tau = DefaultTau
	}

	res := &BlackLittermanResult{
		Assets:       cov.Assets,
		PriorReturns: prior,
		Tau:          tau,
		Views:        len(views),
	}

	if len(views) == 0 {
		res.PosteriorReturns = append([]float64(nil), prior...)
		return res, nil
	}

	assetIndex := make(map[string]int, n)
	for i, a := range cov.Assets {
		assetIndex[a] = i
	}

	k := len(views)
	p := mat.NewDense(k, n, nil)
	q := mat.NewVecDense(k, nil)
	confidences := make([]float64, k)
	for vi, v := range views {
		if len(v.Weights) == 0 {
			return nil, fmt.Errorf("view %d has no asset weights", vi)
		}
		for asset, pick := range v.Weights {
			idx, ok := assetIndex[asset]
			if !ok {
				return nil, fmt.Errorf("view %d references unknown asset %s", vi, asset)
			}
			p.Set(vi, idx, pick)
		}
		q.SetVec(vi, v.Return)
		confidences[vi] = v.Confidence
	}

	posterior, err := blendViews(cov.Values, prior, p, q, confidences, tau)
	if err != nil {
		o.log.Warn().Err(err).Msg("Black-Litterman blend failed, returning prior returns")
		res.PosteriorReturns = append([]float64(nil), prior...)
		res.UsedPrior = true
		return res, nil
	}
	res.PosteriorReturns = posterior
	return res, nil
}

func blendViews(sigma *mat.SymDense, prior []float64, p *mat.Dense, q *mat.VecDense, confidences []float64, tau float64) ([]float64, error) {
	n := len(prior)
	k, _ := p.Dims()

	tauSigma := mat.NewDense(n, n, nil)
	tauSigma.Scale(tau, sigma)

	var tauSigmaInv mat.Dense
	if err := tauSigmaInv.Inverse(tauSigma); err != nil {
		return nil, fmt.Errorf("inverting scaled prior covariance: %w", err)
	}

	// Omega: explicit view variances where given, otherwise the diagonal of
	// P (tau Sigma) P'.
	var pts mat.Dense
	pts.Mul(p, tauSigma)
	var ptsPt mat.Dense
	ptsPt.Mul(&pts, p.T())

	omegaInv := mat.NewDense(k, k, nil)
	for i := 0; i < k; i++ {
		variance := ptsPt.At(i, i)
		if confidences[i] > 0 {
			variance = confidences[i] * confidences[i]
		}
		if variance <= 0 {
			return nil, fmt.Errorf("view %d has non-positive variance", i)
		}
		omegaInv.Set(i, i, 1.0/variance)
	}

	// A = (tau Sigma)^-1 + P' Omega^-1 P
	var ptOmegaInv mat.Dense
	ptOmegaInv.Mul(p.T(), omegaInv)
	var ptOmegaInvP mat.Dense
	ptOmegaInvP.Mul(&ptOmegaInv, p)

	a := mat.NewDense(n, n, nil)
	a.Add(&tauSigmaInv, &ptOmegaInvP)

	// b = (tau Sigma)^-1 mu0 + P' Omega^-1 q
	priorVec := mat.NewVecDense(n, append([]float64(nil), prior...))
	var lhs mat.VecDense
	lhs.MulVec(&tauSigmaInv, priorVec)
	var rhs mat.VecDense
	rhs.MulVec(&ptOmegaInv, q)
	b := mat.NewVecDense(n, nil)
	b.AddVec(&lhs, &rhs)

	var posterior mat.VecDense
	if err := posterior.SolveVec(a, b); err != nil {
		return nil, fmt.Errorf("solving posterior system: %w", err)
	}

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = posterior.AtVec(i)
	}
	return out, nil
}
