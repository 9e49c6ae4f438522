// Package likelihood turns local regressions of simulated summary
// statistics into a Gaussian negative log-likelihood with gradient and
// Hessian, and wraps that calculation as objective providers.
package likelihood

import (
	"fmt"
	"math"

	"github.com/nvandessel/synthlik/internal/errs"
	"github.com/nvandessel/synthlik/internal/objective"
	"github.com/nvandessel/synthlik/internal/regression"
	"gonum.org/v1/gonum/mat"
)

var log2Pi = math.Log(2 * math.Pi)

// Gaussian evaluates the negative log-density of observed under
// N(μ(θ), Σ(θ)) and, as requested, its gradient and Hessian with respect
// to θ. mus holds one local mean per statistic; sigma the local covariance
// and its first derivatives.
//
// With r = s_obs − μ, P = Σ⁻¹, J_k = ∂μ/∂θ_k and Σ_k = ∂Σ/∂θ_k:
//
//	f      = ½rᵀPr + ½log|Σ| + (n_s/2)·log 2π
//	∂f/∂θ_k = −J_kᵀPr − ½rᵀPΣ_kPr + ½tr(PΣ_k)
//
// The Hessian differentiates the gradient once more, dropping second
// derivatives of Σ. It is therefore an approximation and need not be
// positive definite.
func Gaussian(mus []regression.LocalMu, sigma regression.LocalSigma, observed []float64, want objective.Want) (objective.Result, error) {
	ns := len(mus)
	if ns == 0 {
		return objective.Result{}, fmt.Errorf("gaussian likelihood: no statistics: %w", errs.ErrDimensionMismatch)
	}
	if len(observed) != ns || sigma.Sigma == nil || sigma.Sigma.SymmetricDim() != ns {
		return objective.Result{}, fmt.Errorf("gaussian likelihood: %d means, %d observed: %w", ns, len(observed), errs.ErrDimensionMismatch)
	}
	p := len(mus[0].Grad)
	if (want.Gradient || want.Hessian) && len(sigma.Grad) != p {
		return objective.Result{}, fmt.Errorf("gaussian likelihood: %d mean derivatives, %d covariance derivatives: %w", p, len(sigma.Grad), errs.ErrDimensionMismatch)
	}

	var chol mat.Cholesky
	if !chol.Factorize(sigma.Sigma) {
		return objective.Result{}, fmt.Errorf("gaussian likelihood: covariance: %w", errs.ErrNonPositiveDefinite)
	}
	var prec mat.SymDense
	if err := chol.InverseTo(&prec); err != nil {
		return objective.Result{}, fmt.Errorf("gaussian likelihood: precision: %w", err)
	}

	r := mat.NewVecDense(ns, nil)
	for j, m := range mus {
		r.SetVec(j, observed[j]-m.Mu)
	}
	var q mat.VecDense // Pr
	q.MulVec(&prec, r)

	res := objective.Result{
		Objective: 0.5*mat.Dot(r, &q) + 0.5*chol.LogDet() + 0.5*float64(ns)*log2Pi,
	}
	if !want.Gradient && !want.Hessian {
		return res, nil
	}

	jac := regression.Jacobian(mus)
	t := newTerms(&prec, &q, jac, sigma.Grad)

	if want.Gradient {
		g := make([]float64, p)
		for k := range g {
			g[k] = -mat.Dot(t.jcol[k], &q) - 0.5*mat.Dot(&q, t.sq[k]) + 0.5*mat.Trace(t.ps[k])
		}
		res.Gradient = g
		res.HasGradient = true
	}

	if want.Hessian {
		h := mat.NewSymDense(p, nil)
		for k := 0; k < p; k++ {
			for l := k; l < p; l++ {
				var curv float64
				for j, m := range mus {
					curv += m.Hess.At(k, l) * q.AtVec(j)
				}
				v := mat.Dot(t.jcol[k], t.pj[l]) -
					curv +
					mat.Dot(t.jcol[k], t.psq[l]) +
					mat.Dot(t.jcol[l], t.psq[k]) +
					mat.Dot(t.sq[l], t.psq[k]) -
					0.5*traceProduct(t.ps[l], t.ps[k])
				h.SetSym(k, l, v)
			}
		}
		res.Hessian = h
		res.HasHessian = true
	}
	return res, nil
}

// terms caches the products shared by the gradient and Hessian.
type terms struct {
	jcol []*mat.VecDense // J_k
	pj   []*mat.VecDense // P·J_k
	ps   []*mat.Dense    // P·Σ_k
	sq   []*mat.VecDense // Σ_k·Pr
	psq  []*mat.VecDense // P·Σ_k·Pr
}

func newTerms(prec *mat.SymDense, q *mat.VecDense, jac *mat.Dense, dsigma []*mat.SymDense) terms {
	_, p := jac.Dims()
	t := terms{
		jcol: make([]*mat.VecDense, p),
		pj:   make([]*mat.VecDense, p),
		ps:   make([]*mat.Dense, p),
		sq:   make([]*mat.VecDense, p),
		psq:  make([]*mat.VecDense, p),
	}
	for k := 0; k < p; k++ {
		t.jcol[k] = mat.VecDenseCopyOf(jac.ColView(k))
		t.pj[k] = &mat.VecDense{}
		t.pj[k].MulVec(prec, t.jcol[k])
		t.ps[k] = &mat.Dense{}
		t.ps[k].Mul(prec, dsigma[k])
		t.sq[k] = &mat.VecDense{}
		t.sq[k].MulVec(dsigma[k], q)
		t.psq[k] = &mat.VecDense{}
		t.psq[k].MulVec(prec, t.sq[k])
	}
	return t
}

// traceProduct returns tr(a·b) without forming the product.
func traceProduct(a, b mat.Matrix) float64 {
	n, _ := a.Dims()
	var s float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			s += a.At(i, j) * b.At(j, i)
		}
	}
	return s
}
