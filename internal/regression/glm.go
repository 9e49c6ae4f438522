package regression

import (
	"fmt"
	"math"

	"github.com/nvandessel/synthlik/internal/constants"
	"github.com/nvandessel/synthlik/internal/errs"
	"github.com/nvandessel/synthlik/internal/vecmath"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// LocalSigma is the local behaviour of the summary covariance around a
// center parameter vector.
type LocalSigma struct {
	Sigma *mat.SymDense
	// Grad[k] is ∂Σ/∂θ_k.
	Grad []*mat.SymDense
}

// GammaGLM fits E[y] = exp(X·β) with gamma errors by iteratively
// reweighted least squares. Under the log link the working weights are all
// one, so a single QR factorization of X serves every iteration. Responses
// must be non-negative with a positive mean.
func GammaGLM(x *mat.Dense, y []float64) ([]float64, error) {
	n, p := x.Dims()
	if n != len(y) {
		return nil, fmt.Errorf("gamma glm: design has %d rows, response %d: %w", n, len(y), errs.ErrDimensionMismatch)
	}
	mean := stat.Mean(y, nil)
	if !(mean > 0) || math.IsInf(mean, 0) {
		return nil, fmt.Errorf("gamma glm: response mean %v: %w", mean, errs.ErrRegressionSingular)
	}
	s, err := newSolver(x)
	if err != nil {
		return nil, fmt.Errorf("gamma glm: %w", err)
	}

	beta := make([]float64, p)
	beta[0] = math.Log(mean)
	eta := make([]float64, n)
	z := mat.NewVecDense(n, nil)
	for iter := 0; iter < constants.GLMMaxIterations; iter++ {
		etaVec := mat.NewVecDense(n, eta)
		etaVec.MulVec(x, mat.NewVecDense(p, beta))
		for i := range eta {
			mu := math.Exp(eta[i])
			z.SetVec(i, eta[i]+(y[i]-mu)/mu)
		}
		next, err := s.solve(z)
		if err != nil {
			return nil, fmt.Errorf("gamma glm: %w", err)
		}
		nb := next.RawMatrix().Data
		if !vecmath.AllFinite(nb) {
			return nil, fmt.Errorf("gamma glm: non-finite coefficients at iteration %d: %w", iter, errs.ErrRegressionSingular)
		}
		delta := floats.Distance(nb, beta, math.Inf(1))
		copy(beta, nb)
		if delta < constants.GLMTolerance {
			return beta, nil
		}
	}
	return nil, fmt.Errorf("gamma glm: no convergence after %d iterations: %w", constants.GLMMaxIterations, errs.ErrRegressionSingular)
}

// LinearDesignMatrix is a bias column followed by the offsets theta−center.
func LinearDesignMatrix(center []float64, theta mat.Matrix) *mat.Dense {
	d := vecmath.CenterRows(theta, center)
	n, p := d.Dims()
	x := mat.NewDense(n, 1+p, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
		for j := 0; j < p; j++ {
			x.Set(i, 1+j, d.At(i, j))
		}
	}
	return x
}

// GLMLocalSigma estimates the summary covariance at center and its
// derivative. Each variance Σ_jj is a gamma GLM with log link of the
// squared residuals of statistic j on the parameter offsets, so that
// Σ_jj = exp(β₀) and ∂Σ_jj/∂θ_k = Σ_jj·β_k. Off-diagonal entries hold the
// empirical residual correlation fixed: Σ_ij = ρ_ij·√(Σ_ii·Σ_jj).
func GLMLocalSigma(center []float64, theta, resid mat.Matrix) (LocalSigma, error) {
	tr, tc := theta.Dims()
	rr, ns := resid.Dims()
	if tr != rr {
		return LocalSigma{}, fmt.Errorf("glm local sigma: %d parameter rows, %d residual rows: %w", tr, rr, errs.ErrDimensionMismatch)
	}
	if tc != len(center) {
		return LocalSigma{}, fmt.Errorf("glm local sigma: center has %d dims, parameters %d: %w", len(center), tc, errs.ErrDimensionMismatch)
	}

	x := LinearDesignMatrix(center, theta)
	p := len(center)

	variance := make([]float64, ns)
	slopes := make([][]float64, ns)
	y := make([]float64, rr)
	for j := 0; j < ns; j++ {
		for i := range y {
			r := resid.At(i, j)
			y[i] = r * r
		}
		beta, err := GammaGLM(x, y)
		if err != nil {
			return LocalSigma{}, fmt.Errorf("variance of statistic %d: %w", j, err)
		}
		variance[j] = math.Exp(beta[0])
		slopes[j] = beta[1:]
	}

	corr := residualCorrelation(resid)

	out := LocalSigma{
		Sigma: mat.NewSymDense(ns, nil),
		Grad:  make([]*mat.SymDense, p),
	}
	for k := range out.Grad {
		out.Grad[k] = mat.NewSymDense(ns, nil)
	}
	for a := 0; a < ns; a++ {
		for b := a; b < ns; b++ {
			var sab float64
			if a == b {
				sab = variance[a]
			} else {
				sab = corr.At(a, b) * math.Sqrt(variance[a]*variance[b])
			}
			out.Sigma.SetSym(a, b, sab)
			for k := 0; k < p; k++ {
				out.Grad[k].SetSym(a, b, sab*(slopes[a][k]+slopes[b][k])/2)
			}
		}
	}
	return out, nil
}

// residualCorrelation is the sample correlation of the residual columns.
// Pairs involving a column with zero variance have correlation zero.
func residualCorrelation(resid mat.Matrix) *mat.SymDense {
	_, ns := resid.Dims()
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, resid, nil)
	corr := mat.NewSymDense(ns, nil)
	for a := 0; a < ns; a++ {
		corr.SetSym(a, a, 1)
		for b := a + 1; b < ns; b++ {
			va, vb := cov.At(a, a), cov.At(b, b)
			if va <= 0 || vb <= 0 {
				continue
			}
			corr.SetSym(a, b, cov.At(a, b)/math.Sqrt(va*vb))
		}
	}
	return corr
}
