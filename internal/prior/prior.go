// Package prior provides the prior-distribution capability used by local
// posteriors: log-density, sampling, support and, where available,
// closed-form derivatives of the log-density.
package prior

import (
	"fmt"
	"math"

	"github.com/nvandessel/synthlik/internal/errs"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// Prior is a distribution over parameter vectors.
type Prior interface {
	// LogProb returns log p(x); -Inf outside the support.
	LogProb(x []float64) float64
	// Rand draws a sample into dst, allocating when dst is nil.
	Rand(dst []float64) []float64
	Dim() int
	// InSupport reports whether x has positive density.
	InSupport(x []float64) bool
	// Covariance returns the prior covariance matrix.
	Covariance() *mat.SymDense
}

// Differentiable is implemented by priors with closed-form derivatives of
// the log-density.
type Differentiable interface {
	GradLogProb(dst, x []float64) []float64
	HessLogProb(dst *mat.SymDense, x []float64) *mat.SymDense
}

// stencils are tried in order. Central differences straddle x, so near the
// edge of a bounded support one side may fall outside it.
var stencils = []fd.Formula{fd.Central, fd.Forward, fd.Backward}

// Gradient returns ∇log p(x), using the closed form when p provides one and
// finite differences otherwise. A result that stays non-finite under every
// stencil fails with errs.ErrNonFiniteDerivative.
func Gradient(p Prior, x []float64) ([]float64, error) {
	if d, ok := p.(Differentiable); ok {
		return d.GradLogProb(nil, x), nil
	}
	for _, f := range stencils {
		g := fd.Gradient(nil, p.LogProb, x, &fd.Settings{Formula: f})
		if allFinite(g) {
			return g, nil
		}
	}
	return nil, fmt.Errorf("prior gradient at %v: %w", x, errs.ErrNonFiniteDerivative)
}

// Hessian returns ∇²log p(x), using the closed form when p provides one and
// finite differences otherwise, with the same stencil fallback as Gradient.
func Hessian(p Prior, x []float64) (*mat.SymDense, error) {
	if d, ok := p.(Differentiable); ok {
		return d.HessLogProb(nil, x), nil
	}
	h := mat.NewSymDense(len(x), nil)
	for _, f := range stencils {
		fd.Hessian(h, p.LogProb, x, &fd.Settings{Formula: f})
		if allFinite(h.RawSymmetric().Data) {
			return h, nil
		}
	}
	return nil, fmt.Errorf("prior hessian at %v: %w", x, errs.ErrNonFiniteDerivative)
}

func finite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

func allFinite(xs []float64) bool {
	for _, v := range xs {
		if !finite(v) {
			return false
		}
	}
	return true
}
