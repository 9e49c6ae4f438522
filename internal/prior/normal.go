package prior

import (
	"fmt"
	"math/rand/v2"

	"github.com/nvandessel/synthlik/internal/errs"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Normal is a multivariate normal prior.
type Normal struct {
	dist *distmv.Normal
	cov  *mat.SymDense
	prec *mat.SymDense
}

var _ Differentiable = (*Normal)(nil)

// NewNormal returns a normal prior with the given mean and covariance.
func NewNormal(mean []float64, cov mat.Symmetric, src rand.Source) (*Normal, error) {
	if cov.SymmetricDim() != len(mean) {
		return nil, fmt.Errorf("normal prior: mean has %d dims, covariance %d: %w", len(mean), cov.SymmetricDim(), errs.ErrDimensionMismatch)
	}
	dist, ok := distmv.NewNormal(mean, cov, src)
	if !ok {
		return nil, fmt.Errorf("normal prior: covariance: %w", errs.ErrNonPositiveDefinite)
	}
	var chol mat.Cholesky
	if !chol.Factorize(cov) {
		return nil, fmt.Errorf("normal prior: covariance: %w", errs.ErrNonPositiveDefinite)
	}
	var prec mat.SymDense
	if err := chol.InverseTo(&prec); err != nil {
		return nil, fmt.Errorf("normal prior: precision: %w", err)
	}
	c := mat.NewSymDense(len(mean), nil)
	c.CopySym(cov)
	return &Normal{dist: dist, cov: c, prec: &prec}, nil
}

// NewIsotropicNormal returns a normal prior with covariance variance·I.
func NewIsotropicNormal(mean []float64, variance float64, src rand.Source) (*Normal, error) {
	cov := mat.NewSymDense(len(mean), nil)
	for i := range mean {
		cov.SetSym(i, i, variance)
	}
	return NewNormal(mean, cov, src)
}

// LogProb implements Prior.
func (n *Normal) LogProb(x []float64) float64 { return n.dist.LogProb(x) }

// Rand implements Prior.
func (n *Normal) Rand(dst []float64) []float64 { return n.dist.Rand(dst) }

// Dim implements Prior.
func (n *Normal) Dim() int { return n.dist.Dim() }

// InSupport implements Prior. A normal prior supports every finite vector.
func (n *Normal) InSupport(x []float64) bool {
	return len(x) == n.Dim() && finite(n.LogProb(x))
}

// Covariance implements Prior.
func (n *Normal) Covariance() *mat.SymDense {
	c := mat.NewSymDense(n.Dim(), nil)
	c.CopySym(n.cov)
	return c
}

// Mean returns the prior mean.
func (n *Normal) Mean() []float64 { return n.dist.Mean(nil) }

// GradLogProb returns −Σ⁻¹(x − μ).
func (n *Normal) GradLogProb(dst, x []float64) []float64 {
	return n.dist.ScoreInput(dst, x)
}

// HessLogProb returns −Σ⁻¹, independent of x.
func (n *Normal) HessLogProb(dst *mat.SymDense, _ []float64) *mat.SymDense {
	if dst == nil {
		dst = mat.NewSymDense(n.Dim(), nil)
	}
	dst.ScaleSym(-1, n.prec)
	return dst
}
