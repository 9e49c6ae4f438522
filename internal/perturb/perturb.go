// Package perturb draws parameter vectors scattered around a center point.
// The draws feed the local regressions that estimate the likelihood surface.
package perturb

import (
	"fmt"
	"math/rand/v2"

	"github.com/nvandessel/synthlik/internal/constants"
	"github.com/nvandessel/synthlik/internal/errs"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Proposal is a zero-centered distribution of perturbation offsets.
// *distmv.Normal satisfies it.
type Proposal interface {
	Rand(dst []float64) []float64
	Dim() int
}

// Validator reports whether a parameter vector is admissible, for example
// whether it lies inside a prior's support. A nil Validator accepts all.
type Validator func(theta []float64) bool

// NewNormal returns a zero-mean Gaussian proposal with the given covariance.
func NewNormal(cov mat.Symmetric, src rand.Source) (*distmv.Normal, error) {
	n := cov.SymmetricDim()
	d, ok := distmv.NewNormal(make([]float64, n), cov, src)
	if !ok {
		return nil, fmt.Errorf("perturb: proposal covariance: %w", errs.ErrNonPositiveDefinite)
	}
	return d, nil
}

// NewIsotropic returns a zero-mean Gaussian proposal with covariance
// variance·I in dim dimensions.
func NewIsotropic(dim int, variance float64, src rand.Source) (*distmv.Normal, error) {
	cov := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		cov.SetSym(i, i, variance)
	}
	return NewNormal(cov, src)
}

// Perturb returns an n×len(center) matrix whose rows are center plus an
// independent draw from d. When valid is non-nil each row is redrawn until
// it passes; more than maxRetries consecutive failures for one row returns
// an error wrapping errs.ErrProposalExhausted. maxRetries <= 0 uses the
// package default.
func Perturb(center []float64, d Proposal, n int, valid Validator, maxRetries int) (*mat.Dense, error) {
	dim := len(center)
	if d.Dim() != dim {
		return nil, fmt.Errorf("perturb: center has %d dims, proposal %d: %w", dim, d.Dim(), errs.ErrDimensionMismatch)
	}
	if n <= 0 {
		return nil, fmt.Errorf("perturb: n must be positive, got %d", n)
	}
	if maxRetries <= 0 {
		maxRetries = constants.DefaultMaxProposalRetries
	}

	out := mat.NewDense(n, dim, nil)
	offset := make([]float64, dim)
	for i := 0; i < n; i++ {
		row := out.RawRowView(i)
		if err := drawValid(row, offset, center, d, valid, maxRetries); err != nil {
			return nil, fmt.Errorf("perturb: row %d: %w", i, err)
		}
	}
	return out, nil
}

// drawValid fills row with center+offset, retrying invalid draws.
func drawValid(row, offset, center []float64, d Proposal, valid Validator, maxRetries int) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		d.Rand(offset)
		for j := range row {
			row[j] = center[j] + offset[j]
		}
		if valid == nil || valid(row) {
			return nil
		}
	}
	return fmt.Errorf("%d consecutive %v: %w", maxRetries+1, errs.ErrInvalidProposal, errs.ErrProposalExhausted)
}
