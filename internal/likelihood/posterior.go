package likelihood

import (
	"context"
	"fmt"
	"math"

	"github.com/nvandessel/synthlik/internal/errs"
	"github.com/nvandessel/synthlik/internal/objective"
	"github.com/nvandessel/synthlik/internal/prior"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Posterior is a local likelihood combined with a prior. Its objective is
// the negative log-posterior up to a constant. Perturbations are confined
// to the prior support.
type Posterior[T any] struct {
	local *Local[T]
	prior prior.Prior
}

var _ objective.Provider = (*Posterior[[]float64])(nil)

// NewPosterior combines local with p. local's validator is replaced by the
// prior support check.
func NewPosterior[T any](local *Local[T], p prior.Prior) (*Posterior[T], error) {
	if p.Dim() != local.Dim() {
		return nil, fmt.Errorf("local posterior: prior has %d dims, likelihood %d: %w", p.Dim(), local.Dim(), errs.ErrDimensionMismatch)
	}
	local.WithValidator(p.InSupport)
	return &Posterior[T]{local: local, prior: p}, nil
}

// Prior returns the prior.
func (p *Posterior[T]) Prior() prior.Prior { return p.prior }

// Evaluate implements objective.Provider. Outside the prior support the
// objective is +Inf and any requested derivatives are zero.
func (p *Posterior[T]) Evaluate(ctx context.Context, theta []float64, want objective.Want) (objective.Result, error) {
	if !p.prior.InSupport(theta) {
		res := objective.Result{Objective: math.Inf(1)}
		if want.Gradient {
			res.Gradient = make([]float64, len(theta))
			res.HasGradient = true
		}
		if want.Hessian {
			res.Hessian = mat.NewSymDense(len(theta), nil)
			res.HasHessian = true
		}
		return res, nil
	}

	// prior derivatives before any simulation
	var g []float64
	var h *mat.SymDense
	var err error
	if want.Gradient {
		if g, err = prior.Gradient(p.prior, theta); err != nil {
			return objective.Result{}, fmt.Errorf("local posterior: %w", err)
		}
	}
	if want.Hessian {
		if h, err = prior.Hessian(p.prior, theta); err != nil {
			return objective.Result{}, fmt.Errorf("local posterior: %w", err)
		}
	}

	res, err := p.local.Evaluate(ctx, theta, want)
	if err != nil {
		return objective.Result{}, err
	}
	res.Objective -= p.prior.LogProb(theta)
	if want.Gradient {
		floats.Sub(res.Gradient, g)
	}
	if want.Hessian {
		var neg mat.SymDense
		neg.ScaleSym(-1, h)
		res.Hessian.AddSym(res.Hessian, &neg)
	}
	return res, nil
}
