// Package objective defines the negative log-likelihood (or log-posterior)
// interface consumed by the samplers, together with the optional gradient
// and Hessian that gradient-based samplers need.
package objective

import (
	"context"
	"fmt"

	"github.com/nvandessel/synthlik/internal/errs"
	"gonum.org/v1/gonum/mat"
)

// Want selects which derivatives an evaluation must produce. The objective
// value is always produced.
type Want struct {
	Gradient bool
	Hessian  bool
}

// Union returns the quantities wanted by either w or o.
func (w Want) Union(o Want) Want {
	return Want{
		Gradient: w.Gradient || o.Gradient,
		Hessian:  w.Hessian || o.Hessian,
	}
}

// Result is one evaluation of the objective at a parameter vector. The
// objective is a negative log density: lower is better, +Inf means the
// point has zero density.
type Result struct {
	Objective   float64
	Gradient    []float64
	HasGradient bool
	Hessian     *mat.SymDense
	HasHessian  bool
}

// Satisfies reports whether r holds everything w asks for.
func (r Result) Satisfies(w Want) bool {
	return (!w.Gradient || r.HasGradient) && (!w.Hessian || r.HasHessian)
}

// Provider evaluates the objective. Implementations may be stochastic.
type Provider interface {
	Evaluate(ctx context.Context, theta []float64, want Want) (Result, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, theta []float64, want Want) (Result, error)

// Evaluate calls f.
func (f ProviderFunc) Evaluate(ctx context.Context, theta []float64, want Want) (Result, error) {
	return f(ctx, theta, want)
}

// Analytic is a Provider built from closed-form functions. Gradient and
// Hessian may be nil when no caller needs them.
type Analytic struct {
	Objective func(theta []float64) float64
	Gradient  func(theta []float64) []float64
	Hessian   func(theta []float64) *mat.SymDense
}

// Evaluate implements Provider.
func (a Analytic) Evaluate(_ context.Context, theta []float64, want Want) (Result, error) {
	if a.Objective == nil {
		return Result{}, fmt.Errorf("analytic objective: no objective function: %w", errs.ErrUnsupported)
	}
	res := Result{Objective: a.Objective(theta)}
	if want.Gradient {
		if a.Gradient == nil {
			return Result{}, fmt.Errorf("analytic objective: gradient: %w", errs.ErrUnsupported)
		}
		res.Gradient = a.Gradient(theta)
		res.HasGradient = true
	}
	if want.Hessian {
		if a.Hessian == nil {
			return Result{}, fmt.Errorf("analytic objective: hessian: %w", errs.ErrUnsupported)
		}
		res.Hessian = a.Hessian(theta)
		res.HasHessian = true
	}
	return res, nil
}
