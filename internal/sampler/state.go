package sampler

import (
	"context"
	"fmt"

	"github.com/nvandessel/synthlik/internal/errs"
	"github.com/nvandessel/synthlik/internal/objective"
	"gonum.org/v1/gonum/mat"
)

// State is the position of a chain together with whatever has been
// evaluated there. A State returned by Run can seed a further Run.
type State struct {
	Theta     []float64
	Proposed  []float64
	Objective float64
	Gradient  []float64
	Hessian   *mat.SymDense
	Counter   int
	Accepted  bool
	Halvings  int
	// HalvingExhausted is set when the last step found no valid proposal
	// within the halving cap and fell back to the unhalved one.
	HalvingExhausted bool

	evaluated bool
	have      objective.Want
}

// NewState returns an unevaluated state at theta. The objective is
// computed lazily on the first step, with whatever derivatives the sampler
// and the collected fields require.
func NewState(theta []float64) *State {
	t := make([]float64, len(theta))
	copy(t, theta)
	return &State{Theta: t, Proposed: append([]float64(nil), t...)}
}

// Restore rebuilds an evaluated state, for example one read back from
// storage. gradient and hessian may be nil when they were not evaluated.
func Restore(theta []float64, obj float64, gradient []float64, hessian *mat.SymDense, counter int) *State {
	st := NewState(theta)
	st.Objective = obj
	st.Counter = counter
	st.evaluated = true
	if gradient != nil {
		st.Gradient = append([]float64(nil), gradient...)
		st.have.Gradient = true
	}
	if hessian != nil {
		st.Hessian = mat.NewSymDense(hessian.SymmetricDim(), nil)
		st.Hessian.CopySym(hessian)
		st.have.Hessian = true
	}
	return st
}

// Evaluated reports whether the objective has been computed at Theta.
func (s *State) Evaluated() bool { return s.evaluated }

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	c := *s
	c.Theta = append([]float64(nil), s.Theta...)
	c.Proposed = append([]float64(nil), s.Proposed...)
	if s.Gradient != nil {
		c.Gradient = append([]float64(nil), s.Gradient...)
	}
	if s.Hessian != nil {
		c.Hessian = mat.NewSymDense(s.Hessian.SymmetricDim(), nil)
		c.Hessian.CopySym(s.Hessian)
	}
	return &c
}

// ensure evaluates the objective at Theta if it, or any derivative in
// want, is missing.
func (s *State) ensure(ctx context.Context, p objective.Provider, want objective.Want) error {
	if s.evaluated && s.have.Union(want) == s.have {
		return nil
	}
	res, err := p.Evaluate(ctx, s.Theta, want)
	if err != nil {
		return fmt.Errorf("sampler: evaluate current state: %w", err)
	}
	if !res.Satisfies(want) {
		return fmt.Errorf("sampler: objective did not return the requested derivatives: %w", errs.ErrUnsupported)
	}
	s.setResult(res)
	return nil
}

// moveTo makes theta the current point with evaluation res.
func (s *State) moveTo(theta []float64, res objective.Result) {
	s.Theta = append(s.Theta[:0], theta...)
	s.setResult(res)
}

func (s *State) setResult(res objective.Result) {
	s.Objective = res.Objective
	s.evaluated = true
	s.have = objective.Want{Gradient: res.HasGradient, Hessian: res.HasHessian}
	if res.HasGradient {
		s.Gradient = res.Gradient
	} else {
		s.Gradient = nil
	}
	if res.HasHessian {
		s.Hessian = res.Hessian
	} else {
		s.Hessian = nil
	}
}
