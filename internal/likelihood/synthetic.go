package likelihood

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/nvandessel/synthlik/internal/errs"
	"github.com/nvandessel/synthlik/internal/objective"
	"github.com/nvandessel/synthlik/internal/regularize"
	"github.com/nvandessel/synthlik/internal/simulate"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Synthetic is the classic synthetic likelihood: simulate repeatedly at θ
// itself and score the observed summaries under a Gaussian with the sample
// mean and covariance. It provides the objective only.
type Synthetic[T any] struct {
	model       simulate.Model[T]
	observed    []float64
	nsim        int
	batch       simulate.Config
	regularizer regularize.Config
	seeds       *rand.Rand
}

var _ objective.Provider = (*Synthetic[[]float64])(nil)

// NewSynthetic returns a synthetic likelihood using nsim simulations per
// evaluation.
func NewSynthetic[T any](model simulate.Model[T], observed []float64, nsim int, batch simulate.Config, reg regularize.Config, seed uint64) (*Synthetic[T], error) {
	if nsim < 2 {
		return nil, fmt.Errorf("synthetic likelihood: n_sim must be at least 2, got %d", nsim)
	}
	if len(observed) == 0 {
		return nil, fmt.Errorf("synthetic likelihood: empty observed summary: %w", errs.ErrDimensionMismatch)
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	obs := make([]float64, len(observed))
	copy(obs, observed)
	return &Synthetic[T]{
		model:       model,
		observed:    obs,
		nsim:        nsim,
		batch:       batch,
		regularizer: reg,
		seeds:       rand.New(rand.NewPCG(seed, 3)),
	}, nil
}

// Evaluate implements objective.Provider. Requests for a gradient or
// Hessian fail with errs.ErrUnsupported.
func (s *Synthetic[T]) Evaluate(ctx context.Context, theta []float64, want objective.Want) (objective.Result, error) {
	if want.Gradient || want.Hessian {
		return objective.Result{}, fmt.Errorf("synthetic likelihood: derivatives: %w", errs.ErrUnsupported)
	}

	sims, err := simulate.RunFixed(ctx, s.model, theta, s.nsim, s.seeds.Uint64(), s.batch)
	if err != nil {
		return objective.Result{}, err
	}
	thetas := mat.NewDense(s.nsim, len(theta), nil)
	for i := 0; i < s.nsim; i++ {
		thetas.SetRow(i, theta)
	}
	b, _, err := simulate.Simplify(simulate.Batch{Theta: thetas, S: sims, Observed: s.observed}, 0)
	if err != nil {
		return objective.Result{}, err
	}

	_, ns := b.S.Dims()
	mean := make([]float64, ns)
	for j := range mean {
		mean[j] = stat.Mean(mat.Col(nil, j, b.S), nil)
	}
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, b.S, nil)
	reg, err := regularize.Regularize(&cov, nil, s.regularizer)
	if err != nil {
		return objective.Result{}, fmt.Errorf("synthetic likelihood: %w", err)
	}
	dist, ok := distmv.NewNormal(mean, reg, nil)
	if !ok {
		return objective.Result{}, fmt.Errorf("synthetic likelihood: covariance: %w", errs.ErrNonPositiveDefinite)
	}
	return objective.Result{Objective: -dist.LogProb(b.Observed)}, nil
}
