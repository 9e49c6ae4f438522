package likelihood

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/nvandessel/synthlik/internal/constants"
	"github.com/nvandessel/synthlik/internal/errs"
	"github.com/nvandessel/synthlik/internal/objective"
	"github.com/nvandessel/synthlik/internal/perturb"
	"github.com/nvandessel/synthlik/internal/regression"
	"github.com/nvandessel/synthlik/internal/regularize"
	"github.com/nvandessel/synthlik/internal/simulate"
)

// Options configures a local likelihood.
type Options struct {
	// NSim is the number of perturbed simulations per evaluation.
	NSim int
	// PerturbationVariance is the per-dimension variance of the isotropic
	// Gaussian perturbation used when Proposal is nil.
	PerturbationVariance float64
	// Proposal overrides the perturbation distribution. Its Dim must match
	// the parameter dimension.
	Proposal perturb.Proposal
	// OutlierIQR is passed to simulate.Simplify; <= 0 disables outlier
	// removal.
	OutlierIQR float64
	// MaxRetries caps consecutive invalid perturbation draws.
	MaxRetries  int
	Batch       simulate.Config
	Regularizer regularize.Config
	// Seed drives the perturbations and the per-evaluation simulation
	// seeds, so two likelihoods with the same seed agree exactly.
	Seed uint64
}

// DefaultOptions returns the package defaults.
func DefaultOptions() Options {
	return Options{
		NSim:                 constants.DefaultNSim,
		PerturbationVariance: constants.DefaultPerturbationVariance,
		OutlierIQR:           constants.DefaultOutlierIQR,
		MaxRetries:           constants.DefaultMaxProposalRetries,
		Batch:                simulate.DefaultConfig(),
		Regularizer:          regularize.DefaultConfig(),
	}
}

// Local estimates the likelihood surface around θ by simulating at
// perturbed parameters and regressing the summaries: a quadratic model for
// each statistic's mean and a gamma GLM for the covariance.
//
// Evaluations draw from internal random streams, so a Local must not be
// shared between goroutines.
type Local[T any] struct {
	model    simulate.Model[T]
	observed []float64
	dim      int
	opts     Options
	proposal perturb.Proposal
	valid    perturb.Validator
	seeds    *rand.Rand
}

var _ objective.Provider = (*Local[[]float64])(nil)

// NewLocal returns a local likelihood for a dim-dimensional parameter.
func NewLocal[T any](model simulate.Model[T], observed []float64, dim int, opts Options) (*Local[T], error) {
	if dim <= 0 {
		return nil, fmt.Errorf("local likelihood: parameter dimension must be positive, got %d", dim)
	}
	if len(observed) == 0 {
		return nil, fmt.Errorf("local likelihood: empty observed summary: %w", errs.ErrDimensionMismatch)
	}
	if opts.NSim <= 0 {
		return nil, fmt.Errorf("local likelihood: n_sim must be positive, got %d", opts.NSim)
	}
	if need := regression.NumQuadraticColumns(dim); opts.NSim < need {
		return nil, fmt.Errorf("local likelihood: n_sim %d below the %d needed for a quadratic fit in %d dimensions: %w", opts.NSim, need, dim, errs.ErrRegressionSingular)
	}
	if err := opts.Regularizer.Validate(); err != nil {
		return nil, err
	}

	proposal := opts.Proposal
	if proposal == nil {
		if !(opts.PerturbationVariance > 0) {
			return nil, fmt.Errorf("local likelihood: perturbation variance must be positive, got %v", opts.PerturbationVariance)
		}
		d, err := perturb.NewIsotropic(dim, opts.PerturbationVariance, rand.NewPCG(opts.Seed, 1))
		if err != nil {
			return nil, fmt.Errorf("local likelihood: %w", err)
		}
		proposal = d
	}
	if proposal.Dim() != dim {
		return nil, fmt.Errorf("local likelihood: proposal has %d dims, parameters %d: %w", proposal.Dim(), dim, errs.ErrDimensionMismatch)
	}

	obs := make([]float64, len(observed))
	copy(obs, observed)
	return &Local[T]{
		model:    model,
		observed: obs,
		dim:      dim,
		opts:     opts,
		proposal: proposal,
		seeds:    rand.New(rand.NewPCG(opts.Seed, 2)),
	}, nil
}

// WithValidator restricts perturbed parameters to those passing valid.
func (l *Local[T]) WithValidator(valid perturb.Validator) *Local[T] {
	l.valid = valid
	return l
}

// Dim returns the parameter dimension.
func (l *Local[T]) Dim() int { return l.dim }

// Estimate runs the perturb → simulate → simplify → regress pipeline at
// theta and returns the local mean and regularized local covariance, along
// with the observed statistics that survived simplification.
func (l *Local[T]) Estimate(ctx context.Context, theta []float64) ([]regression.LocalMu, regression.LocalSigma, []float64, error) {
	if len(theta) != l.dim {
		return nil, regression.LocalSigma{}, nil, fmt.Errorf("local likelihood: theta has %d dims, want %d: %w", len(theta), l.dim, errs.ErrDimensionMismatch)
	}

	thetas, err := perturb.Perturb(theta, l.proposal, l.opts.NSim, l.valid, l.opts.MaxRetries)
	if err != nil {
		return nil, regression.LocalSigma{}, nil, err
	}
	s, err := simulate.Run(ctx, l.model, thetas, l.seeds.Uint64(), l.opts.Batch)
	if err != nil {
		return nil, regression.LocalSigma{}, nil, err
	}
	batch, _, err := simulate.Simplify(simulate.Batch{Theta: thetas, S: s, Observed: l.observed}, l.opts.OutlierIQR)
	if err != nil {
		return nil, regression.LocalSigma{}, nil, err
	}

	mus, err := regression.QuadraticLocalMu(theta, batch.Theta, batch.S)
	if err != nil {
		return nil, regression.LocalSigma{}, nil, err
	}
	sigma, err := regression.GLMLocalSigma(theta, batch.Theta, regression.Residuals(mus))
	if err != nil {
		return nil, regression.LocalSigma{}, nil, err
	}
	sigma.Sigma, err = regularize.Regularize(sigma.Sigma, nil, l.opts.Regularizer)
	if err != nil {
		return nil, regression.LocalSigma{}, nil, fmt.Errorf("local covariance: %w", err)
	}
	return mus, sigma, batch.Observed, nil
}

// Evaluate implements objective.Provider.
func (l *Local[T]) Evaluate(ctx context.Context, theta []float64, want objective.Want) (objective.Result, error) {
	mus, sigma, observed, err := l.Estimate(ctx, theta)
	if err != nil {
		return objective.Result{}, err
	}
	return Gaussian(mus, sigma, observed, want)
}
