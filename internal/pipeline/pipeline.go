// Package pipeline assembles a runnable experiment from configuration:
// the built-in model, its observed summaries, the objective, the optional
// prior and the sampler.
package pipeline

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/nvandessel/synthlik/internal/config"
	"github.com/nvandessel/synthlik/internal/constants"
	"github.com/nvandessel/synthlik/internal/likelihood"
	"github.com/nvandessel/synthlik/internal/models"
	"github.com/nvandessel/synthlik/internal/objective"
	"github.com/nvandessel/synthlik/internal/perturb"
	"github.com/nvandessel/synthlik/internal/prior"
	"github.com/nvandessel/synthlik/internal/sampler"
	"github.com/nvandessel/synthlik/internal/simulate"
	"github.com/nvandessel/synthlik/internal/vecmath"
	"gonum.org/v1/gonum/mat"
)

// Pipeline is everything a sampler run needs.
type Pipeline struct {
	Model    models.Entry
	Observed []float64
	Dim      int

	Objective objective.Provider
	// Prior is nil unless the objective is a posterior.
	Prior prior.Prior
	Valid perturb.Validator

	Sampler sampler.Sampler
	Start   []float64
	Collect []sampler.Field
	Seed    uint64
}

// Rand returns the proposal RNG for a run. It is independent of the
// streams the objective draws from.
func (p *Pipeline) Rand() *rand.Rand {
	return rand.New(rand.NewPCG(p.Seed, 4))
}

// Build validates cfg and assembles the pipeline. When no observed summary
// is configured it is simulated once at the model truth.
func Build(ctx context.Context, cfg *config.SynthlikConfig) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	entry, err := models.Lookup(cfg.Model.Name)
	if err != nil {
		return nil, err
	}

	truth := cfg.Model.Truth
	if len(truth) == 0 {
		truth = entry.Truth
	}
	dim := len(truth)
	if len(cfg.Sampler.Start) > 0 {
		dim = len(cfg.Sampler.Start)
	}
	if err := entry.CheckDim(dim); err != nil {
		return nil, err
	}

	model := entry.New(cfg.Model.Noise)
	observed, err := Observed(ctx, model, cfg.Model.Observed, truth, cfg.Model.Seed)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		Model:    entry,
		Observed: observed,
		Dim:      dim,
		Seed:     cfg.Sampler.Seed,
	}

	p.Objective, p.Prior, err = NewObjective(cfg, model, observed, dim)
	if err != nil {
		return nil, err
	}
	if p.Prior != nil {
		p.Valid = p.Prior.InSupport
	}

	var reference *mat.SymDense
	if p.Prior != nil {
		reference = p.Prior.Covariance()
	}
	p.Sampler, err = sampler.New(sampler.Config{
		Kind:        sampler.Kind(cfg.Sampler.Kind),
		StepSize:    cfg.Sampler.StepSize,
		MaxHalvings: cfg.Sampler.MaxHalvings,
		Regularizer: cfg.Regularizer,
	}, p.Valid, reference)
	if err != nil {
		return nil, err
	}

	p.Start = make([]float64, dim)
	copy(p.Start, cfg.Sampler.Start)

	if cfg.Sampler.Collect != "" {
		if p.Collect, err = sampler.ParseFields(cfg.Sampler.Collect); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Observed returns configured observations, or one simulation at truth
// when none are configured.
func Observed(ctx context.Context, model simulate.Model[[]float64], observed, truth []float64, seed uint64) ([]float64, error) {
	if len(observed) > 0 {
		out := make([]float64, len(observed))
		copy(out, observed)
		return out, nil
	}
	s, err := simulate.RunFixed(ctx, model, truth, 1, seed, simulate.Config{})
	if err != nil {
		return nil, fmt.Errorf("simulating observed data: %w", err)
	}
	out := mat.Row(nil, 0, s)
	if !vecmath.AllFinite(out) {
		return nil, fmt.Errorf("simulated observed data is not finite: %v", out)
	}
	return out, nil
}

// NewObjective builds the objective named by cfg.Objective.Kind. The
// prior is returned for posteriors only.
func NewObjective(cfg *config.SynthlikConfig, model simulate.Model[[]float64], observed []float64, dim int) (objective.Provider, prior.Prior, error) {
	batch := simulate.Config{Parallel: cfg.Objective.Parallel, Workers: cfg.Objective.Workers}
	if batch.Parallel && batch.Workers == 0 {
		batch.Workers = simulate.DefaultConfig().Workers
	}

	if cfg.Objective.Kind == config.ObjectiveSyntheticLikelihood {
		s, err := likelihood.NewSynthetic(model, observed, cfg.Objective.NSim, batch, cfg.Regularizer, cfg.Sampler.Seed)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	}

	local, err := likelihood.NewLocal(model, observed, dim, likelihood.Options{
		NSim:                 cfg.Objective.NSim,
		PerturbationVariance: cfg.Objective.PerturbationVariance,
		OutlierIQR:           cfg.Objective.OutlierIQR,
		MaxRetries:           constants.DefaultMaxProposalRetries,
		Batch:                batch,
		Regularizer:          cfg.Regularizer,
		Seed:                 cfg.Sampler.Seed,
	})
	if err != nil {
		return nil, nil, err
	}
	if cfg.Objective.Kind != config.ObjectiveLocalPosterior {
		return local, nil, nil
	}

	pr, err := NewPrior(cfg.Prior, dim, cfg.Sampler.Seed)
	if err != nil {
		return nil, nil, err
	}
	post, err := likelihood.NewPosterior(local, pr)
	if err != nil {
		return nil, nil, err
	}
	return post, pr, nil
}

// NewPrior builds the configured prior in dim dimensions. A single mean or
// variance value is broadcast.
func NewPrior(cfg config.PriorConfig, dim int, seed uint64) (prior.Prior, error) {
	src := rand.NewPCG(seed, 5)
	switch cfg.Kind {
	case config.PriorUniform:
		return prior.NewUniform(cfg.Low, cfg.High, src)
	case config.PriorNormal:
		mean := make([]float64, dim)
		if len(cfg.Mean) > 0 {
			if mean = vecmath.Broadcast(cfg.Mean, dim); mean == nil {
				return nil, fmt.Errorf("prior mean has %d values, want 1 or %d", len(cfg.Mean), dim)
			}
		}
		variance := vecmath.Broadcast(cfg.Variance, dim)
		if variance == nil {
			return nil, fmt.Errorf("prior variance has %d values, want 1 or %d", len(cfg.Variance), dim)
		}
		return prior.NewNormal(mean, mat.NewDiagDense(dim, variance), src)
	default:
		return nil, fmt.Errorf("unknown prior %q", cfg.Kind)
	}
}
