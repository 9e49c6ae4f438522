// Package sampler implements Markov chain samplers driven by an objective
// (a negative log density) and, where the variant needs them, its gradient
// and Hessian.
//
// The set of samplers is closed: RandomWalk, ULA and RiemannianULA. Each
// carries its own hyperparameters and advances a State by one step.
package sampler

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/nvandessel/synthlik/internal/constants"
	"github.com/nvandessel/synthlik/internal/errs"
	"github.com/nvandessel/synthlik/internal/objective"
	"github.com/nvandessel/synthlik/internal/perturb"
	"github.com/nvandessel/synthlik/internal/regularize"
	"github.com/nvandessel/synthlik/internal/vecmath"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

// Kind names a sampler variant.
type Kind string

const (
	KindRandomWalk    Kind = "rwm"
	KindULA           Kind = "ula"
	KindRiemannianULA Kind = "rula"
)

// Sampler advances a State by one step. Implementations are the exported
// variants of this package.
type Sampler interface {
	Kind() Kind
	// Needs reports the derivatives the update rule consumes.
	Needs() objective.Want
	advance(ctx context.Context, st *State, p objective.Provider, want objective.Want, rng *rand.Rand) error
	common() Common
}

// Common holds the settings shared by every variant.
type Common struct {
	// Valid rejects inadmissible proposals. The update term is halved until
	// the proposal passes or MaxHalvings is reached. Nil accepts all.
	Valid perturb.Validator
	// MaxHalvings caps step halving; once reached the unhalved proposal is
	// used and the state is flagged. Zero uses the package default.
	MaxHalvings int
}

func (c Common) maxHalvings() int {
	if c.MaxHalvings <= 0 {
		return constants.DefaultMaxHalvings
	}
	return c.MaxHalvings
}

// halve searches for a valid point theta + scale·update with scale = 1,
// ½, ¼, … . exhausted is true when no valid point was found within the
// cap, in which case prop is the unhalved theta + update.
func (c Common) halve(theta, update []float64) (prop []float64, halvings int, exhausted bool) {
	prop = make([]float64, len(theta))
	scale := 1.0
	limit := c.maxHalvings()
	for h := 0; ; h++ {
		for i := range prop {
			prop[i] = theta[i] + scale*update[i]
		}
		if c.Valid == nil || c.Valid(prop) {
			return prop, h, false
		}
		if h == limit {
			for i := range prop {
				prop[i] = theta[i] + update[i]
			}
			return prop, h, true
		}
		scale /= 2
	}
}

func stepFor(step []float64, dim int, kind Kind) ([]float64, error) {
	s := vecmath.Broadcast(step, dim)
	if s == nil {
		return nil, fmt.Errorf("sampler %s: %d step sizes for %d parameters: %w", kind, len(step), dim, errs.ErrDimensionMismatch)
	}
	for i, v := range s {
		if !(v > 0) {
			return nil, fmt.Errorf("sampler %s: step size %d is %v, must be positive", kind, i, v)
		}
	}
	return s, nil
}

func stdNormal(rng *rand.Rand, n int) []float64 {
	z := make([]float64, n)
	d := distuv.Normal{Mu: 0, Sigma: 1, Src: rng}
	for i := range z {
		z[i] = d.Rand()
	}
	return z
}

// RandomWalk is random-walk Metropolis: θ' = θ + Step∘z, accepted with
// probability min(1, exp(f(θ) − f(θ'))). Step holds one size per parameter
// or a single size for all.
type RandomWalk struct {
	Step []float64
	Common
}

func (RandomWalk) Kind() Kind { return KindRandomWalk }

func (RandomWalk) Needs() objective.Want { return objective.Want{} }

func (s RandomWalk) common() Common { return s.Common }

func (s RandomWalk) advance(ctx context.Context, st *State, p objective.Provider, want objective.Want, rng *rand.Rand) error {
	if err := st.ensure(ctx, p, want); err != nil {
		return err
	}
	step, err := stepFor(s.Step, len(st.Theta), s.Kind())
	if err != nil {
		return err
	}
	z := stdNormal(rng, len(st.Theta))
	for i := range z {
		z[i] *= step[i]
	}
	prop, h, exhausted := s.halve(st.Theta, z)
	st.Halvings = h
	st.HalvingExhausted = exhausted
	st.Proposed = prop
	st.Accepted = false

	res, err := evaluate(ctx, p, prop, want)
	if err != nil {
		return fmt.Errorf("sampler rwm: %w", err)
	}
	u := distuv.Uniform{Min: 0, Max: 1, Src: rng}.Rand()
	// NaN from two infinite objectives compares false and rejects.
	if math.Log(u) < st.Objective-res.Objective {
		st.moveTo(prop, res)
		st.Accepted = true
	}
	return nil
}

// ULA is the unadjusted Langevin algorithm:
// θ' = θ − (Step/2)∘∇f(θ) + ξ with ξ ~ N(0, diag(Step)). Every proposal is
// taken.
type ULA struct {
	Step []float64
	Common
}

func (ULA) Kind() Kind { return KindULA }

func (ULA) Needs() objective.Want { return objective.Want{Gradient: true} }

func (s ULA) common() Common { return s.Common }

func (s ULA) advance(ctx context.Context, st *State, p objective.Provider, want objective.Want, rng *rand.Rand) error {
	if err := st.ensure(ctx, p, want); err != nil {
		return err
	}
	step, err := stepFor(s.Step, len(st.Theta), s.Kind())
	if err != nil {
		return err
	}
	z := stdNormal(rng, len(st.Theta))
	update := make([]float64, len(st.Theta))
	for i := range update {
		update[i] = -0.5*step[i]*st.Gradient[i] + math.Sqrt(step[i])*z[i]
	}
	return takeUpdate(ctx, s.Common, st, p, want, update, "ula")
}

// RiemannianULA preconditions the Langevin update by the regularized
// inverse Hessian G = H⁻¹: θ' = θ − Step²·G·∇f(θ) + Step·√G·z. When
// Reference is set, G is additionally bounded against it by the
// regularizer, typically with the prior covariance. A zero Regularizer
// uses regularize.DefaultConfig.
type RiemannianULA struct {
	Step        float64
	Regularizer regularize.Config
	Reference   *mat.SymDense
	Common
}

func (RiemannianULA) Kind() Kind { return KindRiemannianULA }

func (RiemannianULA) Needs() objective.Want {
	return objective.Want{Gradient: true, Hessian: true}
}

func (s RiemannianULA) common() Common { return s.Common }

func (s RiemannianULA) advance(ctx context.Context, st *State, p objective.Provider, want objective.Want, rng *rand.Rand) error {
	if !(s.Step > 0) {
		return fmt.Errorf("sampler rula: step size is %v, must be positive", s.Step)
	}
	if err := st.ensure(ctx, p, want); err != nil {
		return err
	}
	g, err := s.metric(st.Hessian)
	if err != nil {
		return err
	}

	n := len(st.Theta)
	var drift mat.VecDense
	drift.MulVec(g, mat.NewVecDense(n, st.Gradient))
	noise, ok := distmv.NewNormal(make([]float64, n), g, rng)
	if !ok {
		return fmt.Errorf("sampler rula: preconditioner: %w", errs.ErrNonPositiveDefinite)
	}
	xi := noise.Rand(nil)

	update := make([]float64, n)
	eps2 := s.Step * s.Step
	for i := range update {
		update[i] = -eps2*drift.AtVec(i) + s.Step*xi[i]
	}
	return takeUpdate(ctx, s.Common, st, p, want, update, "rula")
}

// metric returns the preconditioner: the inverse of the regularized
// Hessian, optionally bounded against Reference.
func (s RiemannianULA) metric(h *mat.SymDense) (*mat.SymDense, error) {
	cfg := s.Regularizer
	if cfg == (regularize.Config{}) {
		cfg = regularize.DefaultConfig()
	}
	reg, err := regularize.Regularize(h, nil, cfg)
	if err != nil {
		return nil, fmt.Errorf("sampler rula: hessian: %w", err)
	}
	var chol mat.Cholesky
	if !chol.Factorize(reg) {
		return nil, fmt.Errorf("sampler rula: hessian: %w", errs.ErrNonPositiveDefinite)
	}
	g := &mat.SymDense{}
	if err := chol.InverseTo(g); err != nil {
		return nil, fmt.Errorf("sampler rula: invert hessian: %w", err)
	}
	if s.Reference != nil {
		g, err = regularize.Regularize(g, s.Reference, cfg)
		if err != nil {
			return nil, fmt.Errorf("sampler rula: preconditioner: %w", err)
		}
	}
	return g, nil
}

// takeUpdate moves the Langevin samplers to θ + update, halving the update
// while the result is invalid.
func takeUpdate(ctx context.Context, c Common, st *State, p objective.Provider, want objective.Want, update []float64, kind string) error {
	prop, h, exhausted := c.halve(st.Theta, update)
	st.Halvings = h
	st.HalvingExhausted = exhausted
	st.Proposed = prop
	st.Accepted = false
	res, err := evaluate(ctx, p, prop, want)
	if err != nil {
		return fmt.Errorf("sampler %s: %w", kind, err)
	}
	st.moveTo(prop, res)
	st.Accepted = true
	return nil
}

// evaluate calls p at a proposal and checks the result carries want.
func evaluate(ctx context.Context, p objective.Provider, theta []float64, want objective.Want) (objective.Result, error) {
	res, err := p.Evaluate(ctx, theta, want)
	if err != nil {
		return objective.Result{}, fmt.Errorf("evaluate proposal: %w", err)
	}
	if !res.Satisfies(want) {
		return objective.Result{}, fmt.Errorf("objective did not return the requested derivatives: %w", errs.ErrUnsupported)
	}
	return res, nil
}

// Config is a serializable description of a sampler.
type Config struct {
	Kind        Kind              `yaml:"kind" json:"kind"`
	StepSize    []float64         `yaml:"step_size" json:"step_size"`
	MaxHalvings int               `yaml:"max_halvings" json:"max_halvings"`
	Regularizer regularize.Config `yaml:"regularizer" json:"regularizer"`
}

// ParseKind maps a case-insensitive name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindRandomWalk, KindULA, KindRiemannianULA:
		return k, nil
	default:
		return "", fmt.Errorf("unknown sampler %q (want rwm, ula or rula)", s)
	}
}

// New builds the sampler described by cfg. valid and reference may be nil;
// reference is only used by the Riemannian sampler.
func New(cfg Config, valid perturb.Validator, reference *mat.SymDense) (Sampler, error) {
	kind, err := ParseKind(string(cfg.Kind))
	if err != nil {
		return nil, err
	}
	if len(cfg.StepSize) == 0 {
		return nil, fmt.Errorf("sampler %s: no step size", kind)
	}
	common := Common{Valid: valid, MaxHalvings: cfg.MaxHalvings}
	switch kind {
	case KindRandomWalk:
		return RandomWalk{Step: cfg.StepSize, Common: common}, nil
	case KindULA:
		return ULA{Step: cfg.StepSize, Common: common}, nil
	default:
		if len(cfg.StepSize) != 1 {
			return nil, fmt.Errorf("sampler rula: takes one scalar step size, got %d", len(cfg.StepSize))
		}
		if cfg.Regularizer != (regularize.Config{}) {
			if err := cfg.Regularizer.Validate(); err != nil {
				return nil, err
			}
		}
		return RiemannianULA{Step: cfg.StepSize[0], Regularizer: cfg.Regularizer, Reference: reference, Common: common}, nil
	}
}
