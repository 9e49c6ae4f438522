package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/nvandessel/synthlik/internal/errs"
	"github.com/nvandessel/synthlik/internal/logging"
	"github.com/nvandessel/synthlik/internal/objective"
)

// RunOptions controls a sampler run.
type RunOptions struct {
	Steps int
	// Collect lists the fields to record. Nil records DefaultFields.
	Collect []Field
	// Rand drives proposals. Nil uses a randomly seeded generator.
	Rand *rand.Rand
	// Logger receives progress at debug level and every step at trace
	// level. Nil discards.
	Logger *slog.Logger
	// Trace receives one JSONL event per step. Nil disables.
	Trace *logging.TraceLogger
	// Progress, when positive, logs a debug line every Progress steps.
	Progress int
}

// Run advances smp from state for opts.Steps iterations, recording the
// requested fields. The objective is evaluated only with the derivatives
// that smp or the recorded fields need. state is not modified; the final
// state is returned so that a later Run can continue the chain.
//
// Errors from the objective abort the run. A cancelled ctx stops the run
// between iterations and returns ctx.Err().
func Run(ctx context.Context, smp Sampler, p objective.Provider, state *State, opts RunOptions) (*Trajectory, *State, error) {
	if state == nil || len(state.Theta) == 0 {
		return nil, nil, fmt.Errorf("sampler: no initial parameters: %w", errs.ErrDimensionMismatch)
	}
	if opts.Steps < 0 {
		return nil, nil, fmt.Errorf("sampler: negative step count %d", opts.Steps)
	}
	fields := opts.Collect
	if fields == nil {
		fields = DefaultFields
	}
	for _, f := range fields {
		if !f.valid() {
			return nil, nil, fmt.Errorf("sampler: unknown trajectory field %q", f)
		}
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	logger := logging.OrDiscard(opts.Logger)

	st := state.Clone()
	if v := smp.common().Valid; v != nil && !v(st.Theta) {
		return nil, nil, fmt.Errorf("sampler: initial parameters %v: %w", st.Theta, errs.ErrInvalidProposal)
	}

	want := smp.Needs().Union(fieldsWant(fields))
	col := newCollector(fields, len(st.Theta), opts.Steps)
	logger.Debug("sampler run starting",
		"sampler", smp.Kind(),
		"steps", opts.Steps,
		"dim", len(st.Theta),
		"gradient", want.Gradient,
		"hessian", want.Hessian,
	)

	for i := 0; i < opts.Steps; i++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if err := smp.advance(ctx, st, p, want, rng); err != nil {
			return nil, nil, fmt.Errorf("step %d: %w", st.Counter+1, err)
		}
		st.Counter++
		observeStep(smp.Kind(), st)
		col.add(st)

		logger.Log(ctx, logging.LevelTrace, "sampler step",
			"step", st.Counter,
			"objective", st.Objective,
			"accepted", st.Accepted,
			"halvings", st.Halvings,
		)
		opts.Trace.Step(logging.StepEvent{
			Sampler:   string(smp.Kind()),
			Step:      st.Counter,
			Theta:     st.Theta,
			Proposed:  st.Proposed,
			Objective: logging.Finite(st.Objective),
			Accepted:  st.Accepted,
			Halvings:  st.Halvings,
			Exhausted: st.HalvingExhausted,
		})
		if st.HalvingExhausted {
			logger.Debug("halving cap reached, using unhalved proposal", "step", st.Counter)
		}
		if opts.Progress > 0 && (i+1)%opts.Progress == 0 {
			logger.Debug("sampler progress", "step", i+1, "of", opts.Steps, "objective", st.Objective)
		}
	}

	return col.finalize(), st, nil
}
