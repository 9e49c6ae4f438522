package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nvandessel/synthlik/internal/config"
	"github.com/nvandessel/synthlik/internal/logging"
	"github.com/nvandessel/synthlik/internal/sampler"
	"github.com/nvandessel/synthlik/internal/store"
	"gopkg.in/yaml.v3"
)

// RunRequest describes one stored sampler run.
type RunRequest struct {
	Config *config.SynthlikConfig
	// Resume continues the chain of a stored run from its final state.
	// The continuation draws from seed+counter so that it does not
	// replay the parent's random streams.
	Resume string
	Logger *slog.Logger
	Trace  *logging.TraceLogger
}

// RunResult is a completed and stored run.
type RunResult struct {
	RunID      string
	Config     *config.SynthlikConfig
	Pipeline   *Pipeline
	Trajectory *sampler.Trajectory
	Final      *sampler.State
}

// Execute builds the pipeline for req, runs the sampler for
// Config.Sampler.NSteps iterations and saves the run to runs.
// req.Config is not modified.
func Execute(ctx context.Context, runs store.RunStore, req RunRequest) (*RunResult, error) {
	cfg := *req.Config
	logger := logging.OrDiscard(req.Logger)

	var state *sampler.State
	if req.Resume != "" {
		var err error
		if state, err = runs.LoadState(ctx, req.Resume); err != nil {
			return nil, fmt.Errorf("loading run %s: %w", req.Resume, err)
		}
		cfg.Sampler.Start = state.Theta
		cfg.Sampler.Seed += uint64(state.Counter)
	}

	p, err := Build(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = sampler.NewState(p.Start)
	}

	logger.Info("starting run",
		"model", p.Model.Name,
		"objective", cfg.Objective.Kind,
		"sampler", cfg.Sampler.Kind,
		"steps", cfg.Sampler.NSteps,
		"resume", req.Resume,
	)

	tr, final, err := sampler.Run(ctx, p.Sampler, p.Objective, state, sampler.RunOptions{
		Steps:    cfg.Sampler.NSteps,
		Collect:  p.Collect,
		Rand:     p.Rand(),
		Logger:   logger,
		Trace:    req.Trace,
		Progress: cfg.Sampler.NSteps / 10,
	})
	if err != nil {
		return nil, fmt.Errorf("sampler run: %w", err)
	}

	snapshot, err := yaml.Marshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	id, err := runs.SaveRun(ctx, store.RunRecord{
		Model:     p.Model.Name,
		Objective: cfg.Objective.Kind,
		Sampler:   cfg.Sampler.Kind,
		Seed:      cfg.Sampler.Seed,
		ParentID:  req.Resume,
		Config:    string(snapshot),
	}, tr, final)
	if err != nil {
		return nil, fmt.Errorf("saving run: %w", err)
	}
	logger.Info("run stored", "id", id, "steps", tr.Len(), "acceptance_rate", tr.AcceptanceRate())

	return &RunResult{
		RunID:      id,
		Config:     &cfg,
		Pipeline:   p,
		Trajectory: tr,
		Final:      final,
	}, nil
}
