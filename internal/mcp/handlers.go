package mcp

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/synthlik/internal/config"
	"github.com/nvandessel/synthlik/internal/export"
	"github.com/nvandessel/synthlik/internal/objective"
	"github.com/nvandessel/synthlik/internal/pathutil"
	"github.com/nvandessel/synthlik/internal/pipeline"
	"github.com/nvandessel/synthlik/internal/ratelimit"
)

// Caps on caller-controlled work per tool call.
const (
	maxNSim      = 100000
	maxSteps     = 1000000
	defaultLimit = 20
	maxLimit     = 1000
)

// registerTools registers all synthlik MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolLikelihood,
		Description: "Estimate the negative log-likelihood (and optionally its gradient and Hessian) of a built-in simulator model at a parameter vector",
	}, s.handleLikelihood)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolRun,
		Description: "Run a sampler on a simulation-based likelihood, store the run and return chain summary statistics",
	}, s.handleRun)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolRuns,
		Description: "List stored sampler runs, most recent first",
	}, s.handleRuns)
}

// configFor returns a copy of the base config with per-call overrides.
func (s *Server) configFor(model, obj string, nsim int, seed uint64, observed []float64) (*config.SynthlikConfig, error) {
	cfg := *s.base
	if model != "" {
		cfg.Model.Name = model
		cfg.Model.Truth = nil
		cfg.Model.Observed = nil
	}
	if observed != nil {
		cfg.Model.Observed = observed
	}
	if obj != "" {
		cfg.Objective.Kind = obj
	}
	if nsim > maxNSim {
		return nil, fmt.Errorf("n_sim %d exceeds the limit of %d", nsim, maxNSim)
	}
	if nsim > 0 {
		cfg.Objective.NSim = nsim
	}
	if seed != 0 {
		cfg.Sampler.Seed = seed
	}
	return &cfg, nil
}

// handleLikelihood implements the synthlik_likelihood tool.
func (s *Server) handleLikelihood(ctx context.Context, req *sdk.CallToolRequest, args LikelihoodInput) (_ *sdk.CallToolResult, _ LikelihoodOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolLikelihood, start, retErr, "", sanitizeToolParams(map[string]any{
			"model": args.Model, "objective": args.Objective, "n_sim": args.NSim, "seed": args.Seed,
			"gradient": args.Gradient, "hessian": args.Hessian, "theta": args.Theta, "observed": args.Observed,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolLikelihood); err != nil {
		return nil, LikelihoodOutput{}, err
	}
	if len(args.Theta) == 0 {
		return nil, LikelihoodOutput{}, fmt.Errorf("'theta' parameter is required")
	}

	cfg, err := s.configFor(args.Model, args.Objective, args.NSim, args.Seed, args.Observed)
	if err != nil {
		return nil, LikelihoodOutput{}, err
	}
	cfg.Sampler.Start = args.Theta

	p, err := pipeline.Build(ctx, cfg)
	if err != nil {
		return nil, LikelihoodOutput{}, err
	}

	res, err := p.Objective.Evaluate(ctx, args.Theta, objective.Want{Gradient: args.Gradient, Hessian: args.Hessian})
	if err != nil {
		return nil, LikelihoodOutput{}, fmt.Errorf("evaluating objective: %w", err)
	}

	out := LikelihoodOutput{Observed: p.Observed}
	if v := res.Objective; !math.IsNaN(v) && !math.IsInf(v, 0) {
		out.Objective = &v
		out.Finite = true
	}
	if res.HasGradient {
		out.Gradient = res.Gradient
	}
	if res.HasHessian {
		n := res.Hessian.SymmetricDim()
		out.Hessian = make([][]float64, n)
		for i := range out.Hessian {
			out.Hessian[i] = make([]float64, n)
			for j := range out.Hessian[i] {
				out.Hessian[i][j] = res.Hessian.At(i, j)
			}
		}
	}
	return nil, out, nil
}

// handleRun implements the synthlik_run tool.
func (s *Server) handleRun(ctx context.Context, req *sdk.CallToolRequest, args RunInput) (_ *sdk.CallToolResult, _ RunOutput, retErr error) {
	start := time.Now()
	var runID string
	defer func() {
		s.auditTool(ratelimit.ToolRun, start, retErr, runID, sanitizeToolParams(map[string]any{
			"model": args.Model, "objective": args.Objective, "sampler": args.Sampler, "n_steps": args.NSteps,
			"n_sim": args.NSim, "seed": args.Seed, "burn_in": args.BurnIn, "resume": args.Resume,
			"step_size": args.StepSize, "start": args.Start, "observed": args.Observed, "export": args.Export,
		}))
	}()

	cfg, err := s.configFor(args.Model, args.Objective, args.NSim, args.Seed, args.Observed)
	if err != nil {
		return nil, RunOutput{}, err
	}
	if args.Sampler != "" {
		cfg.Sampler.Kind = args.Sampler
	}
	if len(args.StepSize) > 0 {
		cfg.Sampler.StepSize = args.StepSize
	}
	if args.NSteps > maxSteps {
		return nil, RunOutput{}, fmt.Errorf("n_steps %d exceeds the limit of %d", args.NSteps, maxSteps)
	}
	if args.NSteps > 0 {
		cfg.Sampler.NSteps = args.NSteps
	}
	if len(args.Start) > 0 {
		cfg.Sampler.Start = args.Start
	}

	var exportPath string
	if args.Export != "" {
		if exportPath, err = pathutil.ResolveExport(s.dir, args.Export); err != nil {
			return nil, RunOutput{}, err
		}
	}

	if err := ratelimit.CheckCost(s.toolLimiters, ratelimit.ToolRun, ratelimit.RunCost(cfg.Sampler.NSteps)); err != nil {
		return nil, RunOutput{}, err
	}

	res, err := pipeline.Execute(ctx, s.store, pipeline.RunRequest{
		Config: cfg,
		Resume: args.Resume,
		Logger: s.logger,
	})
	if err != nil {
		return nil, RunOutput{}, err
	}
	runID = res.RunID

	if exportPath != "" {
		if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
			return nil, RunOutput{}, fmt.Errorf("creating export directory: %w", err)
		}
		if err := export.WriteArrowFile(exportPath, res.Trajectory); err != nil {
			return nil, RunOutput{}, err
		}
	}

	sum := pipeline.Summarize(res.Trajectory, res.Final, args.BurnIn)
	return nil, RunOutput{
		RunID:          runID,
		ParentID:       args.Resume,
		Steps:          sum.Steps,
		Mean:           sum.Mean,
		StdDev:         sum.StdDev,
		AcceptanceRate: sum.AcceptanceRate,
		Final:          sum.Final,
		FinalObjective: sum.FinalObjective,
		ExportPath:     exportPath,
		Message:        fmt.Sprintf("%s run of %d steps on %s stored as %s", cfg.Sampler.Kind, sum.Steps, res.Pipeline.Model.Name, runID),
	}, nil
}

// handleRuns implements the synthlik_runs tool.
func (s *Server) handleRuns(ctx context.Context, req *sdk.CallToolRequest, args RunsInput) (_ *sdk.CallToolResult, _ RunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolRuns, start, retErr, "", sanitizeToolParams(map[string]any{
			"limit": args.Limit,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolRuns); err != nil {
		return nil, RunsOutput{}, err
	}

	limit := args.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	runs, err := s.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, RunsOutput{}, fmt.Errorf("failed to list runs: %w", err)
	}

	items := make([]RunListItem, 0, len(runs))
	for _, r := range runs {
		items = append(items, RunListItem{
			ID:             r.ID,
			Model:          r.Model,
			Objective:      r.Objective,
			Sampler:        r.Sampler,
			Steps:          r.Steps,
			ParentID:       r.ParentID,
			AcceptanceRate: r.AcceptanceRate,
			FinalObjective: r.FinalObjective,
			CreatedAt:      r.CreatedAt,
		})
	}
	return nil, RunsOutput{Runs: items, Count: len(items)}, nil
}
