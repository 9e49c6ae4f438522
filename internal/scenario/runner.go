package scenario

import (
	"context"
	"testing"

	"github.com/nvandessel/synthlik/internal/config"
	"github.com/nvandessel/synthlik/internal/pipeline"
	"github.com/nvandessel/synthlik/internal/sampler"
	"github.com/nvandessel/synthlik/internal/store"
)

// Runner orchestrates sampling experiments against a real run store.
type Runner struct {
	t     *testing.T
	store *store.SQLiteRunStore
}

// NewRunner creates a scenario runner with an isolated SQLite store
// and sandboxed HOME directory.
func NewRunner(t *testing.T) *Runner {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	s, err := store.NewSQLiteRunStore(tmpDir)
	if err != nil {
		t.Fatalf("NewRunner: failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return &Runner{t: t, store: s}
}

// Run executes the scenario and returns the collected results.
func (r *Runner) Run(sc Scenario) Result {
	r.t.Helper()
	ctx := context.Background()

	cfg := sc.Config
	if cfg == nil {
		cfg = config.Default()
	}

	p, err := pipeline.Build(ctx, cfg)
	if err != nil {
		r.t.Fatalf("scenario %s: build: %v", sc.Name, err)
	}

	chunks := sc.Chunks
	if len(chunks) == 0 {
		chunks = []int{cfg.Sampler.NSteps}
	}

	// One proposal stream across chunks, so a split run draws the same
	// numbers as an unsplit one.
	rng := p.Rand()

	results := make([]ChunkResult, 0, len(chunks))
	state := sampler.NewState(p.Start)
	parent := ""
	for i, steps := range chunks {
		if sc.BeforeChunk != nil {
			sc.BeforeChunk(i, r.store)
		}
		if parent != "" {
			state, err = r.store.LoadState(ctx, parent)
			if err != nil {
				r.t.Fatalf("scenario %s: chunk %d: LoadState: %v", sc.Name, i, err)
			}
		}

		tr, final, err := sampler.Run(ctx, p.Sampler, p.Objective, state, sampler.RunOptions{
			Steps:   steps,
			Collect: p.Collect,
			Rand:    rng,
		})
		if err != nil {
			r.t.Fatalf("scenario %s: chunk %d: Run: %v", sc.Name, i, err)
		}

		id, err := r.store.SaveRun(ctx, store.RunRecord{
			Model:     p.Model.Name,
			Objective: cfg.Objective.Kind,
			Sampler:   cfg.Sampler.Kind,
			Seed:      cfg.Sampler.Seed,
			ParentID:  parent,
		}, tr, final)
		if err != nil {
			r.t.Fatalf("scenario %s: chunk %d: SaveRun: %v", sc.Name, i, err)
		}

		results = append(results, ChunkResult{Index: i, RunID: id, Trajectory: tr, Final: final})
		parent = id
	}

	return Result{
		Name:     sc.Name,
		Chunks:   results,
		Pipeline: p,
		Store:    r.store,
	}
}
