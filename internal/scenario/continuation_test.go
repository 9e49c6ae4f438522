package scenario_test

import (
	"context"
	"testing"

	"github.com/nvandessel/synthlik/internal/scenario"
	"github.com/nvandessel/synthlik/internal/store"
	"gonum.org/v1/gonum/mat"
)

func smallRWMConfig() *scenario.Scenario {
	cfg := gaussianConfig()
	cfg.Objective.NSim = 60
	cfg.Objective.Parallel = false
	cfg.Sampler.Kind = "rwm"
	cfg.Sampler.StepSize = []float64{0.05}
	cfg.Sampler.Start = []float64{0.9, 1.1}
	cfg.Sampler.NSteps = 30
	return &scenario.Scenario{Config: cfg}
}

// TestContinuationMatchesSingleRun checks that a run split into stored
// chunks reproduces the chain of the same run done in one go.
func TestContinuationMatchesSingleRun(t *testing.T) {
	whole := smallRWMConfig()
	whole.Name = "whole"
	single := scenario.NewRunner(t).Run(*whole)

	split := smallRWMConfig()
	split.Name = "split"
	split.Chunks = []int{10, 10, 10}
	chunked := scenario.NewRunner(t).Run(*split)

	if len(chunked.Chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunked.Chunks))
	}
	scenario.AssertCountersContiguous(t, chunked)

	a, b := single.Positions(), chunked.Positions()
	if !mat.Equal(a, b) {
		t.Errorf("split chain differs from single chain:\n%v\n%v", mat.Formatted(a), mat.Formatted(b))
	}
}

func TestChunksAreLinkedInStore(t *testing.T) {
	sc := smallRWMConfig()
	sc.Name = "linked"
	sc.Chunks = []int{5, 5}

	var seen []int
	sc.BeforeChunk = func(i int, _ *store.SQLiteRunStore) { seen = append(seen, i) }

	result := scenario.NewRunner(t).Run(*sc)
	if len(seen) != 2 || seen[0] != 0 || seen[1] != 1 {
		t.Errorf("BeforeChunk calls = %v, want [0 1]", seen)
	}

	ctx := context.Background()
	second, err := result.Store.GetRun(ctx, result.Chunks[1].RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if second.ParentID != result.Chunks[0].RunID {
		t.Errorf("ParentID = %q, want %q", second.ParentID, result.Chunks[0].RunID)
	}

	runs, err := result.Store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("stored %d runs, want 2", len(runs))
	}

	rate := scenario.AcceptanceRate(result)
	if rate < 0 || rate > 1 {
		t.Errorf("acceptance rate %v out of range", rate)
	}
}
