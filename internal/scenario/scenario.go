package scenario

import (
	"github.com/nvandessel/synthlik/internal/config"
	"github.com/nvandessel/synthlik/internal/pipeline"
	"github.com/nvandessel/synthlik/internal/sampler"
	"github.com/nvandessel/synthlik/internal/store"
	"github.com/nvandessel/synthlik/internal/vecmath"
	"gonum.org/v1/gonum/mat"
)

// Scenario defines a complete sampling experiment.
type Scenario struct {
	Name string

	// Config describes the model, objective and sampler. Nil uses
	// config.Default().
	Config *config.SynthlikConfig

	// Chunks splits the run. Each entry is a step count; chunk i > 0 resumes
	// from the state stored after chunk i-1. Nil runs Config.Sampler.NSteps
	// steps in one chunk.
	Chunks []int

	// BeforeChunk, when non-nil, is called before each chunk executes.
	BeforeChunk func(chunkIndex int, s *store.SQLiteRunStore)
}

// ChunkResult captures the outcome of one chunk.
type ChunkResult struct {
	Index      int
	RunID      string
	Trajectory *sampler.Trajectory
	Final      *sampler.State
}

// Result captures all chunks and the store they were saved to.
type Result struct {
	Name     string
	Chunks   []ChunkResult
	Pipeline *pipeline.Pipeline
	Store    *store.SQLiteRunStore
}

// Steps returns the total number of recorded steps.
func (r Result) Steps() int {
	n := 0
	for _, c := range r.Chunks {
		n += c.Trajectory.Len()
	}
	return n
}

// Positions stacks the chain positions of every chunk, one row per step.
// Proposals are used when positions were not recorded.
func (r Result) Positions() *mat.Dense {
	var rows [][]float64
	for _, c := range r.Chunks {
		m := c.Trajectory.Current
		if m == nil {
			m = c.Trajectory.Theta
		}
		if m == nil {
			continue
		}
		n, _ := m.Dims()
		for i := 0; i < n; i++ {
			rows = append(rows, mat.Row(nil, i, m))
		}
	}
	return vecmath.StackRows(rows)
}

// Final returns the state after the last chunk.
func (r Result) Final() *sampler.State {
	if len(r.Chunks) == 0 {
		return nil
	}
	return r.Chunks[len(r.Chunks)-1].Final
}
