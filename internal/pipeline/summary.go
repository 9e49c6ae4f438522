package pipeline

import (
	"math"

	"github.com/nvandessel/synthlik/internal/sampler"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Summary describes a finished chain.
type Summary struct {
	Steps int `json:"steps"`
	// Mean and StdDev are per-coordinate over the chain positions, or
	// over the proposals when positions were not recorded.
	Mean   []float64 `json:"mean,omitempty"`
	StdDev []float64 `json:"std_dev,omitempty"`
	// AcceptanceRate is nil when acceptance was not recorded.
	AcceptanceRate *float64  `json:"acceptance_rate,omitempty"`
	Final          []float64 `json:"final"`
	// FinalObjective is nil when the final state was not evaluated or
	// its objective is not finite.
	FinalObjective *float64 `json:"final_objective,omitempty"`
}

// Summarize computes chain statistics from tr and the final state,
// skipping the first burnIn steps.
func Summarize(tr *sampler.Trajectory, final *sampler.State, burnIn int) Summary {
	s := Summary{Steps: tr.Len()}
	if final != nil {
		s.Final = append([]float64(nil), final.Theta...)
		if final.Evaluated() {
			s.FinalObjective = finite(final.Objective)
		}
	}
	s.AcceptanceRate = finite(tr.AcceptanceRate())

	m := tr.Current
	if m == nil {
		m = tr.Theta
	}
	if m == nil {
		return s
	}
	n, d := m.Dims()
	if burnIn < 0 || burnIn >= n {
		burnIn = 0
	}
	col := make([]float64, n-burnIn)
	s.Mean = make([]float64, d)
	s.StdDev = make([]float64, d)
	for j := 0; j < d; j++ {
		mat.Col(col, j, m.Slice(burnIn, n, 0, d))
		s.Mean[j], s.StdDev[j] = stat.MeanStdDev(col, nil)
		if math.IsNaN(s.StdDev[j]) {
			s.StdDev[j] = 0
		}
	}
	return s
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
