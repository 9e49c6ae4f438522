package scenario

import (
	"math"
	"testing"

	"github.com/nvandessel/synthlik/internal/vecmath"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// MeanFrom returns the column means of the chain positions from step
// fromStep (0-based, counted across chunks) to the end.
func MeanFrom(result Result, fromStep int) []float64 {
	pos := result.Positions()
	if pos == nil {
		return nil
	}
	n, d := pos.Dims()
	if fromStep >= n {
		return nil
	}
	tail := pos.Slice(fromStep, n, 0, d)
	mean := make([]float64, d)
	col := make([]float64, n-fromStep)
	for j := 0; j < d; j++ {
		mat.Col(col, j, tail)
		mean[j] = stat.Mean(col, nil)
	}
	return mean
}

// AssertMeanWithin asserts that the chain mean from fromStep onwards is
// within tol of want in every coordinate.
func AssertMeanWithin(t *testing.T, result Result, want []float64, tol float64, fromStep int) {
	t.Helper()
	mean := MeanFrom(result, fromStep)
	if mean == nil {
		t.Fatalf("AssertMeanWithin: %s: no positions after step %d", result.Name, fromStep)
	}
	if len(mean) != len(want) {
		t.Fatalf("AssertMeanWithin: %s: mean has %d coordinates, want %d", result.Name, len(mean), len(want))
	}
	for i := range want {
		if math.Abs(mean[i]-want[i]) > tol {
			t.Errorf("AssertMeanWithin: %s: coordinate %d mean %.4f not within %.4f of %.4f", result.Name, i, mean[i], tol, want[i])
		}
	}
}

// AcceptanceRate returns the accepted fraction over all chunks, or NaN
// when acceptance was not recorded.
func AcceptanceRate(result Result) float64 {
	var accepted, total int
	for _, c := range result.Chunks {
		for _, a := range c.Trajectory.Accepted {
			if a {
				accepted++
			}
			total++
		}
	}
	if total == 0 {
		return math.NaN()
	}
	return float64(accepted) / float64(total)
}

// AssertAcceptanceBetween asserts that the overall acceptance rate lies in
// [lo, hi].
func AssertAcceptanceBetween(t *testing.T, result Result, lo, hi float64) {
	t.Helper()
	rate := AcceptanceRate(result)
	if math.IsNaN(rate) {
		t.Fatalf("AssertAcceptanceBetween: %s: acceptance not recorded", result.Name)
	}
	if rate < lo || rate > hi {
		t.Errorf("AssertAcceptanceBetween: %s: acceptance %.4f not in [%.4f, %.4f]", result.Name, rate, lo, hi)
	}
}

// AssertFinite asserts that every recorded position is finite.
func AssertFinite(t *testing.T, result Result) {
	t.Helper()
	pos := result.Positions()
	if pos == nil {
		t.Fatalf("AssertFinite: %s: no positions recorded", result.Name)
	}
	if !vecmath.MatFinite(pos) {
		t.Errorf("AssertFinite: %s: chain contains non-finite values", result.Name)
	}
}

// AssertCountersContiguous asserts that step counters continue across
// chunks without gaps or repeats.
func AssertCountersContiguous(t *testing.T, result Result) {
	t.Helper()
	next := 0
	for _, c := range result.Chunks {
		if c.Trajectory.Counter == nil {
			t.Fatalf("AssertCountersContiguous: %s: counter not recorded", result.Name)
		}
		for _, n := range c.Trajectory.Counter {
			if next != 0 && n != next {
				t.Errorf("AssertCountersContiguous: %s: chunk %d: counter %d, want %d", result.Name, c.Index, n, next)
			}
			next = n + 1
		}
	}
}
