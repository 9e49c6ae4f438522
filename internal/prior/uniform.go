package prior

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distmv"
)

// Uniform is a uniform prior on an axis-aligned box. Its log-density is
// flat inside the box, so both derivatives vanish there.
type Uniform struct {
	dist   *distmv.Uniform
	bounds []r1.Interval
}

var _ Differentiable = (*Uniform)(nil)

// NewUniform returns a uniform prior on [low_i, high_i] in each dimension.
func NewUniform(low, high []float64, src rand.Source) (*Uniform, error) {
	if len(low) != len(high) || len(low) == 0 {
		return nil, fmt.Errorf("uniform prior: %d lower and %d upper bounds", len(low), len(high))
	}
	bnds := make([]r1.Interval, len(low))
	for i := range low {
		if !(low[i] < high[i]) {
			return nil, fmt.Errorf("uniform prior: dimension %d has empty interval [%v, %v]", i, low[i], high[i])
		}
		bnds[i] = r1.Interval{Min: low[i], Max: high[i]}
	}
	return &Uniform{dist: distmv.NewUniform(bnds, src), bounds: bnds}, nil
}

// LogProb implements Prior.
func (u *Uniform) LogProb(x []float64) float64 { return u.dist.LogProb(x) }

// Rand implements Prior.
func (u *Uniform) Rand(dst []float64) []float64 { return u.dist.Rand(dst) }

// Dim implements Prior.
func (u *Uniform) Dim() int { return len(u.bounds) }

// InSupport implements Prior.
func (u *Uniform) InSupport(x []float64) bool {
	if len(x) != len(u.bounds) {
		return false
	}
	for i, b := range u.bounds {
		if x[i] < b.Min || x[i] > b.Max {
			return false
		}
	}
	return true
}

// Covariance implements Prior: diag((high − low)²/12).
func (u *Uniform) Covariance() *mat.SymDense {
	c := mat.NewSymDense(len(u.bounds), nil)
	for i, b := range u.bounds {
		w := b.Max - b.Min
		c.SetSym(i, i, w*w/12)
	}
	return c
}

// GradLogProb is zero.
func (u *Uniform) GradLogProb(dst, _ []float64) []float64 {
	if dst == nil {
		return make([]float64, len(u.bounds))
	}
	for i := range dst {
		dst[i] = 0
	}
	return dst
}

// HessLogProb is zero.
func (u *Uniform) HessLogProb(dst *mat.SymDense, _ []float64) *mat.SymDense {
	if dst == nil {
		return mat.NewSymDense(len(u.bounds), nil)
	}
	dst.Zero()
	return dst
}
