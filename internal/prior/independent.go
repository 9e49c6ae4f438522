package prior

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Univariate is a one-dimensional distribution. Every distribution in
// gonum's distuv package satisfies it.
type Univariate interface {
	LogProb(x float64) float64
	Rand() float64
	Variance() float64
}

// Independent is a product of univariate distributions. It has no closed
// form derivatives; Gradient and Hessian fall back to finite differences.
type Independent struct {
	components []Univariate
}

// NewIndependent returns the product of the given components.
func NewIndependent(components ...Univariate) (*Independent, error) {
	if len(components) == 0 {
		return nil, fmt.Errorf("independent prior: no components")
	}
	return &Independent{components: components}, nil
}

// LogProb implements Prior.
func (p *Independent) LogProb(x []float64) float64 {
	if len(x) != len(p.components) {
		panic("prior: dimension mismatch")
	}
	var lp float64
	for i, c := range p.components {
		lp += c.LogProb(x[i])
	}
	return lp
}

// Rand implements Prior.
func (p *Independent) Rand(dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(p.components))
	}
	for i, c := range p.components {
		dst[i] = c.Rand()
	}
	return dst
}

// Dim implements Prior.
func (p *Independent) Dim() int { return len(p.components) }

// InSupport implements Prior.
func (p *Independent) InSupport(x []float64) bool {
	if len(x) != len(p.components) {
		return false
	}
	for i, c := range p.components {
		if !finite(c.LogProb(x[i])) {
			return false
		}
	}
	return true
}

// Covariance implements Prior.
func (p *Independent) Covariance() *mat.SymDense {
	c := mat.NewSymDense(len(p.components), nil)
	for i, comp := range p.components {
		c.SetSym(i, i, comp.Variance())
	}
	return c
}
