package models

import (
	"math/rand/v2"

	"github.com/nvandessel/synthlik/internal/simulate"
)

// DefaultGaussianNoise is the noise standard deviation of the Gaussian
// model.
const DefaultGaussianNoise = 0.1

// Gaussian returns the model θ + N(0, σ²I) with the identity summary.
func Gaussian(sigma float64) simulate.Model[[]float64] {
	if sigma <= 0 {
		sigma = DefaultGaussianNoise
	}
	return simulate.Model[[]float64]{
		Name: "gaussian",
		Simulate: func(theta []float64, rng *rand.Rand) ([]float64, error) {
			out := make([]float64, len(theta))
			for i, v := range theta {
				out[i] = v + sigma*rng.NormFloat64()
			}
			return out, nil
		},
		Summarize: simulate.Identity,
	}
}
