package models

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/nvandessel/synthlik/internal/simulate"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// RickerTruth is (log r, log σ, log φ) for r = e^3.8, σ = 0.3, φ = 10.
var RickerTruth = []float64{3.8, math.Log(0.3), math.Log(10)}

// RickerConfig sets the length of a Ricker series.
type RickerConfig struct {
	Burn  int
	Steps int
	N0    float64
}

// DefaultRickerConfig returns a 50 step burn-in followed by 100 observed
// steps.
func DefaultRickerConfig() RickerConfig {
	return RickerConfig{Burn: 50, Steps: 100, N0: 1}
}

// Ricker returns the stochastic Ricker map
//
//	N_{t+1} = r·N_t·exp(−N_t + e_t),  e_t ~ N(0, σ²)
//	y_t ~ Poisson(φ·N_t)
//
// parameterized by θ = (log r, log σ, log φ). The raw output is the
// observed count series; the summary is RickerSummary.
func Ricker(cfg RickerConfig) simulate.Model[[]float64] {
	return simulate.Model[[]float64]{
		Name: "ricker",
		Simulate: func(theta []float64, rng *rand.Rand) ([]float64, error) {
			if len(theta) != 3 {
				return nil, fmt.Errorf("ricker: want 3 parameters, got %d", len(theta))
			}
			logR, sigma, phi := theta[0], math.Exp(theta[1]), math.Exp(theta[2])
			n := cfg.N0
			y := make([]float64, cfg.Steps)
			for t := 0; t < cfg.Burn+cfg.Steps; t++ {
				// log N update avoids overflow for large r.
				logN := logR + math.Log(n) - n + sigma*rng.NormFloat64()
				n = math.Exp(logN)
				if t >= cfg.Burn {
					lambda := phi * n
					if lambda > 0 && !math.IsInf(lambda, 0) {
						y[t-cfg.Burn] = distuv.Poisson{Lambda: lambda, Src: rng}.Rand()
					}
				}
			}
			return y, nil
		},
		Summarize: RickerSummary,
	}
}

// RickerSummary reduces a count series to (mean, fraction of zeros,
// log(1 + variance), lag-1 autocorrelation, 0.9 quantile).
func RickerSummary(y []float64) ([]float64, error) {
	if len(y) < 3 {
		return nil, fmt.Errorf("ricker summary: series of length %d is too short", len(y))
	}
	mean, variance := stat.MeanVariance(y, nil)
	var zeros float64
	for _, v := range y {
		if v == 0 {
			zeros++
		}
	}
	acf := stat.Correlation(y[:len(y)-1], y[1:], nil)
	if math.IsNaN(acf) {
		acf = 0
	}
	sorted := append([]float64(nil), y...)
	sort.Float64s(sorted)
	q := stat.Quantile(0.9, stat.Empirical, sorted, nil)

	return []float64{
		mean,
		zeros / float64(len(y)),
		math.Log1p(variance),
		acf,
		q,
	}, nil
}
