package scenario_test

import (
	"testing"

	"github.com/nvandessel/synthlik/internal/config"
	"github.com/nvandessel/synthlik/internal/scenario"
)

// TestSyntheticRWM checks the plain synthetic likelihood drives a random
// walk with a sensible acceptance rate.
func TestSyntheticRWM(t *testing.T) {
	if testing.Short() {
		t.Skip("statistical scenario")
	}

	cfg := config.Default()
	cfg.Model.Truth = []float64{1, 1}
	cfg.Objective.Kind = config.ObjectiveSyntheticLikelihood
	cfg.Objective.NSim = 200
	cfg.Sampler.Kind = "rwm"
	cfg.Sampler.StepSize = []float64{0.05}
	cfg.Sampler.Start = []float64{1, 1}
	cfg.Sampler.NSteps = 300

	result := scenario.NewRunner(t).Run(scenario.Scenario{Name: "synthetic-rwm", Config: cfg})
	scenario.AssertAcceptanceBetween(t, result, 0.05, 0.95)
	scenario.AssertMeanWithin(t, result, []float64{1, 1}, 0.3, 100)
}
