// Package models holds the built-in simulators used by the command line,
// the tool server and the test scenarios.
package models

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nvandessel/synthlik/internal/simulate"
)

// Entry describes a built-in model.
type Entry struct {
	Name        string
	Description string
	// Dim is the parameter dimension, or 0 when any dimension works.
	Dim int
	// Truth is a default true parameter for generating observed data.
	Truth []float64
	// New builds the model. noise is the model's observation noise scale;
	// zero selects the model default.
	New func(noise float64) simulate.Model[[]float64]
}

var registry = map[string]Entry{
	"gaussian": {
		Name:        "gaussian",
		Description: "θ plus isotropic Gaussian noise, identity summary",
		Truth:       []float64{1, 1},
		New:         Gaussian,
	},
	"ricker": {
		Name:        "ricker",
		Description: "Ricker population map with Poisson observations (log r, log σ, log φ)",
		Dim:         3,
		Truth:       RickerTruth,
		New:         func(float64) simulate.Model[[]float64] { return Ricker(DefaultRickerConfig()) },
	},
}

// Lookup returns the named model.
func Lookup(name string) (Entry, error) {
	e, ok := registry[strings.ToLower(name)]
	if !ok {
		return Entry{}, fmt.Errorf("unknown model %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return e, nil
}

// Names returns the registered model names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CheckDim reports an error when theta has the wrong length for e.
func (e Entry) CheckDim(n int) error {
	if e.Dim != 0 && e.Dim != n {
		return fmt.Errorf("model %s takes %d parameters, got %d", e.Name, e.Dim, n)
	}
	return nil
}
