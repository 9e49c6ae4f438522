package models

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/nvandessel/synthlik/internal/simulate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	for _, name := range Names() {
		e, err := Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, name, e.Name)
		assert.NotNil(t, e.New)
		assert.NoError(t, e.CheckDim(len(e.Truth)))
	}

	_, err := Lookup("lotka-volterra")
	assert.Error(t, err)

	e, err := Lookup("RICKER")
	require.NoError(t, err)
	assert.Error(t, e.CheckDim(2))
}

func TestGaussianModel(t *testing.T) {
	m := Gaussian(0)
	s, err := simulate.RunFixed(context.Background(), m, []float64{1, -1}, 2000, 9, simulate.Config{})
	require.NoError(t, err)
	var sum0, sum1 float64
	for i := 0; i < 2000; i++ {
		sum0 += s.At(i, 0)
		sum1 += s.At(i, 1)
	}
	assert.InDelta(t, 1, sum0/2000, 0.02)
	assert.InDelta(t, -1, sum1/2000, 0.02)
}

func TestRickerSummary(t *testing.T) {
	y := []float64{0, 2, 0, 4, 0, 6, 0, 8, 0, 10}
	s, err := RickerSummary(y)
	require.NoError(t, err)
	require.Len(t, s, 5)
	assert.InDelta(t, 3, s[0], 1e-12)
	assert.InDelta(t, 0.5, s[1], 1e-12)
	assert.Less(t, s[3], 0.0, "alternating series is negatively autocorrelated")

	flat, err := RickerSummary([]float64{1, 1, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, flat[3])

	_, err = RickerSummary([]float64{1})
	assert.Error(t, err)
}

func TestRickerSimulates(t *testing.T) {
	m := Ricker(DefaultRickerConfig())
	y, err := m.Simulate(RickerTruth, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	assert.Len(t, y, 100)
	for _, v := range y {
		assert.GreaterOrEqual(t, v, 0.0)
	}
	s, err := m.Summarize(y)
	require.NoError(t, err)
	assert.Greater(t, s[0], 0.0)

	_, err = m.Simulate([]float64{1}, rand.New(rand.NewPCG(1, 2)))
	assert.Error(t, err)
}
