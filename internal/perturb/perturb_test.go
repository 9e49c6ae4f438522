package perturb

import (
	"math/rand/v2"
	"testing"

	"github.com/nvandessel/synthlik/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func newProposal(t *testing.T, dim int, variance float64) Proposal {
	t.Helper()
	d, err := NewIsotropic(dim, variance, rand.NewPCG(1, 2))
	require.NoError(t, err)
	return d
}

func TestPerturb_ReturnsRequestedCount(t *testing.T) {
	center := []float64{1, -2, 3}
	d := newProposal(t, 3, 0.25)

	theta, err := Perturb(center, d, 50, func([]float64) bool { return true }, 0)
	require.NoError(t, err)

	r, c := theta.Dims()
	assert.Equal(t, 50, r)
	assert.Equal(t, 3, c)
}

func TestPerturb_CentersOnCenter(t *testing.T) {
	center := []float64{10, -10}
	d := newProposal(t, 2, 1)

	theta, err := Perturb(center, d, 4000, nil, 0)
	require.NoError(t, err)

	for j, want := range center {
		col := make([]float64, 4000)
		for i := range col {
			col[i] = theta.At(i, j)
		}
		assert.InDelta(t, want, stat.Mean(col, nil), 0.1, "column %d mean", j)
		assert.InDelta(t, 1.0, stat.Variance(col, nil), 0.1, "column %d variance", j)
	}
}

func TestPerturb_ResamplesInvalidDraws(t *testing.T) {
	d := newProposal(t, 1, 1)
	positive := func(x []float64) bool { return x[0] > 0 }

	theta, err := Perturb([]float64{0}, d, 200, positive, 0)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		assert.Greater(t, theta.At(i, 0), 0.0)
	}
}

func TestPerturb_ExhaustedWhenPredicateAlwaysFails(t *testing.T) {
	d := newProposal(t, 2, 1)

	_, err := Perturb([]float64{0, 0}, d, 5, func([]float64) bool { return false }, 25)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrProposalExhausted)
}

func TestPerturb_DimensionMismatch(t *testing.T) {
	d := newProposal(t, 2, 1)

	_, err := Perturb([]float64{0, 0, 0}, d, 5, nil, 0)
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)
}
