package simulate

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/nvandessel/synthlik/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// labeledModel echoes the parameter row plus one random draw, so each
// summary row can be traced back to its parameter row.
func labeledModel() Model[[]float64] {
	return Model[[]float64]{
		Name: "labeled",
		Simulate: func(theta []float64, rng *rand.Rand) ([]float64, error) {
			return []float64{theta[0], theta[0] * 10, rng.Float64()}, nil
		},
		Summarize: Identity,
	}
}

func labeledThetas(n int) *mat.Dense {
	thetas := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		thetas.Set(i, 0, float64(i))
	}
	return thetas
}

func TestRun_PreservesRowOrder(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"sequential", Config{Parallel: false}},
		{"parallel", Config{Parallel: true, Workers: 8}},
		{"parallel single worker", Config{Parallel: true, Workers: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Run(context.Background(), labeledModel(), labeledThetas(200), 42, tt.cfg)
			require.NoError(t, err)

			r, c := s.Dims()
			require.Equal(t, 200, r)
			require.Equal(t, 3, c)
			for i := 0; i < r; i++ {
				assert.Equal(t, float64(i), s.At(i, 0), "row %d label", i)
				assert.Equal(t, float64(i)*10, s.At(i, 1), "row %d scaled label", i)
			}
		})
	}
}

func TestRun_ParallelMatchesSequential(t *testing.T) {
	ctx := context.Background()
	seq, err := Run(ctx, labeledModel(), labeledThetas(64), 7, Config{Parallel: false})
	require.NoError(t, err)
	par, err := Run(ctx, labeledModel(), labeledThetas(64), 7, Config{Parallel: true, Workers: 4})
	require.NoError(t, err)

	assert.True(t, mat.Equal(seq, par), "parallel and sequential batches differ")
}

func TestRun_SimulatorErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	model := Model[[]float64]{
		Name: "failing",
		Simulate: func(theta []float64, _ *rand.Rand) ([]float64, error) {
			if theta[0] == 3 {
				return nil, boom
			}
			return theta, nil
		},
		Summarize: Identity,
	}

	for _, parallel := range []bool{false, true} {
		_, err := Run(context.Background(), model, labeledThetas(10), 1, Config{Parallel: parallel})
		assert.ErrorIs(t, err, boom)
	}
}

func TestRun_RaggedSummaries(t *testing.T) {
	model := Model[[]float64]{
		Simulate: func(theta []float64, _ *rand.Rand) ([]float64, error) {
			return make([]float64, 1+int(theta[0])%2), nil
		},
		Summarize: Identity,
	}

	_, err := Run(context.Background(), model, labeledThetas(4), 1, Config{})
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)
}

func TestRunFixed(t *testing.T) {
	s, err := RunFixed(context.Background(), labeledModel(), []float64{2.5}, 30, 3, DefaultConfig())
	require.NoError(t, err)

	r, _ := s.Dims()
	require.Equal(t, 30, r)
	for i := 0; i < r; i++ {
		assert.Equal(t, 2.5, s.At(i, 0))
	}
	// Each row gets its own stream.
	assert.NotEqual(t, s.At(0, 2), s.At(1, 2))
}
