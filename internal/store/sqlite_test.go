package store

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/nvandessel/synthlik/internal/objective"
	"github.com/nvandessel/synthlik/internal/sampler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func quadratic() objective.Analytic {
	return objective.Analytic{
		Objective: func(theta []float64) float64 {
			var s float64
			for _, v := range theta {
				s += 0.5 * v * v
			}
			return s
		},
		Gradient: func(theta []float64) []float64 {
			return append([]float64(nil), theta...)
		},
		Hessian: func(theta []float64) *mat.SymDense {
			h := mat.NewSymDense(len(theta), nil)
			for i := range theta {
				h.SetSym(i, i, 1)
			}
			return h
		},
	}
}

// runChain produces a short random-walk trajectory for storage tests.
func runChain(t *testing.T, fields []sampler.Field, steps int, start *sampler.State) (*sampler.Trajectory, *sampler.State) {
	t.Helper()
	smp, err := sampler.New(sampler.Config{Kind: sampler.KindRandomWalk, StepSize: []float64{0.5}}, nil, nil)
	require.NoError(t, err)
	if start == nil {
		start = sampler.NewState([]float64{0.5, -0.5})
	}
	tr, final, err := sampler.Run(context.Background(), smp, quadratic(), start, sampler.RunOptions{
		Steps:   steps,
		Collect: fields,
		Rand:    rand.New(rand.NewPCG(7, 11)),
	})
	require.NoError(t, err)
	return tr, final
}

func newTestStore(t *testing.T) *SQLiteRunStore {
	t.Helper()
	s, err := NewSQLiteRunStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteRunStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	s, err := NewSQLiteRunStore(dir)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, filepath.Join(dir, DBFileName), s.Path())
	_, err = os.Stat(s.Path())
	assert.NoError(t, err, "database file should exist")
}

func TestSQLiteRunStore_SaveGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tr, final := runChain(t, sampler.AllFields, 20, nil)

	id, err := s.SaveRun(ctx, RunRecord{
		Model:     "gaussian",
		Objective: "analytic",
		Sampler:   "rwm",
		Seed:      1<<63 + 5,
		Config:    "sampler:\n  kind: rwm\n",
	}, tr, final)
	require.NoError(t, err)
	assert.Len(t, id, 16)

	got, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "gaussian", got.Model)
	assert.Equal(t, "rwm", got.Sampler)
	assert.Equal(t, 2, got.Dim)
	assert.Equal(t, 20, got.Steps)
	assert.Equal(t, uint64(1<<63+5), got.Seed, "seed must survive beyond int64 range")
	assert.Equal(t, "sampler:\n  kind: rwm\n", got.Config)
	assert.Empty(t, got.ParentID)
	require.NotNil(t, got.AcceptanceRate)
	assert.InDelta(t, tr.AcceptanceRate(), *got.AcceptanceRate, 1e-12)
	require.NotNil(t, got.FinalObjective)
	assert.InDelta(t, final.Objective, *got.FinalObjective, 1e-12)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSQLiteRunStore_GetRunNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetRun(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	_, err = s.LoadState(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	_, err = s.LoadTheta(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestSQLiteRunStore_ListRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tr, final := runChain(t, nil, 5, nil)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := s.SaveRun(ctx, RunRecord{Model: "gaussian", Objective: "analytic", Sampler: "rwm", Seed: uint64(i)}, tr, final)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	all, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID, "most recent first")

	limited, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSQLiteRunStore_LoadTheta(t *testing.T) {
	tests := []struct {
		name   string
		fields []sampler.Field
		want   func(tr *sampler.Trajectory) *mat.Dense
	}{
		{
			name:   "positions recorded",
			fields: []sampler.Field{sampler.FieldTheta, sampler.FieldCurrent},
			want:   func(tr *sampler.Trajectory) *mat.Dense { return tr.Current },
		},
		{
			name:   "proposals only",
			fields: []sampler.Field{sampler.FieldTheta},
			want:   func(tr *sampler.Trajectory) *mat.Dense { return tr.Theta },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			ctx := context.Background()
			tr, final := runChain(t, tt.fields, 15, nil)

			id, err := s.SaveRun(ctx, RunRecord{Model: "gaussian", Objective: "analytic", Sampler: "rwm"}, tr, final)
			require.NoError(t, err)

			got, err := s.LoadTheta(ctx, id)
			require.NoError(t, err)
			assert.True(t, mat.EqualApprox(got, tt.want(tr), 1e-12))
		})
	}
}

func TestSQLiteRunStore_LoadStateContinuation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tr, final := runChain(t, []sampler.Field{sampler.FieldCurrent, sampler.FieldCounter}, 10, nil)

	parent, err := s.SaveRun(ctx, RunRecord{Model: "gaussian", Objective: "analytic", Sampler: "rwm"}, tr, final)
	require.NoError(t, err)

	st, err := s.LoadState(ctx, parent)
	require.NoError(t, err)
	assert.Equal(t, final.Counter, st.Counter)
	assert.Equal(t, final.Theta, st.Theta)
	assert.True(t, st.Evaluated())
	assert.InDelta(t, final.Objective, st.Objective, 1e-12)

	// Continue the chain and store it as a child run.
	tr2, final2 := runChain(t, []sampler.Field{sampler.FieldCurrent, sampler.FieldCounter}, 5, st)
	assert.Equal(t, []int{11, 12, 13, 14, 15}, tr2.Counter)

	child, err := s.SaveRun(ctx, RunRecord{Model: "gaussian", Objective: "analytic", Sampler: "rwm", ParentID: parent}, tr2, final2)
	require.NoError(t, err)
	got, err := s.GetRun(ctx, child)
	require.NoError(t, err)
	assert.Equal(t, parent, got.ParentID)
}

func TestSQLiteRunStore_LoadStateWithDerivatives(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	h := mat.NewSymDense(2, []float64{2, 0.5, 0.5, 3})
	final := sampler.Restore([]float64{1, 2}, 4.5, []float64{0.1, -0.2}, h, 30)
	tr, _ := runChain(t, nil, 3, nil)

	id, err := s.SaveRun(ctx, RunRecord{Model: "gaussian", Objective: "analytic", Sampler: "rula"}, tr, final)
	require.NoError(t, err)

	st, err := s.LoadState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 30, st.Counter)
	assert.Equal(t, []float64{0.1, -0.2}, st.Gradient)
	require.NotNil(t, st.Hessian)
	assert.True(t, mat.EqualApprox(st.Hessian, h, 1e-12))
}

func TestSQLiteRunStore_UnevaluatedState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tr, _ := runChain(t, nil, 3, nil)

	final := sampler.NewState([]float64{3, 4})
	final.Counter = 3
	id, err := s.SaveRun(ctx, RunRecord{Model: "gaussian", Objective: "analytic", Sampler: "rwm"}, tr, final)
	require.NoError(t, err)

	rec, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, rec.FinalObjective)

	st, err := s.LoadState(ctx, id)
	require.NoError(t, err)
	assert.False(t, st.Evaluated())
	assert.Equal(t, []float64{3, 4}, st.Theta)
	assert.Equal(t, 3, st.Counter)
}

func TestSQLiteRunStore_SaveRunRequiresTrajectory(t *testing.T) {
	s := newTestStore(t)
	_, err := s.SaveRun(context.Background(), RunRecord{}, nil, nil)
	assert.Error(t, err)
}
