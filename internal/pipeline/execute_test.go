package pipeline

import (
	"context"
	"testing"

	"github.com/nvandessel/synthlik/internal/config"
	"github.com/nvandessel/synthlik/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeConfig() *config.SynthlikConfig {
	cfg := config.Default()
	cfg.Objective.NSim = 100
	cfg.Objective.Parallel = false
	cfg.Sampler.Kind = "rwm"
	cfg.Sampler.StepSize = []float64{0.3}
	cfg.Sampler.NSteps = 15
	return cfg
}

func newRunStore(t *testing.T) store.RunStore {
	t.Helper()
	s, err := store.NewSQLiteRunStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestExecute(t *testing.T) {
	ctx := context.Background()
	runs := newRunStore(t)
	cfg := executeConfig()

	res, err := Execute(ctx, runs, RunRequest{Config: cfg})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 15, res.Trajectory.Len())
	assert.Equal(t, 15, res.Final.Counter)

	rec, err := runs.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "gaussian", rec.Model)
	assert.Equal(t, "rwm", rec.Sampler)
	assert.Equal(t, uint64(1), rec.Seed)
	assert.Contains(t, rec.Config, "kind: rwm")
}

func TestExecuteResume(t *testing.T) {
	ctx := context.Background()
	runs := newRunStore(t)
	cfg := executeConfig()

	first, err := Execute(ctx, runs, RunRequest{Config: cfg})
	require.NoError(t, err)

	second, err := Execute(ctx, runs, RunRequest{Config: cfg, Resume: first.RunID})
	require.NoError(t, err)

	assert.Equal(t, 30, second.Final.Counter)
	assert.Equal(t, first.Final.Theta, second.Pipeline.Start)
	assert.Equal(t, cfg.Sampler.Seed+15, second.Config.Sampler.Seed)
	// The caller's config is untouched.
	assert.Empty(t, cfg.Sampler.Start)
	assert.Equal(t, uint64(1), cfg.Sampler.Seed)

	rec, err := runs.GetRun(ctx, second.RunID)
	require.NoError(t, err)
	assert.Equal(t, first.RunID, rec.ParentID)
}

func TestExecuteResumeUnknown(t *testing.T) {
	_, err := Execute(context.Background(), newRunStore(t), RunRequest{Config: executeConfig(), Resume: "missing"})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestExecuteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runs := newRunStore(t)
	_, err := Execute(ctx, runs, RunRequest{Config: executeConfig()})
	require.Error(t, err)

	list, err := runs.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}
