// Package simulate runs a simulator over batches of parameter vectors and
// reduces each run to a row of summary statistics.
package simulate

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/nvandessel/synthlik/internal/errs"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Simulator produces one raw simulation for a parameter vector. Options a
// simulator needs are captured by the closure. rng is private to the call.
type Simulator[T any] func(theta []float64, rng *rand.Rand) (T, error)

// Summary reduces a raw simulation to a fixed-length statistic vector.
type Summary[T any] func(raw T) ([]float64, error)

// Identity is the default summary for simulators that already return a
// statistic vector.
func Identity(raw []float64) ([]float64, error) {
	out := make([]float64, len(raw))
	copy(out, raw)
	return out, nil
}

// Model pairs a simulator with its summary function.
type Model[T any] struct {
	Name      string
	Simulate  Simulator[T]
	Summarize Summary[T]
}

// Config controls how a batch is executed.
type Config struct {
	// Parallel evaluates rows concurrently. Results are identical to the
	// sequential mode because each row draws from its own seeded RNG.
	Parallel bool

	// Workers caps concurrent rows when Parallel is set. Default: GOMAXPROCS.
	Workers int
}

// DefaultConfig returns a parallel configuration using all processors.
func DefaultConfig() Config {
	return Config{
		Parallel: true,
		Workers:  runtime.GOMAXPROCS(0),
	}
}

// rowRand returns the RNG for one row of a batch.
func rowRand(seed uint64, row int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(row)))
}

// Run simulates once per row of thetas and returns the matrix of summaries,
// row i corresponding to thetas row i regardless of execution order.
func Run[T any](ctx context.Context, model Model[T], thetas mat.Matrix, seed uint64, cfg Config) (*mat.Dense, error) {
	n, _ := thetas.Dims()
	if n == 0 {
		return nil, fmt.Errorf("simulate: empty parameter batch")
	}
	start := time.Now()
	defer func() {
		batchDuration.WithLabelValues(modelLabel(model)).Observe(time.Since(start).Seconds())
	}()

	rows := make([][]float64, n)
	runRow := func(i int) error {
		theta := mat.Row(nil, i, thetas)
		raw, err := model.Simulate(theta, rowRand(seed, i))
		if err != nil {
			return fmt.Errorf("simulate: row %d: %w", i, err)
		}
		summary := model.Summarize
		if summary == nil {
			return fmt.Errorf("simulate: model %q has no summary function", model.Name)
		}
		s, err := summary(raw)
		if err != nil {
			return fmt.Errorf("simulate: summary of row %d: %w", i, err)
		}
		rows[i] = s
		return nil
	}

	if cfg.Parallel {
		g, gCtx := errgroup.WithContext(ctx)
		workers := cfg.Workers
		if workers <= 0 {
			workers = runtime.GOMAXPROCS(0)
		}
		g.SetLimit(workers)
		for i := 0; i < n; i++ {
			g.Go(func() error {
				if err := gCtx.Err(); err != nil {
					return err
				}
				return runRow(i)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := runRow(i); err != nil {
				return nil, err
			}
		}
	}
	simulationsTotal.WithLabelValues(modelLabel(model)).Add(float64(n))

	return gather(rows)
}

// RunFixed simulates n times at a single parameter vector.
func RunFixed[T any](ctx context.Context, model Model[T], theta []float64, n int, seed uint64, cfg Config) (*mat.Dense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("simulate: n must be positive, got %d", n)
	}
	thetas := mat.NewDense(n, len(theta), nil)
	for i := 0; i < n; i++ {
		thetas.SetRow(i, theta)
	}
	return Run(ctx, model, thetas, seed, cfg)
}

// gather stacks summary rows in order, checking they share one length.
func gather(rows [][]float64) (*mat.Dense, error) {
	ns := len(rows[0])
	if ns == 0 {
		return nil, fmt.Errorf("simulate: summary is empty: %w", errs.ErrDimensionMismatch)
	}
	out := mat.NewDense(len(rows), ns, nil)
	for i, r := range rows {
		if len(r) != ns {
			return nil, fmt.Errorf("simulate: row %d has %d statistics, row 0 has %d: %w", i, len(r), ns, errs.ErrDimensionMismatch)
		}
		out.SetRow(i, r)
	}
	return out, nil
}

func modelLabel[T any](m Model[T]) string {
	if m.Name == "" {
		return "anonymous"
	}
	return m.Name
}
