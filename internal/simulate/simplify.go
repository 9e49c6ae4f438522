package simulate

import (
	"fmt"
	"math"
	"sort"

	"github.com/nvandessel/synthlik/internal/errs"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Batch pairs perturbed parameters with the summaries they produced and
// the observed summary vector the likelihood is evaluated against.
type Batch struct {
	Theta    *mat.Dense // n_sim × n_θ
	S        *mat.Dense // n_sim × n_s
	Observed []float64  // n_s
}

// Validate checks that the batch dimensions agree.
func (b Batch) Validate() error {
	if b.Theta == nil || b.S == nil {
		return fmt.Errorf("simulate: batch is missing parameters or summaries: %w", errs.ErrDimensionMismatch)
	}
	tr, _ := b.Theta.Dims()
	sr, sc := b.S.Dims()
	if tr != sr {
		return fmt.Errorf("simulate: %d parameter rows but %d summary rows: %w", tr, sr, errs.ErrDimensionMismatch)
	}
	if b.Observed != nil && len(b.Observed) != sc {
		return fmt.Errorf("simulate: %d observed statistics but %d simulated: %w", len(b.Observed), sc, errs.ErrDimensionMismatch)
	}
	return nil
}

// Report describes what Simplify removed.
type Report struct {
	DroppedColumns []int // indices into the original summary columns
	DroppedRows    int
}

// Simplify drops zero-variance summary columns (and their observed
// entries), then removes every row holding a value farther than
// iqrMultiple·IQR from its column median. The same row mask is applied to
// Theta and S. iqrMultiple <= 0 disables the outlier pass. Columns whose
// IQR is zero are not used for outlier detection.
func Simplify(b Batch, iqrMultiple float64) (Batch, Report, error) {
	if err := b.Validate(); err != nil {
		return Batch{}, Report{}, err
	}

	var report Report
	keepCols := informativeColumns(b.S)
	if len(keepCols) == 0 {
		return Batch{}, Report{}, fmt.Errorf("simulate: every summary statistic is constant: %w", errs.ErrRegressionSingular)
	}
	_, nCols := b.S.Dims()
	if len(keepCols) < nCols {
		report.DroppedColumns = complement(keepCols, nCols)
		b = selectColumns(b, keepCols)
	}

	if iqrMultiple > 0 {
		keepRows := inlierRows(b.S, iqrMultiple)
		n, _ := b.S.Dims()
		if len(keepRows) > 0 && len(keepRows) < n {
			report.DroppedRows = n - len(keepRows)
			rowsDropped.WithLabelValues("outlier").Add(float64(report.DroppedRows))
			b = selectRows(b, keepRows)
		}
	}

	return b, report, nil
}

// informativeColumns returns the indices of columns with non-zero variance.
func informativeColumns(s *mat.Dense) []int {
	n, c := s.Dims()
	keep := make([]int, 0, c)
	col := make([]float64, n)
	for j := 0; j < c; j++ {
		mat.Col(col, j, s)
		if n > 1 && stat.Variance(col, nil) > 0 {
			keep = append(keep, j)
		}
	}
	return keep
}

// inlierRows returns the indices of rows within iqrMultiple·IQR of the
// median in every column.
func inlierRows(s *mat.Dense, iqrMultiple float64) []int {
	n, c := s.Dims()
	outlier := make([]bool, n)
	col := make([]float64, n)
	sorted := make([]float64, n)
	for j := 0; j < c; j++ {
		mat.Col(col, j, s)
		copy(sorted, col)
		sort.Float64s(sorted)
		median := stat.Quantile(0.5, stat.LinInterp, sorted, nil)
		iqr := stat.Quantile(0.75, stat.LinInterp, sorted, nil) - stat.Quantile(0.25, stat.LinInterp, sorted, nil)
		if iqr <= 0 {
			continue
		}
		limit := iqrMultiple * iqr
		for i, v := range col {
			if math.Abs(v-median) > limit {
				outlier[i] = true
			}
		}
	}

	keep := make([]int, 0, n)
	for i, o := range outlier {
		if !o {
			keep = append(keep, i)
		}
	}
	return keep
}

func complement(keep []int, n int) []int {
	kept := make(map[int]bool, len(keep))
	for _, k := range keep {
		kept[k] = true
	}
	var out []int
	for i := 0; i < n; i++ {
		if !kept[i] {
			out = append(out, i)
		}
	}
	return out
}

func selectColumns(b Batch, cols []int) Batch {
	n, _ := b.S.Dims()
	s := mat.NewDense(n, len(cols), nil)
	for i := 0; i < n; i++ {
		for k, j := range cols {
			s.Set(i, k, b.S.At(i, j))
		}
	}
	var observed []float64
	if b.Observed != nil {
		observed = make([]float64, len(cols))
		for k, j := range cols {
			observed[k] = b.Observed[j]
		}
	}
	return Batch{Theta: b.Theta, S: s, Observed: observed}
}

func selectRows(b Batch, rows []int) Batch {
	_, tc := b.Theta.Dims()
	_, sc := b.S.Dims()
	theta := mat.NewDense(len(rows), tc, nil)
	s := mat.NewDense(len(rows), sc, nil)
	for k, i := range rows {
		theta.SetRow(k, b.Theta.RawRowView(i))
		s.SetRow(k, b.S.RawRowView(i))
	}
	return Batch{Theta: theta, S: s, Observed: b.Observed}
}
