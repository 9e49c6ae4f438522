// Package regularize turns a symmetric matrix of uncertain quality, such as
// an estimated covariance or an observed-information Hessian, into a
// well-conditioned positive-definite one.
//
// The pipeline is fixed:
//  1. lift every eigenvalue below 1/α onto [1/α, ∞): negative ones through
//     the soft absolute value λ·coth(αλ), small positive ones to 1/α
//  2. optionally shrink toward a reference matrix until every variance lies
//     within [MinVarRatio, MaxVarRatio] of the reference variance
//  3. split into standard deviations and a correlation matrix
//  4. shrink correlations uniformly until the condition number is at most
//     MaxCondition
//  5. zero correlations smaller in magnitude than CorrThreshold
//  6. reassemble
//
// Steps 4 and 5 repeat until neither changes the correlation matrix, and
// the whole pipeline repeats while the result still has an eigenvalue below
// 1/α. Eigenvalues at or above 1/α are left alone, so the output is a fixed
// point of the pipeline.
package regularize

import (
	"fmt"
	"math"

	"github.com/nvandessel/synthlik/internal/constants"
	"github.com/nvandessel/synthlik/internal/errs"
	"github.com/nvandessel/synthlik/internal/vecmath"
	"gonum.org/v1/gonum/mat"
)

// maxCorrPasses bounds the condition/threshold loop. Each pass either zeroes
// a new entry or stops, so it terminates well before this.
const maxCorrPasses = 100

// maxPasses bounds the outer loop. Only thresholding can push an eigenvalue
// back under the floor, so one or two passes are typical.
const maxPasses = 8

// floorSlack absorbs eigendecomposition rounding at the 1/α floor.
const floorSlack = 1e-9

// condSlack keeps a matrix already shrunk to MaxCondition from being shrunk
// again by rounding error.
const condSlack = 1e-9

// Config holds the regularizer settings.
type Config struct {
	Alpha         float64 `yaml:"alpha" json:"alpha"`
	MinVarRatio   float64 `yaml:"min_var_ratio" json:"min_var_ratio"`
	MaxVarRatio   float64 `yaml:"max_var_ratio" json:"max_var_ratio"`
	MaxCondition  float64 `yaml:"max_condition" json:"max_condition"`
	CorrThreshold float64 `yaml:"corr_threshold" json:"corr_threshold"`
}

// DefaultConfig returns the package defaults.
func DefaultConfig() Config {
	return Config{
		Alpha:         constants.DefaultSoftAbsAlpha,
		MinVarRatio:   constants.DefaultMinVarRatio,
		MaxVarRatio:   constants.DefaultMaxVarRatio,
		MaxCondition:  constants.DefaultMaxCondition,
		CorrThreshold: constants.DefaultCorrThreshold,
	}
}

// Validate checks the configuration for values that cannot work.
func (c Config) Validate() error {
	if !(c.Alpha > 0) {
		return fmt.Errorf("regularize: alpha must be positive, got %v", c.Alpha)
	}
	if c.MinVarRatio <= 0 || c.MinVarRatio > 1 {
		return fmt.Errorf("regularize: min_var_ratio must be in (0, 1], got %v", c.MinVarRatio)
	}
	if c.MaxVarRatio < 1 {
		return fmt.Errorf("regularize: max_var_ratio must be at least 1, got %v", c.MaxVarRatio)
	}
	if c.MaxCondition != 0 && c.MaxCondition <= 1 {
		return fmt.Errorf("regularize: max_condition must exceed 1 (or be 0 to disable), got %v", c.MaxCondition)
	}
	if c.CorrThreshold < 0 || c.CorrThreshold >= 1 {
		return fmt.Errorf("regularize: corr_threshold must be in [0, 1), got %v", c.CorrThreshold)
	}
	return nil
}

// SoftAbs is a smooth absolute value: λ·coth(αλ). It tends to |λ| as α
// grows and never falls below 1/α, the value it takes at zero.
func SoftAbs(lambda, alpha float64) float64 {
	x := alpha * lambda
	if x == 0 {
		return 1 / alpha
	}
	return lambda / math.Tanh(x)
}

// Regularize runs the pipeline on m. ref may be nil; when given it must be
// positive definite with the same dimension as m.
func Regularize(m, ref mat.Symmetric, cfg Config) (*mat.SymDense, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := m.SymmetricDim()
	if ref != nil && ref.SymmetricDim() != n {
		return nil, fmt.Errorf("regularize: matrix is %d×%d, reference %d×%d: %w", n, n, ref.SymmetricDim(), ref.SymmetricDim(), errs.ErrDimensionMismatch)
	}
	if !vecmath.MatFinite(m) {
		return nil, fmt.Errorf("regularize: matrix has non-finite entries: %w", errs.ErrNonPositiveDefinite)
	}

	floor := 1 / cfg.Alpha
	var cur mat.Symmetric = m
	var out *mat.SymDense
	for pass := 0; pass < maxPasses; pass++ {
		var err error
		out, err = regularizeOnce(cur, ref, cfg)
		if err != nil {
			return nil, err
		}
		vals, ok := vecmath.Eigenvalues(out)
		if !ok || vals[0] >= floor*(1-floorSlack) {
			break
		}
		cur = out
	}

	if !vecmath.IsPositiveDefinite(out) {
		return nil, fmt.Errorf("regularize: result failed Cholesky check: %w", errs.ErrNonPositiveDefinite)
	}
	return out, nil
}

func regularizeOnce(m, ref mat.Symmetric, cfg Config) (*mat.SymDense, error) {
	a, err := liftEigen(m, cfg.Alpha)
	if err != nil {
		return nil, err
	}
	if ref != nil {
		a = shrinkToward(a, ref, cfg.MinVarRatio, cfg.MaxVarRatio)
	}

	sd, r := CovToCor(a)
	for pass := 0; pass < maxCorrPasses; pass++ {
		changed := false
		if cfg.MaxCondition > 0 {
			c, err := conditionShrink(r, cfg.MaxCondition)
			if err != nil {
				return nil, err
			}
			if c > 1 {
				scaleOffDiagonal(r, 1/c)
				changed = true
			}
		}
		if cfg.CorrThreshold > 0 && threshold(r, cfg.CorrThreshold) {
			changed = true
		}
		if !changed {
			break
		}
	}
	return CorToCov(sd, r), nil
}

// liftEigenvalue maps λ onto [1/α, ∞) and is the identity there.
func liftEigenvalue(lambda, alpha float64) float64 {
	floor := 1 / alpha
	switch {
	case lambda >= floor:
		return lambda
	case lambda >= 0:
		return floor
	default:
		return SoftAbs(lambda, alpha)
	}
}

// liftEigen rebuilds m with every eigenvalue passed through liftEigenvalue.
// m is copied unchanged when no eigenvalue is below the floor.
func liftEigen(m mat.Symmetric, alpha float64) (*mat.SymDense, error) {
	var eig mat.EigenSym
	if !eig.Factorize(m, true) {
		return nil, fmt.Errorf("regularize: eigendecomposition failed: %w", errs.ErrNonPositiveDefinite)
	}
	vals := eig.Values(nil)
	lifted := false
	for i, v := range vals {
		if w := liftEigenvalue(v, alpha); w != v {
			vals[i] = w
			lifted = true
		}
	}
	if !lifted {
		out := mat.NewSymDense(m.SymmetricDim(), nil)
		out.CopySym(m)
		return out, nil
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	var scaled mat.Dense
	scaled.Mul(&vecs, mat.NewDiagDense(len(vals), vals))
	var full mat.Dense
	full.Mul(&scaled, vecs.T())
	return vecmath.Symmetrize(&full), nil
}

// shrinkToward returns (1−w)·a + w·ref for the smallest w in [0, 1] that
// puts every diagonal entry within [lo, hi] times the reference variance.
func shrinkToward(a *mat.SymDense, ref mat.Symmetric, lo, hi float64) *mat.SymDense {
	n := a.SymmetricDim()
	var w float64
	for i := 0; i < n; i++ {
		ai, ri := a.At(i, i), ref.At(i, i)
		var need float64
		switch {
		case ai < lo*ri:
			need = (lo*ri - ai) / (ri - ai)
		case ai > hi*ri:
			need = (ai - hi*ri) / (ai - ri)
		}
		w = math.Max(w, need)
	}
	if w == 0 {
		return a
	}
	w = math.Min(w, 1)
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, (1-w)*a.At(i, j)+w*ref.At(i, j))
		}
	}
	return out
}

// conditionShrink returns the divisor c > 1 that, applied to every
// off-diagonal of the correlation matrix r, brings its condition number to
// maxCond. It returns 1 when r is already within bounds.
//
// Dividing the off-diagonals by c maps each eigenvalue λ to 1 + (λ−1)/c,
// which gives c = (λmax − 1 − K(λmin − 1)) / (K − 1).
func conditionShrink(r *mat.SymDense, maxCond float64) (float64, error) {
	vals, ok := vecmath.Eigenvalues(r)
	if !ok {
		return 0, fmt.Errorf("regularize: correlation eigendecomposition failed: %w", errs.ErrNonPositiveDefinite)
	}
	lmin, lmax := vals[0], vals[len(vals)-1]
	if lmin > 0 && lmax <= maxCond*(1+condSlack)*lmin {
		return 1, nil
	}
	c := (lmax - 1 - maxCond*(lmin-1)) / (maxCond - 1)
	if c <= 1 {
		return 1, nil
	}
	return c, nil
}

func scaleOffDiagonal(r *mat.SymDense, f float64) {
	n := r.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			r.SetSym(i, j, r.At(i, j)*f)
		}
	}
}

// threshold zeroes off-diagonal entries with magnitude below tau and
// reports whether anything changed.
func threshold(r *mat.SymDense, tau float64) bool {
	n := r.SymmetricDim()
	changed := false
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if v := r.At(i, j); v != 0 && math.Abs(v) < tau {
				r.SetSym(i, j, 0)
				changed = true
			}
		}
	}
	return changed
}

// CovToCor splits a covariance matrix into standard deviations and a
// correlation matrix with an exact unit diagonal.
func CovToCor(cov mat.Symmetric) (sd []float64, r *mat.SymDense) {
	n := cov.SymmetricDim()
	sd = make([]float64, n)
	for i := range sd {
		sd[i] = math.Sqrt(cov.At(i, i))
	}
	r = mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		r.SetSym(i, i, 1)
		for j := i + 1; j < n; j++ {
			r.SetSym(i, j, cov.At(i, j)/(sd[i]*sd[j]))
		}
	}
	return sd, r
}

// CorToCov is the inverse of CovToCor.
func CorToCov(sd []float64, r mat.Symmetric) *mat.SymDense {
	n := len(sd)
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, sd[i]*sd[j]*r.At(i, j))
		}
	}
	return out
}
