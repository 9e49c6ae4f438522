// Package vecmath provides small dense-matrix helpers shared by the
// regression, regularizer and sampler packages.
package vecmath

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// StackRows copies equally sized rows into a new len(rows)×len(rows[0])
// matrix. It returns nil for an empty input.
func StackRows(rows [][]float64) *mat.Dense {
	if len(rows) == 0 {
		return nil
	}
	cols := len(rows[0])
	out := mat.NewDense(len(rows), cols, nil)
	for i, r := range rows {
		if len(r) != cols {
			panic("vecmath: ragged rows")
		}
		out.SetRow(i, r)
	}
	return out
}

// CenterRows returns theta with center subtracted from every row.
func CenterRows(theta mat.Matrix, center []float64) *mat.Dense {
	r, c := theta.Dims()
	if c != len(center) {
		panic("vecmath: center length does not match columns")
	}
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, theta.At(i, j)-center[j])
		}
	}
	return out
}

// Symmetrize returns (m + mᵀ)/2 as a SymDense. m must be square.
func Symmetrize(m mat.Matrix) *mat.SymDense {
	r, c := m.Dims()
	if r != c {
		panic("vecmath: symmetrize of non-square matrix")
	}
	out := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			out.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
	return out
}

// Diag returns the diagonal of a square matrix.
func Diag(m mat.Matrix) []float64 {
	r, _ := m.Dims()
	d := make([]float64, r)
	for i := range d {
		d[i] = m.At(i, i)
	}
	return d
}

// AllFinite reports whether every value is neither NaN nor infinite.
func AllFinite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// MatFinite reports whether every element of m is finite.
func MatFinite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// Eigenvalues returns the ascending eigenvalues of a symmetric matrix.
// ok is false when the decomposition fails.
func Eigenvalues(m mat.Symmetric) (vals []float64, ok bool) {
	var eig mat.EigenSym
	if !eig.Factorize(m, false) {
		return nil, false
	}
	return eig.Values(nil), true
}

// IsPositiveDefinite reports whether m admits a Cholesky factorization.
func IsPositiveDefinite(m mat.Symmetric) bool {
	var chol mat.Cholesky
	return chol.Factorize(m)
}

// Broadcast expands a length-1 slice to length n. Slices already of length
// n are copied. Any other length returns nil.
func Broadcast(x []float64, n int) []float64 {
	switch len(x) {
	case n:
		out := make([]float64, n)
		copy(out, x)
		return out
	case 1:
		out := make([]float64, n)
		for i := range out {
			out[i] = x[0]
		}
		return out
	default:
		return nil
	}
}
