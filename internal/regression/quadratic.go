package regression

import (
	"fmt"

	"github.com/nvandessel/synthlik/internal/errs"
	"github.com/nvandessel/synthlik/internal/vecmath"
	"gonum.org/v1/gonum/mat"
)

// LocalMu is the local behaviour of one summary statistic's mean around a
// center parameter vector.
type LocalMu struct {
	Mu    float64       // mean of the statistic at the center
	Grad  []float64     // first derivative w.r.t. the parameters
	Hess  *mat.SymDense // second derivative w.r.t. the parameters
	Resid []float64     // fitted minus observed, one per simulation
}

// PairwiseCombinations returns every index pair (j, k) with j <= k < n in
// row-major order, including matched pairs such as (0, 0).
func PairwiseCombinations(n int) [][2]int {
	out := make([][2]int, 0, n*(n+1)/2)
	for j := 0; j < n; j++ {
		for k := j; k < n; k++ {
			out = append(out, [2]int{j, k})
		}
	}
	return out
}

// NumQuadraticColumns is the number of columns of a quadratic design in n
// parameters: bias, n linear terms and n(n+1)/2 products.
func NumQuadraticColumns(n int) int {
	return 1 + n + n*(n+1)/2
}

// QuadraticDesignMatrix builds the design for a quadratic fit around
// center: a bias column, the offsets theta−center, and the products of
// every offset pair returned by PairwiseCombinations (in that order).
func QuadraticDesignMatrix(center []float64, theta mat.Matrix) (*mat.Dense, [][2]int) {
	d := vecmath.CenterRows(theta, center)
	n, p := d.Dims()
	combos := PairwiseCombinations(p)
	x := mat.NewDense(n, NumQuadraticColumns(p), nil)
	for i := 0; i < n; i++ {
		row := d.RawRowView(i)
		x.Set(i, 0, 1)
		for j, v := range row {
			x.Set(i, 1+j, v)
		}
		for c, jk := range combos {
			x.Set(i, 1+p+c, row[jk[0]]*row[jk[1]])
		}
	}
	return x, combos
}

// QuadraticLocalMu fits, independently for each column of s, a quadratic
// regression on the parameter offsets from center. The bias coefficient is
// the mean, the linear coefficients the gradient and the product
// coefficients, symmetrized, the Hessian.
func QuadraticLocalMu(center []float64, theta, s mat.Matrix) ([]LocalMu, error) {
	tr, tc := theta.Dims()
	sr, ns := s.Dims()
	if tr != sr {
		return nil, fmt.Errorf("regression: %d parameter rows, %d summary rows: %w", tr, sr, errs.ErrDimensionMismatch)
	}
	if tc != len(center) {
		return nil, fmt.Errorf("regression: center has %d dims, parameters %d: %w", len(center), tc, errs.ErrDimensionMismatch)
	}

	x, combos := QuadraticDesignMatrix(center, theta)
	beta, fitted, err := LinearRegression(x, s)
	if err != nil {
		return nil, fmt.Errorf("quadratic local mean: %w", err)
	}

	p := len(center)
	out := make([]LocalMu, ns)
	for j := 0; j < ns; j++ {
		grad := make([]float64, p)
		for k := range grad {
			grad[k] = beta.At(1+k, j)
		}

		// Coefficient of d_a·d_b placed at [a,b]; B + Bᵀ doubles the
		// squared terms and leaves the mixed terms as they are.
		b := mat.NewDense(p, p, nil)
		for c, ab := range combos {
			b.Set(ab[0], ab[1], beta.At(1+p+c, j))
		}
		hess := mat.NewSymDense(p, nil)
		for a := 0; a < p; a++ {
			for c := a; c < p; c++ {
				hess.SetSym(a, c, b.At(a, c)+b.At(c, a))
			}
		}

		resid := make([]float64, sr)
		for i := range resid {
			resid[i] = fitted.At(i, j) - s.At(i, j)
		}

		out[j] = LocalMu{
			Mu:    beta.At(0, j),
			Grad:  grad,
			Hess:  hess,
			Resid: resid,
		}
	}
	return out, nil
}

// Residuals stacks the residuals of each LocalMu into an
// (n_sim × n_s) matrix.
func Residuals(mus []LocalMu) *mat.Dense {
	if len(mus) == 0 {
		return nil
	}
	n := len(mus[0].Resid)
	out := mat.NewDense(n, len(mus), nil)
	for j, m := range mus {
		out.SetCol(j, m.Resid)
	}
	return out
}

// Means returns the fitted mean of every statistic.
func Means(mus []LocalMu) []float64 {
	out := make([]float64, len(mus))
	for j, m := range mus {
		out[j] = m.Mu
	}
	return out
}

// Jacobian returns the (n_s × n_θ) matrix of mean gradients.
func Jacobian(mus []LocalMu) *mat.Dense {
	if len(mus) == 0 {
		return nil
	}
	out := mat.NewDense(len(mus), len(mus[0].Grad), nil)
	for j, m := range mus {
		out.SetRow(j, m.Grad)
	}
	return out
}
