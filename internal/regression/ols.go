// Package regression fits the local surfaces used to approximate a
// simulation-based likelihood: a quadratic least-squares model of each
// summary statistic's mean, and a gamma GLM of the residual variances.
package regression

import (
	"errors"
	"fmt"

	"github.com/nvandessel/synthlik/internal/errs"
	"gonum.org/v1/gonum/mat"
)

// MaxDesignCondition is the largest condition number of a design matrix
// accepted before the fit is declared singular.
const MaxDesignCondition = 1e12

// solver holds one QR factorization of a design matrix so that several
// response vectors can be solved against it.
type solver struct {
	x  *mat.Dense
	qr mat.QR
}

// newSolver factorizes x, failing when it has fewer rows than columns or
// is too ill-conditioned to solve reliably.
func newSolver(x *mat.Dense) (*solver, error) {
	n, p := x.Dims()
	if n < p {
		return nil, fmt.Errorf("regression: %d rows for %d design columns: %w", n, p, errs.ErrRegressionSingular)
	}
	s := &solver{x: x}
	s.qr.Factorize(x)
	if cond := s.qr.Cond(); cond > MaxDesignCondition {
		return nil, fmt.Errorf("regression: design condition number %.3g: %w", cond, errs.ErrRegressionSingular)
	}
	return s, nil
}

// solve returns the least-squares coefficients for each column of y.
func (s *solver) solve(y mat.Matrix) (*mat.Dense, error) {
	var beta mat.Dense
	if err := s.qr.SolveTo(&beta, false, y); err != nil {
		var cond mat.Condition
		if errors.As(err, &cond) {
			return nil, fmt.Errorf("regression: %v: %w", err, errs.ErrRegressionSingular)
		}
		return nil, fmt.Errorf("regression: solve: %w", err)
	}
	return &beta, nil
}

// LinearRegression fits Y ≈ X·β by least squares using a QR factorization
// shared across all columns of Y. X should contain a bias column when one
// is wanted. It returns the coefficients (columns of X × columns of Y) and
// the fitted values.
func LinearRegression(x *mat.Dense, y mat.Matrix) (beta, fitted *mat.Dense, err error) {
	xr, _ := x.Dims()
	yr, _ := y.Dims()
	if xr != yr {
		return nil, nil, fmt.Errorf("regression: design has %d rows, response %d: %w", xr, yr, errs.ErrDimensionMismatch)
	}
	s, err := newSolver(x)
	if err != nil {
		return nil, nil, err
	}
	beta, err = s.solve(y)
	if err != nil {
		return nil, nil, err
	}
	fitted = &mat.Dense{}
	fitted.Mul(x, beta)
	return beta, fitted, nil
}
