// Package errs defines the failure conditions shared by the estimation and
// sampling packages. Callers match them with errors.Is; packages wrap them
// with context using fmt.Errorf("...: %w", errs.ErrX).
package errs

import "errors"

var (
	// ErrInvalidProposal marks a parameter vector rejected by a validity
	// predicate. It is handled internally by resampling or step halving and
	// only escapes when wrapped by ErrProposalExhausted.
	ErrInvalidProposal = errors.New("invalid proposal")

	// ErrProposalExhausted is returned when the retry cap for drawing a valid
	// perturbation is exceeded. The run aborts.
	ErrProposalExhausted = errors.New("proposal retries exhausted")

	// ErrRegressionSingular is returned when a design matrix is rank
	// deficient or too ill-conditioned to solve. Supply more simulations or
	// fewer local parameters.
	ErrRegressionSingular = errors.New("regression design is singular")

	// ErrNonPositiveDefinite is returned when the regularizer output fails
	// its positive-definiteness check. This indicates a bug.
	ErrNonPositiveDefinite = errors.New("matrix is not positive definite")

	// ErrDimensionMismatch is returned when parameter, summary or observed
	// dimensions disagree.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrUnsupported is returned when an objective is asked for a quantity
	// it cannot provide (for example a gradient from a plain synthetic
	// likelihood).
	ErrUnsupported = errors.New("unsupported by objective")

	// ErrNonFiniteDerivative is returned when a numerical derivative is
	// infinite or NaN, typically because every difference stencil crosses
	// the edge of a bounded support.
	ErrNonFiniteDerivative = errors.New("derivative is not finite")
)
