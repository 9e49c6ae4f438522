// Package constants provides named constants used throughout the synthlik codebase.
// This centralizes numeric defaults for better maintainability and documentation.
package constants

// Perturbation and step-halving caps
const (
	// DefaultMaxProposalRetries is the number of consecutive invalid draws
	// tolerated for a single perturbed row before giving up.
	DefaultMaxProposalRetries = 1000

	// DefaultMaxHalvings is the number of times a sampler halves an invalid
	// update before keeping the current point.
	DefaultMaxHalvings = 10
)

// Simulation batch constants
const (
	// DefaultNSim is the number of simulations per local regression.
	DefaultNSim = 500

	// DefaultOutlierIQR is the multiple of the interquartile range, measured
	// from the column median, beyond which a simulation row is discarded.
	// Zero or negative disables outlier removal.
	DefaultOutlierIQR = 6.0

	// DefaultPerturbationVariance is the per-dimension variance of the
	// Gaussian perturbation kernel used by local regression.
	DefaultPerturbationVariance = 0.5
)

// Regularizer constants
const (
	// DefaultSoftAbsAlpha is the sharpness of the soft absolute value applied
	// to negative eigenvalues. Eigenvalues are floored at 1/alpha.
	DefaultSoftAbsAlpha = 1e6

	// DefaultMinVarRatio and DefaultMaxVarRatio bound variances relative to a
	// reference matrix when one is supplied.
	DefaultMinVarRatio = 1e-4
	DefaultMaxVarRatio = 1.0

	// DefaultMaxCondition is the largest condition number allowed for the
	// correlation matrix.
	DefaultMaxCondition = 1e4

	// DefaultCorrThreshold zeroes correlations smaller in magnitude.
	DefaultCorrThreshold = 1e-3
)

// GLM fitting constants
const (
	// GLMMaxIterations caps IRLS iterations for the gamma GLM.
	GLMMaxIterations = 100

	// GLMTolerance is the IRLS convergence threshold on max |delta beta|.
	GLMTolerance = 1e-8
)

// Sampler defaults
const (
	// DefaultStepSize is the default sampler step size.
	DefaultStepSize = 0.1

	// DefaultNSteps is the default number of sampler iterations.
	DefaultNSteps = 1000
)
