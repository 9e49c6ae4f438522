package mcp

import "time"

// LikelihoodInput defines the input for the synthlik_likelihood tool.
type LikelihoodInput struct {
	Theta     []float64 `json:"theta" jsonschema:"Parameter vector to evaluate at"`
	Model     string    `json:"model,omitempty" jsonschema:"Built-in model name (gaussian or ricker; default from config)"`
	Objective string    `json:"objective,omitempty" jsonschema:"local_likelihood, local_posterior or synthetic_likelihood (default from config)"`
	Observed  []float64 `json:"observed,omitempty" jsonschema:"Observed summary vector (default: one simulation at the model truth)"`
	NSim      int       `json:"n_sim,omitempty" jsonschema:"Simulations per evaluation (default from config)"`
	Gradient  bool      `json:"gradient,omitempty" jsonschema:"Also return the gradient of the negative log-likelihood"`
	Hessian   bool      `json:"hessian,omitempty" jsonschema:"Also return the Hessian of the negative log-likelihood"`
	Seed      uint64    `json:"seed,omitempty" jsonschema:"Random seed (default from config)"`
}

// LikelihoodOutput defines the output for the synthlik_likelihood tool.
type LikelihoodOutput struct {
	// Objective is omitted when it is not finite, e.g. outside the
	// support of the prior.
	Objective *float64    `json:"objective,omitempty" jsonschema:"Negative log-likelihood or log-posterior"`
	Finite    bool        `json:"finite" jsonschema:"Whether the objective is finite"`
	Gradient  []float64   `json:"gradient,omitempty" jsonschema:"Gradient of the objective"`
	Hessian   [][]float64 `json:"hessian,omitempty" jsonschema:"Hessian of the objective, row by row"`
	Observed  []float64   `json:"observed" jsonschema:"Observed summaries used"`
}

// RunInput defines the input for the synthlik_run tool.
type RunInput struct {
	Model     string    `json:"model,omitempty" jsonschema:"Built-in model name (default from config)"`
	Objective string    `json:"objective,omitempty" jsonschema:"Objective kind (default from config)"`
	Sampler   string    `json:"sampler,omitempty" jsonschema:"rwm, ula or rula (default from config)"`
	StepSize  []float64 `json:"step_size,omitempty" jsonschema:"Scalar or per-dimension step size (default from config)"`
	NSteps    int       `json:"n_steps,omitempty" jsonschema:"Number of sampler iterations (default from config)"`
	NSim      int       `json:"n_sim,omitempty" jsonschema:"Simulations per evaluation (default from config)"`
	Start     []float64 `json:"start,omitempty" jsonschema:"Initial parameter vector (default: origin)"`
	Observed  []float64 `json:"observed,omitempty" jsonschema:"Observed summary vector"`
	Seed      uint64    `json:"seed,omitempty" jsonschema:"Random seed (default from config)"`
	BurnIn    int       `json:"burn_in,omitempty" jsonschema:"Steps excluded from the summary statistics"`
	Resume    string    `json:"resume,omitempty" jsonschema:"Run ID to continue from its final state"`
	Export    string    `json:"export,omitempty" jsonschema:"File name for an Arrow IPC export of the trajectory, relative to the exports directory"`
}

// RunOutput defines the output for the synthlik_run tool.
type RunOutput struct {
	RunID          string    `json:"run_id" jsonschema:"ID of the stored run"`
	ParentID       string    `json:"parent_id,omitempty" jsonschema:"Run this one continued from"`
	Steps          int       `json:"steps" jsonschema:"Number of recorded steps"`
	Mean           []float64 `json:"mean,omitempty" jsonschema:"Per-coordinate chain mean after burn-in"`
	StdDev         []float64 `json:"std_dev,omitempty" jsonschema:"Per-coordinate chain standard deviation after burn-in"`
	AcceptanceRate *float64  `json:"acceptance_rate,omitempty" jsonschema:"Fraction of accepted proposals"`
	Final          []float64 `json:"final" jsonschema:"Final chain position"`
	FinalObjective *float64  `json:"final_objective,omitempty" jsonschema:"Objective at the final position"`
	ExportPath     string    `json:"export_path,omitempty" jsonschema:"Path of the Arrow export, when requested"`
	Message        string    `json:"message" jsonschema:"Human-readable result message"`
}

// RunsInput defines the input for the synthlik_runs tool.
type RunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of runs to return, most recent first (default: 20)"`
}

// RunsOutput defines the output for the synthlik_runs tool.
type RunsOutput struct {
	Runs  []RunListItem `json:"runs" jsonschema:"Stored runs"`
	Count int           `json:"count" jsonschema:"Number of runs returned"`
}

// RunListItem provides a list view of a stored run.
type RunListItem struct {
	ID             string    `json:"id"`
	Model          string    `json:"model"`
	Objective      string    `json:"objective"`
	Sampler        string    `json:"sampler"`
	Steps          int       `json:"steps"`
	ParentID       string    `json:"parent_id,omitempty"`
	AcceptanceRate *float64  `json:"acceptance_rate,omitempty"`
	FinalObjective *float64  `json:"final_objective,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
