// Package store persists sampler runs: run metadata, the recorded
// trajectory and the final sampler state, so that a run can be listed,
// inspected and continued later.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/nvandessel/synthlik/internal/sampler"
	"gonum.org/v1/gonum/mat"
)

// ErrNotFound is returned when a run ID does not exist.
var ErrNotFound = errors.New("run not found")

// RunRecord describes one stored sampler run.
type RunRecord struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Objective string    `json:"objective"` // "local_likelihood", "local_posterior", ...
	Sampler   string    `json:"sampler"`   // "rwm", "ula", "rula"
	Dim       int       `json:"dim"`
	Steps     int       `json:"steps"`
	Seed      uint64    `json:"seed"`
	ParentID  string    `json:"parent_id,omitempty"` // run this one continued from
	CreatedAt time.Time `json:"created_at"`

	// AcceptanceRate and FinalObjective are nil when unknown or non-finite.
	AcceptanceRate *float64 `json:"acceptance_rate,omitempty"`
	FinalObjective *float64 `json:"final_objective,omitempty"`

	// Config is a free-form snapshot of the settings used, typically YAML.
	Config string `json:"config,omitempty"`
}

// RunStore persists runs.
type RunStore interface {
	// SaveRun stores rec together with the trajectory and final state and
	// returns the assigned run ID. rec.ID is ignored.
	SaveRun(ctx context.Context, rec RunRecord, tr *sampler.Trajectory, final *sampler.State) (string, error)
	// ListRuns returns the most recent runs first. limit <= 0 returns all.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	GetRun(ctx context.Context, id string) (RunRecord, error)
	// LoadState returns the final state of a run for continuation.
	LoadState(ctx context.Context, id string) (*sampler.State, error)
	// LoadTheta returns the chain positions recorded for a run, one row
	// per step, or the proposals when positions were not recorded.
	LoadTheta(ctx context.Context, id string) (*mat.Dense, error)
	Close() error
}
