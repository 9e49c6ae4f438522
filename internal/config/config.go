// Package config provides unified configuration loading for synthlik.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nvandessel/synthlik/internal/constants"
	"github.com/nvandessel/synthlik/internal/regularize"
	"gopkg.in/yaml.v3"
)

// Objective kinds.
const (
	ObjectiveLocalLikelihood     = "local_likelihood"
	ObjectiveLocalPosterior      = "local_posterior"
	ObjectiveSyntheticLikelihood = "synthetic_likelihood"
)

// Prior kinds.
const (
	PriorNormal  = "normal"
	PriorUniform = "uniform"
)

// SynthlikConfig contains all synthlik configuration settings.
type SynthlikConfig struct {
	// Model selects the simulator and the observed data.
	Model ModelConfig `json:"model" yaml:"model"`

	// Objective selects how the log-likelihood surface is estimated.
	Objective ObjectiveConfig `json:"objective" yaml:"objective"`

	// Prior is only used by the local_posterior objective.
	Prior PriorConfig `json:"prior" yaml:"prior"`

	Sampler SamplerConfig `json:"sampler" yaml:"sampler"`

	// Regularizer is applied to estimated covariances and, for rula, to
	// the Hessian before it is inverted into a metric.
	Regularizer regularize.Config `json:"regularizer" yaml:"regularizer"`

	Logging LoggingConfig `json:"logging" yaml:"logging"`

	Storage StorageConfig `json:"storage" yaml:"storage"`

	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// ModelConfig names a built-in simulator.
type ModelConfig struct {
	// Name is a registered model: "gaussian" or "ricker".
	Name string `json:"name" yaml:"name"`

	// Noise is the gaussian model's observation standard deviation.
	Noise float64 `json:"noise" yaml:"noise"`

	// Truth is the parameter used to simulate observed data when Observed
	// is empty. Empty uses the model's built-in truth.
	Truth []float64 `json:"truth,omitempty" yaml:"truth,omitempty"`

	// Observed is the observed summary vector. Empty means simulate it
	// once at Truth.
	Observed []float64 `json:"observed,omitempty" yaml:"observed,omitempty"`

	// Seed drives the simulation of observed data.
	Seed uint64 `json:"seed" yaml:"seed"`
}

// ObjectiveConfig configures the likelihood estimator.
type ObjectiveConfig struct {
	// Kind is "local_likelihood", "local_posterior" or "synthetic_likelihood".
	Kind string `json:"kind" yaml:"kind"`

	// NSim is the number of simulations per evaluation.
	NSim int `json:"n_sim" yaml:"n_sim"`

	// PerturbationVariance is the per-dimension variance of the local
	// regression perturbation kernel.
	PerturbationVariance float64 `json:"perturbation_variance" yaml:"perturbation_variance"`

	// Parallel fans simulations out over Workers goroutines (0 = GOMAXPROCS).
	Parallel bool `json:"parallel" yaml:"parallel"`
	Workers  int  `json:"workers,omitempty" yaml:"workers,omitempty"`

	// OutlierIQR drops simulations further than this many IQRs from the
	// median in any summary. Zero disables.
	OutlierIQR float64 `json:"outlier_iqr" yaml:"outlier_iqr"`
}

// PriorConfig describes a prior distribution.
type PriorConfig struct {
	// Kind is "normal" or "uniform".
	Kind string `json:"kind" yaml:"kind"`

	// Mean and Variance parameterize a normal prior with diagonal
	// covariance. A single variance is broadcast.
	Mean     []float64 `json:"mean,omitempty" yaml:"mean,omitempty"`
	Variance []float64 `json:"variance,omitempty" yaml:"variance,omitempty"`

	// Low and High bound a uniform prior.
	Low  []float64 `json:"low,omitempty" yaml:"low,omitempty"`
	High []float64 `json:"high,omitempty" yaml:"high,omitempty"`
}

// SamplerConfig configures the sampler and the driver loop.
type SamplerConfig struct {
	// Kind is "rwm", "ula" or "rula".
	Kind string `json:"kind" yaml:"kind"`

	// StepSize is a scalar or one value per dimension (rula: scalar only).
	StepSize []float64 `json:"step_size" yaml:"step_size"`

	NSteps      int `json:"n_steps" yaml:"n_steps"`
	MaxHalvings int `json:"max_halvings" yaml:"max_halvings"`

	// Collect lists recorded fields, e.g. "theta,objective,accepted".
	Collect string `json:"collect" yaml:"collect"`

	// Start is the initial parameter. Empty starts at the origin.
	Start []float64 `json:"start,omitempty" yaml:"start,omitempty"`

	// Seed drives both proposals and simulations.
	Seed uint64 `json:"seed" yaml:"seed"`
}

// LoggingConfig configures synthlik's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "trace", "debug", "info" (default),
	// "warn" or "error".
	// "debug" enables the per-iteration trace in <storage.dir>/iterations.jsonl.
	// "trace" additionally logs every iteration to stderr.
	Level string `json:"level" yaml:"level"`
}

// StorageConfig configures run persistence.
type StorageConfig struct {
	// Dir holds synthlik.db and the iteration trace. Empty uses ~/.synthlik.
	Dir string `json:"dir" yaml:"dir"`

	// ArrowPath, when set, receives an Arrow IPC copy of each trajectory.
	ArrowPath string `json:"arrow_path,omitempty" yaml:"arrow_path,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics, e.g. ":9090". Empty disables.
	Addr string `json:"addr" yaml:"addr"`
}

// Default returns a SynthlikConfig with sensible defaults.
func Default() *SynthlikConfig {
	return &SynthlikConfig{
		Model: ModelConfig{
			Name:  "gaussian",
			Noise: 0.1,
			Seed:  1,
		},
		Objective: ObjectiveConfig{
			Kind:                 ObjectiveLocalLikelihood,
			NSim:                 constants.DefaultNSim,
			PerturbationVariance: constants.DefaultPerturbationVariance,
			Parallel:             true,
			OutlierIQR:           constants.DefaultOutlierIQR,
		},
		Prior: PriorConfig{
			Kind:     PriorNormal,
			Variance: []float64{100},
		},
		Sampler: SamplerConfig{
			Kind:        "rula",
			StepSize:    []float64{constants.DefaultStepSize},
			NSteps:      constants.DefaultNSteps,
			MaxHalvings: constants.DefaultMaxHalvings,
			Collect:     "theta,current,objective,accepted",
			Seed:        1,
		},
		Regularizer: regularize.DefaultConfig(),
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns ~/.synthlik/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".synthlik", "config.yaml"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.synthlik/config.yaml -> environment variables
func Load() (*SynthlikConfig, error) {
	config := Default()

	if configPath, err := DefaultPath(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
// Unset keys keep their defaults.
func LoadFromFile(path string) (*SynthlikConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Storage.Dir = expandEnvVars(config.Storage.Dir)
	config.Storage.ArrowPath = expandEnvVars(config.Storage.ArrowPath)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *SynthlikConfig) Validate() error {
	if c.Model.Name == "" {
		return fmt.Errorf("model.name is required")
	}
	if c.Model.Noise < 0 {
		return fmt.Errorf("model.noise must be non-negative, got %g", c.Model.Noise)
	}

	validObjectives := map[string]bool{
		ObjectiveLocalLikelihood:     true,
		ObjectiveLocalPosterior:      true,
		ObjectiveSyntheticLikelihood: true,
	}
	if !validObjectives[c.Objective.Kind] {
		return fmt.Errorf("invalid objective: %s (valid: local_likelihood, local_posterior, synthetic_likelihood)", c.Objective.Kind)
	}
	if c.Objective.NSim < 2 {
		return fmt.Errorf("objective.n_sim must be at least 2, got %d", c.Objective.NSim)
	}
	if c.Objective.PerturbationVariance <= 0 {
		return fmt.Errorf("objective.perturbation_variance must be positive, got %g", c.Objective.PerturbationVariance)
	}
	if c.Objective.Workers < 0 {
		return fmt.Errorf("objective.workers must be non-negative, got %d", c.Objective.Workers)
	}

	if c.Objective.Kind == ObjectiveLocalPosterior {
		switch c.Prior.Kind {
		case PriorNormal:
			if len(c.Prior.Variance) == 0 {
				return fmt.Errorf("prior.variance is required for a normal prior")
			}
			for _, v := range c.Prior.Variance {
				if v <= 0 {
					return fmt.Errorf("prior.variance must be positive, got %g", v)
				}
			}
		case PriorUniform:
			if len(c.Prior.Low) == 0 || len(c.Prior.Low) != len(c.Prior.High) {
				return fmt.Errorf("prior.low and prior.high must be set with equal lengths")
			}
			for i := range c.Prior.Low {
				if c.Prior.Low[i] >= c.Prior.High[i] {
					return fmt.Errorf("prior.low[%d] must be below prior.high[%d]", i, i)
				}
			}
		default:
			return fmt.Errorf("invalid prior: %s (valid: normal, uniform)", c.Prior.Kind)
		}
	}

	validSamplers := map[string]bool{"rwm": true, "ula": true, "rula": true}
	if !validSamplers[c.Sampler.Kind] {
		return fmt.Errorf("invalid sampler: %s (valid: rwm, ula, rula)", c.Sampler.Kind)
	}
	if len(c.Sampler.StepSize) == 0 {
		return fmt.Errorf("sampler.step_size is required")
	}
	for _, s := range c.Sampler.StepSize {
		if s <= 0 {
			return fmt.Errorf("sampler.step_size must be positive, got %g", s)
		}
	}
	if c.Sampler.Kind == "rula" && len(c.Sampler.StepSize) != 1 {
		return fmt.Errorf("sampler.step_size must be a single value for rula")
	}
	if c.Sampler.NSteps < 0 {
		return fmt.Errorf("sampler.n_steps must be non-negative, got %d", c.Sampler.NSteps)
	}
	if c.Sampler.MaxHalvings < 0 {
		return fmt.Errorf("sampler.max_halvings must be non-negative, got %d", c.Sampler.MaxHalvings)
	}

	if err := c.Regularizer.Validate(); err != nil {
		return fmt.Errorf("regularizer: %w", err)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true, "warn": true, "error": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: trace, debug, info, warn, error, or empty for default)", c.Logging.Level)
	}

	return nil
}

// Flatten returns every setting keyed by its dotted YAML path, e.g.
// "sampler.kind". Lists are rendered as comma-separated values.
func (c *SynthlikConfig) Flatten() (map[string]string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	flatten("", tree, out)
	return out, nil
}

// Get returns the setting at a dotted key.
func (c *SynthlikConfig) Get(key string) (string, bool) {
	flat, err := c.Flatten()
	if err != nil {
		return "", false
	}
	v, ok := flat[key]
	return v, ok
}

// Keys returns all setting keys in sorted order.
func Keys(flat map[string]string) []string {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func flatten(prefix string, v any, out map[string]string) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, child, out)
		}
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = fmt.Sprint(e)
		}
		out[prefix] = strings.Join(parts, ",")
	default:
		out[prefix] = fmt.Sprint(t)
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *SynthlikConfig) {
	if v := os.Getenv("SYNTHLIK_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("SYNTHLIK_N_SIM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Objective.NSim = n
		}
	}

	if v := os.Getenv("SYNTHLIK_N_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Sampler.NSteps = n
		}
	}

	if v := os.Getenv("SYNTHLIK_SAMPLER"); v != "" {
		config.Sampler.Kind = strings.ToLower(v)
	}

	if v := os.Getenv("SYNTHLIK_PARALLEL"); v != "" {
		config.Objective.Parallel = v == "true" || v == "1"
	}

	if v := os.Getenv("SYNTHLIK_STORAGE_DIR"); v != "" {
		config.Storage.Dir = v
	}

	if v := os.Getenv("SYNTHLIK_METRICS_ADDR"); v != "" {
		config.Metrics.Addr = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
