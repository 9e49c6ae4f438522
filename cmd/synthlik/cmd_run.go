package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/nvandessel/synthlik/internal/config"
	"github.com/nvandessel/synthlik/internal/export"
	"github.com/nvandessel/synthlik/internal/logging"
	"github.com/nvandessel/synthlik/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a sampler on a simulation-based likelihood",
		Long: `Run a sampler on the local likelihood, local posterior or synthetic
likelihood of a built-in simulator and store the chain.

Flags override the config file. With --resume the chain continues from
the final state of a stored run, keeping its step counter.

Examples:
  synthlik run --model gaussian --sampler rula --steps 2000
  synthlik run --model ricker --objective local_posterior --sampler ula --step-size 0.01
  synthlik run --resume 3f2a9c01d4e5b678 --steps 1000 --arrow chain.arrow`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, cfg); err != nil {
				return err
			}
			resume, _ := cmd.Flags().GetString("resume")
			burnIn, _ := cmd.Flags().GetInt("burn-in")

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			logger := newLogger(cmd, cfg.Logging.Level)
			dir, err := storageDir(cfg)
			if err != nil {
				return err
			}
			runStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer runStore.Close()

			trace := logging.NewTraceLogger(dir, cfg.Logging.Level)
			defer trace.Close()

			if cfg.Metrics.Addr != "" {
				stop := serveMetrics(cfg.Metrics.Addr, logger)
				defer stop()
			}

			res, err := pipeline.Execute(ctx, runStore, pipeline.RunRequest{
				Config: cfg,
				Resume: resume,
				Logger: logger,
				Trace:  trace,
			})
			if err != nil {
				return err
			}

			if cfg.Storage.ArrowPath != "" {
				if err := export.WriteArrowFile(cfg.Storage.ArrowPath, res.Trajectory); err != nil {
					return fmt.Errorf("failed to export trajectory: %w", err)
				}
				logger.Info("trajectory exported", "path", cfg.Storage.ArrowPath)
			}

			sum := pipeline.Summarize(res.Trajectory, res.Final, burnIn)
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"run_id":    res.RunID,
					"parent_id": resume,
					"summary":   sum,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s (%s, %s, %s)\n", res.RunID, res.Pipeline.Model.Name, res.Config.Objective.Kind, res.Config.Sampler.Kind)
			if resume != "" {
				fmt.Fprintf(out, "  continued from:  %s\n", resume)
			}
			fmt.Fprintf(out, "  steps:           %d\n", sum.Steps)
			if sum.AcceptanceRate != nil {
				fmt.Fprintf(out, "  acceptance rate: %.3f\n", *sum.AcceptanceRate)
			}
			fmt.Fprintf(out, "  mean:            %s\n", formatVec(sum.Mean))
			fmt.Fprintf(out, "  std dev:         %s\n", formatVec(sum.StdDev))
			fmt.Fprintf(out, "  final:           %s\n", formatVec(sum.Final))
			if sum.FinalObjective != nil {
				fmt.Fprintf(out, "  final objective: %.6g\n", *sum.FinalObjective)
			}
			return nil
		},
	}

	cmd.Flags().String("model", "", "Built-in model (gaussian, ricker)")
	cmd.Flags().String("objective", "", "Objective: local_likelihood, local_posterior or synthetic_likelihood")
	cmd.Flags().String("sampler", "", "Sampler: rwm, ula or rula")
	cmd.Flags().Float64Slice("step-size", nil, "Step size, scalar or one per dimension")
	cmd.Flags().Int("steps", 0, "Number of sampler iterations")
	cmd.Flags().Int("nsim", 0, "Simulations per objective evaluation")
	cmd.Flags().Float64Slice("start", nil, "Initial parameter vector")
	cmd.Flags().Float64Slice("observed", nil, "Observed summary vector (default: one simulation at the model truth)")
	cmd.Flags().Uint64("seed", 0, "Random seed")
	cmd.Flags().String("collect", "", "Comma-separated trajectory fields to record")
	cmd.Flags().Bool("sequential", false, "Run simulations on a single goroutine")
	cmd.Flags().String("resume", "", "Continue from the final state of a stored run")
	cmd.Flags().Int("burn-in", 0, "Steps excluded from the printed summary")
	cmd.Flags().String("arrow", "", "Write the trajectory to this Arrow IPC file")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	cmd.Flags().String("log-level", "", "Log level: info, debug or trace")

	return cmd
}

// applyRunFlags copies explicitly set flags into cfg and validates it.
func applyRunFlags(cmd *cobra.Command, cfg *config.SynthlikConfig) error {
	applyModelFlags(cmd, cfg)
	flags := cmd.Flags()
	if flags.Changed("sampler") {
		cfg.Sampler.Kind, _ = flags.GetString("sampler")
	}
	if flags.Changed("step-size") {
		cfg.Sampler.StepSize, _ = flags.GetFloat64Slice("step-size")
	}
	if flags.Changed("steps") {
		cfg.Sampler.NSteps, _ = flags.GetInt("steps")
	}
	if flags.Changed("start") {
		cfg.Sampler.Start, _ = flags.GetFloat64Slice("start")
	}
	if flags.Changed("collect") {
		cfg.Sampler.Collect, _ = flags.GetString("collect")
	}
	if flags.Changed("arrow") {
		cfg.Storage.ArrowPath, _ = flags.GetString("arrow")
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if seq, _ := flags.GetBool("sequential"); seq {
		cfg.Objective.Parallel = false
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyModelFlags copies the flags shared by run and likelihood into cfg.
func applyModelFlags(cmd *cobra.Command, cfg *config.SynthlikConfig) {
	flags := cmd.Flags()
	if flags.Changed("model") {
		cfg.Model.Name, _ = flags.GetString("model")
		cfg.Model.Truth = nil
	}
	if flags.Changed("objective") {
		cfg.Objective.Kind, _ = flags.GetString("objective")
	}
	if flags.Changed("nsim") {
		cfg.Objective.NSim, _ = flags.GetInt("nsim")
	}
	if flags.Changed("observed") {
		cfg.Model.Observed, _ = flags.GetFloat64Slice("observed")
	}
	if flags.Changed("seed") {
		cfg.Sampler.Seed, _ = flags.GetUint64("seed")
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// serveMetrics starts a Prometheus /metrics listener and returns a
// function that shuts it down.
func serveMetrics(addr string, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics listener stopped", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func formatVec(x []float64) string {
	if len(x) == 0 {
		return "(none)"
	}
	s := "["
	for i, v := range x {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%.4g", v)
	}
	return s + "]"
}
