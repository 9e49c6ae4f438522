package main

import (
	"fmt"
	"math"

	"github.com/nvandessel/synthlik/internal/objective"
	"github.com/nvandessel/synthlik/internal/pipeline"
	"github.com/spf13/cobra"
)

func newLikelihoodCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "likelihood",
		Short: "Evaluate the objective at a parameter vector",
		Long: `Estimate the negative log-likelihood (or log-posterior) of a built-in
simulator at --theta, optionally with its gradient and Hessian.

Examples:
  synthlik likelihood --theta 1,1
  synthlik likelihood --model ricker --theta 3.8,-1.2,2.3 --gradient --hessian --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			theta, _ := cmd.Flags().GetFloat64Slice("theta")
			if len(theta) == 0 {
				return fmt.Errorf("--theta is required")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applyModelFlags(cmd, cfg)
			cfg.Sampler.Start = theta

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			p, err := pipeline.Build(ctx, cfg)
			if err != nil {
				return err
			}

			wantGrad, _ := cmd.Flags().GetBool("gradient")
			wantHess, _ := cmd.Flags().GetBool("hessian")
			res, err := p.Objective.Evaluate(ctx, theta, objective.Want{Gradient: wantGrad, Hessian: wantHess})
			if err != nil {
				return fmt.Errorf("evaluating objective: %w", err)
			}

			var hess [][]float64
			if res.HasHessian {
				n := res.Hessian.SymmetricDim()
				hess = make([][]float64, n)
				for i := range hess {
					hess[i] = make([]float64, n)
					for j := range hess[i] {
						hess[i][j] = res.Hessian.At(i, j)
					}
				}
			}
			finite := !math.IsNaN(res.Objective) && !math.IsInf(res.Objective, 0)

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				out := map[string]any{
					"theta":    theta,
					"observed": p.Observed,
					"finite":   finite,
				}
				if finite {
					out["objective"] = res.Objective
				}
				if res.HasGradient {
					out["gradient"] = res.Gradient
				}
				if hess != nil {
					out["hessian"] = hess
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s at %s\n", cfg.Objective.Kind, formatVec(theta))
			fmt.Fprintf(w, "  observed:  %s\n", formatVec(p.Observed))
			fmt.Fprintf(w, "  objective: %.6g\n", res.Objective)
			if res.HasGradient {
				fmt.Fprintf(w, "  gradient:  %s\n", formatVec(res.Gradient))
			}
			for i, row := range hess {
				label := "  hessian:   "
				if i > 0 {
					label = "             "
				}
				fmt.Fprintf(w, "%s%s\n", label, formatVec(row))
			}
			return nil
		},
	}

	cmd.Flags().Float64Slice("theta", nil, "Parameter vector to evaluate at (required)")
	cmd.Flags().String("model", "", "Built-in model (gaussian, ricker)")
	cmd.Flags().String("objective", "", "Objective: local_likelihood, local_posterior or synthetic_likelihood")
	cmd.Flags().Int("nsim", 0, "Simulations per evaluation")
	cmd.Flags().Float64Slice("observed", nil, "Observed summary vector")
	cmd.Flags().Uint64("seed", 0, "Random seed")
	cmd.Flags().Bool("gradient", false, "Also estimate the gradient")
	cmd.Flags().Bool("hessian", false, "Also estimate the Hessian")

	return cmd
}
