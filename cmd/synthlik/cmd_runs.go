package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/nvandessel/synthlik/internal/visualization"
	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		Long: `List stored sampler runs, most recent first.

Examples:
  synthlik runs
  synthlik runs --limit 5 --json
  synthlik runs show 3f2a9c01d4e5b678
  synthlik runs graph | dot -Tsvg > lineage.svg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer runStore.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := runStore.ListRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"runs":  runs,
					"count": len(runs),
				})
			}

			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs stored.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tMODEL\tOBJECTIVE\tSAMPLER\tSTEPS\tACCEPT\tPARENT\tCREATED")
			for _, r := range runs {
				accept := "-"
				if r.AcceptanceRate != nil {
					accept = fmt.Sprintf("%.3f", *r.AcceptanceRate)
				}
				parent := r.ParentID
				if parent == "" {
					parent = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
					r.ID, r.Model, r.Objective, r.Sampler, r.Steps, accept, parent,
					r.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum number of runs (0 for all)")
	cmd.AddCommand(newRunsShowCmd(), newRunsGraphCmd())
	return cmd
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a stored run and its final state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer runStore.Close()

			rec, err := runStore.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			state, err := runStore.LoadState(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"run":     rec,
					"final":   state.Theta,
					"counter": state.Counter,
				})
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Run %s\n", rec.ID)
			fmt.Fprintf(w, "  model:     %s\n", rec.Model)
			fmt.Fprintf(w, "  objective: %s\n", rec.Objective)
			fmt.Fprintf(w, "  sampler:   %s\n", rec.Sampler)
			fmt.Fprintf(w, "  dim:       %d\n", rec.Dim)
			fmt.Fprintf(w, "  steps:     %d (counter %d)\n", rec.Steps, state.Counter)
			fmt.Fprintf(w, "  seed:      %d\n", rec.Seed)
			if rec.ParentID != "" {
				fmt.Fprintf(w, "  parent:    %s\n", rec.ParentID)
			}
			fmt.Fprintf(w, "  final:     %s\n", formatVec(state.Theta))
			fmt.Fprintf(w, "  created:   %s\n", rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			if rec.Config != "" {
				fmt.Fprintln(w)
				fmt.Fprint(w, rec.Config)
			}
			return nil
		},
	}
}


func newRunsGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the continuation lineage of stored runs",
		Long: `Render every stored run as a node, with an edge from each run to the
runs that resumed it. DOT output can be piped to Graphviz.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer runStore.Close()

			format, _ := cmd.Flags().GetString("format")
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				format = string(visualization.FormatJSON)
			}
			out, err := visualization.Render(cmd.Context(), runStore, visualization.Format(format))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().String("format", "dot", "Output format: dot or json")
	return cmd
}
