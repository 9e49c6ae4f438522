package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/nvandessel/synthlik/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show synthlik configuration",
		Long: `Show the effective synthlik configuration.

Configuration is read from ~/.synthlik/config.yaml (or --config), with
SYNTHLIK_* environment overrides applied on top of the defaults.

Examples:
  synthlik config list                  # Show all settings
  synthlik config get sampler.kind      # Get a specific setting
  synthlik config get objective.n_sim --json`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
	)

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), cfg)
			}

			flat, err := cfg.Flatten()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, key := range config.Keys(flat) {
				fmt.Fprintf(tw, "%s:\t%s\n", key, valueOrDefault(flat[key], "(not set)"))
			}
			return tw.Flush()
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			value, found := cfg.Get(key)
			if !found {
				if jsonOut {
					return writeJSON(cmd.OutOrStdout(), map[string]any{
						"error": "key not found",
						"key":   key,
					})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Unknown configuration key: %s\n", key)
				return nil
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"key":   key,
					"value": value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
			return nil
		},
	}
}

func valueOrDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
