package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/nvandessel/synthlik/internal/config"
	"github.com/nvandessel/synthlik/internal/logging"
	"github.com/nvandessel/synthlik/internal/store"
	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "synthlik",
		Short: "Simulation-based likelihood estimation and gradient samplers",
		Long: `synthlik estimates the likelihood surface of a stochastic simulator
from local regressions on simulated summaries, and samples it with
random-walk Metropolis, Langevin or Riemannian Langevin chains.

Runs are stored in ~/.synthlik/synthlik.db and can be continued with
--resume or exported to Arrow IPC files.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.synthlik/config.yaml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newLikelihoodCmd(),
		newRunsCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"version": version})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "synthlik version %s\n", version)
			}
		},
	}
}

// loadConfig reads --config when given, else ~/.synthlik/config.yaml with
// environment overrides.
func loadConfig(cmd *cobra.Command) (*config.SynthlikConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Load()
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// storageDir returns the configured storage directory or ~/.synthlik.
func storageDir(cfg *config.SynthlikConfig) (string, error) {
	if cfg.Storage.Dir != "" {
		return cfg.Storage.Dir, nil
	}
	return store.DefaultDir()
}

// openStore opens the run store for cfg.
func openStore(cfg *config.SynthlikConfig) (*store.SQLiteRunStore, error) {
	dir, err := storageDir(cfg)
	if err != nil {
		return nil, err
	}
	s, err := store.NewSQLiteRunStore(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	return s, nil
}

// newLogger returns the operational logger, writing to stderr.
func newLogger(cmd *cobra.Command, level string) *slog.Logger {
	return logging.NewLogger(level, cmd.ErrOrStderr())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
