package main

import (
	"github.com/nvandessel/synthlik/internal/mcp"
	"github.com/spf13/cobra"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Run the MCP tool server over stdio",
		Long: `Serve synthlik_likelihood, synthlik_run and synthlik_runs as Model
Context Protocol tools over stdin/stdout.

The loaded configuration supplies defaults for every tool call. Runs are
stored in the configured storage directory, next to audit.jsonl.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			dir, err := storageDir(cfg)
			if err != nil {
				return err
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:    "synthlik",
				Version: version,
				Dir:     dir,
				Base:    cfg,
				Logger:  newLogger(cmd, cfg.Logging.Level),
			})
			if err != nil {
				return err
			}
			return server.Run(cmd.Context())
		},
	}
}
