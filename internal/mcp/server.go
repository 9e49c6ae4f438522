// Package mcp provides an MCP (Model Context Protocol) server exposing
// likelihood evaluation and sampler runs as tools.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/synthlik/internal/config"
	"github.com/nvandessel/synthlik/internal/logging"
	"github.com/nvandessel/synthlik/internal/ratelimit"
	"github.com/nvandessel/synthlik/internal/store"
)

// Server wraps the MCP SDK server and the run store.
type Server struct {
	server       *sdk.Server
	store        store.RunStore
	base         *config.SynthlikConfig
	dir          string
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	logger       *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "synthlik")
	Version string // Server version
	// Dir is the storage directory holding synthlik.db and audit.jsonl.
	Dir string
	// Base supplies defaults for every tool call. Nil uses config.Default().
	Base   *config.SynthlikConfig
	Logger *slog.Logger
}

// NewServer creates a new MCP server with synthlik tools.
func NewServer(cfg *Config) (*Server, error) {
	runStore, err := store.NewSQLiteRunStore(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}

	base := cfg.Base
	if base == nil {
		base = config.Default()
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server:       mcpServer,
		store:        runStore,
		base:         base,
		dir:          cfg.Dir,
		toolLimiters: ratelimit.NewToolLimiters(),
		auditLogger:  NewAuditLogger(cfg.Dir),
		logger:       logging.OrDiscard(cfg.Logger),
	}

	s.registerTools()

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.logger.Info("mcp server started", "tools", len(s.toolLimiters))
	err := s.server.Run(ctx, &sdk.StdioTransport{})

	s.Close()
	return err
}

// Close closes the store and the audit log.
func (s *Server) Close() error {
	s.auditLogger.Close()
	return s.store.Close()
}
