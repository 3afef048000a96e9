package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/verstree/pkg/mcp"
	"github.com/Sumatoshi-tech/verstree/pkg/observability"
	"github.com/Sumatoshi-tech/verstree/pkg/version"
)

func mcpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The server exposes read-only tools over saved version logs:
  - verstree_log: checkpoints and the versions each one created
  - verstree_versions: every committed version of one node
  - verstree_diff: unified diff between two versions

Tool calls that omit the log location use the configured history.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.cfg.Logging.Format = "json"

			providers, shutdown, err := a.telemetry(observability.ModeMCP)
			if err != nil {
				return err
			}
			defer shutdown()

			red, err := observability.NewREDMetrics(providers.Meter)
			if err != nil {
				return err
			}

			dir, err := filepath.Abs(a.cfg.History.Dir)
			if err != nil {
				return fmt.Errorf("resolve history directory: %w", err)
			}

			srv := mcp.NewServer(mcp.ServerDeps{
				Logger:  providers.Logger,
				Metrics: red,
				Tracer:  providers.Tracer,
				Defaults: mcp.LogInput{
					Dir:      dir,
					Basename: a.cfg.History.Basename,
					Codec:    a.cfg.History.Codec,
				},
				Version: version.Version,
			})

			return srv.Run(cmd.Context())
		},
	}
}
