package main

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	briefshipmcp "github.com/gorewood/briefship/internal/mcp"
)

// newServeCmd creates the serve command for running as an MCP server.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run as MCP server (stdio transport)",
		Long: `Run briefship as a Model Context Protocol (MCP) server over stdio.

This lets an agent check the bot's instance, read deploy history, fetch logs
and run deploys. Logs go to stderr; stdout carries the protocol.

Configure in your agent's MCP settings:
  {
    "mcpServers": {
      "briefship": {
        "command": "briefship",
        "args": ["serve"]
      }
    }
  }

Available tools: status, history, show, logs, deploy`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := newService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()
			server := briefshipmcp.NewServer(buildVersion(), svc)
			return server.Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
}
