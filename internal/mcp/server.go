// Package mcp exposes briefship over the Model Context Protocol so an agent
// can inspect the bot's instance, read deploy history and ship changes.
package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gorewood/briefship/internal/ship"
)

// NewServer creates an MCP server with every briefship tool registered.
func NewServer(version string, svc *ship.Service) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "briefship",
		Version: version,
	}, nil)
	registerTools(server, svc)
	return server
}

func boolPtr(b bool) *bool {
	return &b
}

// readOnlyAnnotations marks tools that only query AWS or local history.
func readOnlyAnnotations() *mcp.ToolAnnotations {
	return &mcp.ToolAnnotations{
		ReadOnlyHint:   true,
		IdempotentHint: true,
		OpenWorldHint:  boolPtr(true),
	}
}

// deployAnnotations marks the deploy tool: it pushes commits and replaces
// running containers.
func deployAnnotations() *mcp.ToolAnnotations {
	return &mcp.ToolAnnotations{
		DestructiveHint: boolPtr(true),
		OpenWorldHint:   boolPtr(true),
	}
}

func registerTools(server *mcp.Server, svc *ship.Service) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "status",
		Description: "Show the bot instance's EC2 state, SSM agent status and the most recent recorded deploy.",
		Annotations: readOnlyAnnotations(),
	}, handleStatus(svc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "history",
		Description: "List recorded deploys, newest first. Filter with last=N, failed=true or branch.",
		Annotations: readOnlyAnnotations(),
	}, handleHistory(svc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "show",
		Description: "Show one deploy record by ID, or the most recent one when no ID is given, including step timings and remote output.",
		Annotations: readOnlyAnnotations(),
	}, handleShow(svc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "logs",
		Description: "Fetch the last N lines of the bot's docker compose logs from the instance.",
		Annotations: readOnlyAnnotations(),
	}, handleLogs(svc))

	mcp.AddTool(server, &mcp.Tool{
		Name: "deploy",
		Description: "Push the current branch and rebuild the bot's containers on the instance. " +
			"Refuses a dirty working tree or an unreachable instance. Use dry_run=true to preview the remote script.",
		Annotations: deployAnnotations(),
	}, handleDeploy(svc))
}
