// Package mcp exposes presence control over the Model Context Protocol, so
// the assistant itself can set, inspect, and release its displayed status
// through tool calls.
package mcp

import (
	"context"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/kehai/internal/arbiter"
	"github.com/ashita-ai/kehai/internal/preset"
	"github.com/ashita-ai/kehai/internal/schedule"
)

// Authorizer gates the mutating tools. A false return rejects the call as a
// normal tool error without touching any arbitration layer.
type Authorizer interface {
	Authorize(ctx context.Context) bool
}

// Server wraps the MCP server around the arbitration core.
type Server struct {
	mcpServer *mcpserver.MCPServer
	arb       *arbiter.Arbiter
	engine    *schedule.Engine
	presets   *preset.Set
	auth      Authorizer // nil accepts everything
	logger    *slog.Logger
}

// New creates and configures the MCP server with all tools and resources.
func New(arb *arbiter.Arbiter, engine *schedule.Engine, presets *preset.Set, auth Authorizer, version string, logger *slog.Logger) *Server {
	s := &Server{
		arb:     arb,
		engine:  engine,
		presets: presets,
		auth:    auth,
		logger:  logger.With("component", "mcp"),
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"kehai",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) authorized(ctx context.Context) bool {
	return s.auth == nil || s.auth.Authorize(ctx)
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		IsError: true,
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
	}
}
