package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerResources() {
	// kehai://status/current: the active presence value and all layers.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"kehai://status/current",
			"Current Status",
			mcplib.WithResourceDescription("The active presence value and the state of all arbitration layers"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleStatusCurrent,
	)

	// kehai://schedule/today: today's resolved slot list.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"kehai://schedule/today",
			"Today's Schedule",
			mcplib.WithResourceDescription("The cached daily schedule the presence engine is following"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleScheduleToday,
	)
}

func (s *Server) handleStatusCurrent(_ context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(map[string]any{
		"active": s.arb.ComputeActive(),
		"layers": s.arb.Snapshot(),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal status: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleScheduleToday(_ context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(s.engine.Today(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal schedule: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
