package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/kehai/internal/status"
)

func (s *Server) registerTools() {
	// kehai_set_status: place an override on the presence arbiter.
	s.mcpServer.AddTool(
		mcplib.NewTool("kehai_set_status",
			mcplib.WithDescription(`Set your displayed online status.

Two modes, pick exactly one:
- preset: name one of the configured presets (see kehai_get_status for the list)
- text: free-form custom text (at most 8 display characters), optionally with
  an icon name and a silent flag

The override outranks the daily schedule until its duration elapses, then the
schedule takes back over automatically.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("preset",
				mcplib.Description("Name of a configured preset. Mutually exclusive with text."),
			),
			mcplib.WithString("text",
				mcplib.Description("Custom status text, truncated to 8 display characters. Mutually exclusive with preset."),
			),
			mcplib.WithString("icon",
				mcplib.Description("Icon name for a custom status. Unknown names use the default icon."),
			),
			mcplib.WithBoolean("silent",
				mcplib.Description("Suppress the wake-up reaction to incoming messages while this status is active."),
			),
			mcplib.WithNumber("duration_seconds",
				mcplib.Description("How long the override holds before the schedule resumes."),
				mcplib.Min(1),
				mcplib.Max(2700),
				mcplib.DefaultNumber(2700),
			),
		),
		s.handleSetStatus,
	)

	// kehai_clear_override: hand control back to the schedule.
	s.mcpServer.AddTool(
		mcplib.NewTool("kehai_clear_override",
			mcplib.WithDescription("Clear any active status override and return control to the daily schedule."),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(true),
		),
		s.handleClearOverride,
	)

	// kehai_get_status: inspect the arbitration state.
	s.mcpServer.AddTool(
		mcplib.NewTool("kehai_get_status",
			mcplib.WithDescription(`Inspect the current presence state: the active value, all three
arbitration layers (interaction, override, schedule), the last value the
backend confirmed, and the names of the available presets.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
		),
		s.handleGetStatus,
	)
}

func (s *Server) handleSetStatus(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if !s.authorized(ctx) {
		return errorResult("override request rejected"), nil
	}

	presetName := strings.TrimSpace(request.GetString("preset", ""))
	text := request.GetString("text", "")
	duration := time.Duration(request.GetInt("duration_seconds", int(status.OverrideTTL.Seconds()))) * time.Second

	var target status.Status
	switch {
	case presetName != "" && text != "":
		return errorResult("preset and text are mutually exclusive"), nil
	case presetName != "":
		p, ok := s.presets.Lookup(presetName)
		if !ok {
			return errorResult(fmt.Sprintf("unknown preset %q; call kehai_get_status for the available names", presetName)), nil
		}
		target = status.FromPreset(p, status.OriginOverride)
	case text != "":
		iconID := status.DefaultIconID
		if id, ok := s.presets.IconID(request.GetString("icon", "")); ok {
			iconID = id
		}
		target = status.NewCustom(text, iconID, status.OriginOverride).
			WithSilent(request.GetBool("silent", false))
	default:
		return errorResult("either preset or text is required"), nil
	}

	target = target.WithTTL(duration)
	s.arb.OnOverrideRequest(ctx, target)
	s.logger.Info("override set via tool call", "status", target.String(), "ttl", duration)

	return textResult(map[string]any{
		"applied":          target,
		"duration_seconds": int(duration.Seconds()),
	}), nil
}

func (s *Server) handleClearOverride(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if !s.authorized(ctx) {
		return errorResult("override request rejected"), nil
	}

	s.arb.OnOverrideClear(ctx)
	return textResult(map[string]any{
		"cleared": true,
		"active":  s.arb.ComputeActive(),
	}), nil
}

func (s *Server) handleGetStatus(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	return textResult(map[string]any{
		"active":  s.arb.ComputeActive(),
		"layers":  s.arb.Snapshot(),
		"presets": s.presets.Names(),
		"icons":   s.presets.IconNames(),
	}), nil
}

func textResult(v any) *mcplib.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}
