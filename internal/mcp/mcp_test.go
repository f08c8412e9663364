package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/kehai/internal/arbiter"
	"github.com/ashita-ai/kehai/internal/preset"
	"github.com/ashita-ai/kehai/internal/schedule"
	"github.com/ashita-ai/kehai/internal/status"
)

type recordingPusher struct {
	mu     sync.Mutex
	pushes []status.Status
}

func (r *recordingPusher) Push(_ context.Context, target status.Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes = append(r.pushes, target)
	return true
}

func (r *recordingPusher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pushes)
}

func newTestServer(t *testing.T) (*Server, *recordingPusher) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	presets := preset.New(
		[]preset.Standard{{Name: "在线", MainCode: status.MainOnline}},
		[]preset.Custom{{Name: "写Bug", IconID: 75, Text: "写Bug中", Silent: false}},
		[]preset.Icon{{Name: "饥饿", IconID: 5402}},
	)

	arb := arbiter.New(arbiter.Config{Presets: presets}, logger)
	pusher := &recordingPusher{}
	arb.BindPusher(pusher)
	t.Cleanup(arb.Shutdown)

	store, err := schedule.NewStore(t.TempDir(), logger)
	require.NoError(t, err)
	engine := schedule.NewEngine(store, nil, arb, schedule.Config{Presets: presets}, logger)

	return New(arb, engine, presets, nil, "test", logger), pusher
}

type denyAll struct{}

func (denyAll) Authorize(context.Context) bool { return false }

func toolRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// parseToolText extracts the first TextContent text from a CallToolResult.
func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(mcplib.TextContent)
	require.True(t, ok, "expected TextContent")
	return tc.Text
}

func TestSetStatusWithPreset(t *testing.T) {
	srv, pusher := newTestServer(t)

	result, err := srv.handleSetStatus(context.Background(), toolRequest("kehai_set_status", map[string]any{
		"preset":           "写Bug",
		"duration_seconds": 120,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))

	assert.Equal(t, 1, pusher.count())
	active := srv.arb.ComputeActive()
	assert.Equal(t, status.OriginOverride, active.Origin)
	assert.Equal(t, "写Bug中", active.Text)
}

func TestSetStatusWithCustomText(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleSetStatus(context.Background(), toolRequest("kehai_set_status", map[string]any{
		"text":   "摸鱼",
		"icon":   "饥饿",
		"silent": true,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))

	active := srv.arb.ComputeActive()
	assert.Equal(t, status.KindCustom, active.Kind)
	assert.Equal(t, "摸鱼", active.Text)
	assert.Equal(t, 5402, active.IconID)
	assert.True(t, active.Silent)
}

func TestSetStatusValidation(t *testing.T) {
	srv, pusher := newTestServer(t)

	result, err := srv.handleSetStatus(context.Background(), toolRequest("kehai_set_status", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = srv.handleSetStatus(context.Background(), toolRequest("kehai_set_status", map[string]any{
		"preset": "在线",
		"text":   "both",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = srv.handleSetStatus(context.Background(), toolRequest("kehai_set_status", map[string]any{
		"preset": "no-such-preset",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	assert.Equal(t, 0, pusher.count(), "invalid requests must not reach the backend")
}

func TestDeniedOverrideMutatesNothing(t *testing.T) {
	srv, pusher := newTestServer(t)
	srv.auth = denyAll{}

	result, err := srv.handleSetStatus(context.Background(), toolRequest("kehai_set_status", map[string]any{
		"preset": "写Bug",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, 0, pusher.count())
	assert.Nil(t, srv.arb.Snapshot().Override)

	result, err = srv.handleClearOverride(context.Background(), toolRequest("kehai_clear_override", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	// The read-only tool stays open.
	result, err = srv.handleGetStatus(context.Background(), toolRequest("kehai_get_status", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)
}

func TestClearOverride(t *testing.T) {
	srv, _ := newTestServer(t)

	_, err := srv.handleSetStatus(context.Background(), toolRequest("kehai_set_status", map[string]any{
		"preset": "写Bug",
	}))
	require.NoError(t, err)
	require.Equal(t, status.OriginOverride, srv.arb.ComputeActive().Origin)

	result, err := srv.handleClearOverride(context.Background(), toolRequest("kehai_clear_override", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.NotEqual(t, status.OriginOverride, srv.arb.ComputeActive().Origin)
}

func TestGetStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleGetStatus(context.Background(), toolRequest("kehai_get_status", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var payload struct {
		Active  status.Status  `json:"active"`
		Layers  arbiter.Layers `json:"layers"`
		Presets []string       `json:"presets"`
		Icons   []string       `json:"icons"`
	}
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &payload))

	assert.Equal(t, status.KindStandard, payload.Active.Kind)
	assert.Contains(t, payload.Presets, "在线")
	assert.Contains(t, payload.Icons, "饥饿")
}

func TestStatusCurrentResource(t *testing.T) {
	srv, _ := newTestServer(t)

	contents, err := srv.handleStatusCurrent(context.Background(), mcplib.ReadResourceRequest{
		Params: mcplib.ReadResourceParams{URI: "kehai://status/current"},
	})
	require.NoError(t, err)
	require.Len(t, contents, 1)

	text, ok := contents[0].(mcplib.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, "kehai://status/current", text.URI)
	assert.Contains(t, text.Text, "active")
}

func TestScheduleTodayResource(t *testing.T) {
	srv, _ := newTestServer(t)

	contents, err := srv.handleScheduleToday(context.Background(), mcplib.ReadResourceRequest{
		Params: mcplib.ReadResourceParams{URI: "kehai://schedule/today"},
	})
	require.NoError(t, err)
	require.Len(t, contents, 1)
}
