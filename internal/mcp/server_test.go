package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/beacon/internal/models"
	"github.com/joescharf/beacon/internal/store"
)

// newTestServer creates a Server backed by a real SQLite store in a temp dir,
// seeded with one project, one session, and two events.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "beacon.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(ctx))

	require.NoError(t, st.EnsureProject(ctx, "home-dev-api", "api"))
	require.NoError(t, st.EnsureSession(ctx, &models.Session{
		ID:        "sess-1",
		ProjectID: "home-dev-api",
		SourceApp: "claude-code",
		StartedAt: "2026-08-28T10:00:00+00:00",
	}))
	require.NoError(t, st.InsertEvent(ctx, &models.Event{
		SessionID: "sess-1",
		ProjectID: "home-dev-api",
		EventType: models.EventSessionStart,
		Timestamp: "2026-08-28T10:00:00+00:00",
	}))
	require.NoError(t, st.InsertEvent(ctx, &models.Event{
		SessionID: "sess-1",
		ProjectID: "home-dev-api",
		EventType: models.EventPreToolUse,
		Timestamp: "2026-08-28T10:00:05+00:00",
		Name:      "Bash",
		SpanID:    "span-1",
	}))

	return NewServer(st)
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var out string
	for _, c := range result.Content {
		if tc, ok := c.(mcpgo.TextContent); ok {
			out += tc.Text
		}
	}
	return out
}

func TestMCPServerRegistersTools(t *testing.T) {
	srv := newTestServer(t)
	assert.NotNil(t, srv.MCPServer())
}

func TestHandleListProjects(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleListProjects(ctx, callToolReq("beacon_list_projects", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var projects []map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &projects))
	require.Len(t, projects, 1)
	assert.Equal(t, "home-dev-api", projects[0]["id"])
	assert.Equal(t, "api", projects[0]["name"])
	assert.Equal(t, float64(1), projects[0]["session_count"])
}

func TestHandleListSessions(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleListSessions(ctx, callToolReq("beacon_list_sessions", map[string]any{
		"project_id": "home-dev-api",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var sessions []map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "sess-1", sessions[0]["id"])
	assert.Equal(t, float64(2), sessions[0]["event_count"])
}

func TestHandleListSessionsOtherProject(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleListSessions(ctx, callToolReq("beacon_list_sessions", map[string]any{
		"project_id": "nonexistent",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var sessions []map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &sessions))
	assert.Empty(t, sessions)
}

func TestHandleListEvents(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleListEvents(ctx, callToolReq("beacon_list_events", map[string]any{
		"session_id": "sess-1",
		"event_type": models.EventPreToolUse,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var events []map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "Bash", events[0]["name"])
	assert.Equal(t, "span-1", events[0]["span_id"])
}

func TestHandleGetSession(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleGetSession(ctx, callToolReq("beacon_get_session", map[string]any{
		"session_id": "sess-1",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var sess map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &sess))
	assert.Equal(t, "sess-1", sess["id"])

	events, ok := sess["events"].([]any)
	require.True(t, ok)
	require.Len(t, events, 2)
	// Timeline is chronological.
	first := events[0].(map[string]any)
	assert.Equal(t, models.EventSessionStart, first["event_type"])
}

func TestHandleGetSessionMissingParam(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleGetSession(ctx, callToolReq("beacon_get_session", nil))
	require.NoError(t, err, "handler should not return Go error; should wrap in result")
	assert.True(t, result.IsError)
}

func TestHandleGetSessionNotFound(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleGetSession(ctx, callToolReq("beacon_get_session", map[string]any{
		"session_id": "nope",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "not found")
}

func TestHandleStats(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleStats(ctx, callToolReq("beacon_stats", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var stats map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &stats))
	assert.Equal(t, float64(2), stats["total_events"])
	assert.Equal(t, float64(1), stats["total_sessions"])
	assert.Equal(t, float64(1), stats["total_projects"])

	byType, ok := stats["events_by_type"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), byType[models.EventSessionStart])
}
