package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/beacon/internal/broadcast"
	"github.com/joescharf/beacon/internal/models"
	"github.com/joescharf/beacon/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	srv := NewServer(st, broadcast.NewRegistry())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func validEvent(eventType string) map[string]any {
	return map[string]any{
		"session_id":  "sess-1",
		"project_dir": "/home/dev/api",
		"source_app":  "claude-code",
		"event_type":  eventType,
		"timestamp":   "2026-08-28T10:00:00Z",
	}
}

func TestCreateEvent(t *testing.T) {
	ts := newTestServer(t)

	payload := validEvent(models.EventPreToolUse)
	payload["name"] = "Bash"
	payload["span_id"] = "span-1"
	payload["input"] = map[string]any{"command": "ls"}

	resp := postJSON(t, ts.URL+"/api/events", payload)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	event := decodeJSON[models.Event](t, resp)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "home-dev-api", event.ProjectID)
	assert.Equal(t, "Bash", event.Name)
	assert.Equal(t, "DEFAULT", event.Level)
	assert.JSONEq(t, `{"command":"ls"}`, string(event.Input))
}

func TestCreateEvent_InvalidJSON(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/events", "application/json",
		bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeJSON[map[string]string](t, resp)
	assert.Equal(t, "invalid JSON", body["error"])
}

func TestCreateEvent_MissingField(t *testing.T) {
	ts := newTestServer(t)

	payload := validEvent(models.EventStop)
	delete(payload, "session_id")

	resp := postJSON(t, ts.URL+"/api/events", payload)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeJSON[map[string]string](t, resp)
	assert.Equal(t, "session_id is required", body["error"])
}

func TestCreateEventsBatch(t *testing.T) {
	ts := newTestServer(t)

	batch := []map[string]any{
		validEvent(models.EventSessionStart),
		validEvent(models.EventStop),
	}
	resp := postJSON(t, ts.URL+"/api/events/batch", batch)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	events := decodeJSON[[]models.Event](t, resp)
	assert.Len(t, events, 2)
}

func TestCreateEventsBatch_PartialFailureNotRolledBack(t *testing.T) {
	ts := newTestServer(t)

	bad := validEvent(models.EventStop)
	delete(bad, "event_type")
	batch := []map[string]any{validEvent(models.EventSessionStart), bad}

	resp := postJSON(t, ts.URL+"/api/events/batch", batch)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeJSON[map[string]string](t, resp)
	assert.Equal(t, "event 1: event_type is required", body["error"])

	// The first item was already persisted.
	listResp, err := http.Get(ts.URL + "/api/events")
	require.NoError(t, err)
	events := decodeJSON[[]models.Event](t, listResp)
	assert.Len(t, events, 1)
}

func TestListEvents_FiltersAndEmpty(t *testing.T) {
	ts := newTestServer(t)

	// Empty database returns an empty array, not null.
	resp, err := http.Get(ts.URL + "/api/events")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events := decodeJSON[[]models.Event](t, resp)
	assert.NotNil(t, events)
	assert.Empty(t, events)

	postJSON(t, ts.URL+"/api/events", validEvent(models.EventSessionStart))
	postJSON(t, ts.URL+"/api/events", validEvent(models.EventStop))

	resp, err = http.Get(ts.URL + "/api/events?event_type=Stop")
	require.NoError(t, err)
	events = decodeJSON[[]models.Event](t, resp)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventStop, events[0].EventType)
}

func TestListEvents_ZeroLimitFallsBackToDefault(t *testing.T) {
	ts := newTestServer(t)

	postJSON(t, ts.URL+"/api/events", validEvent(models.EventStop))

	resp, err := http.Get(ts.URL + "/api/events?limit=0")
	require.NoError(t, err)
	events := decodeJSON[[]models.Event](t, resp)
	assert.Len(t, events, 1, "limit below 1 is malformed and uses the default")
}

func TestGetEvent_NotFound(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/events/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProjectsEndpoints(t *testing.T) {
	ts := newTestServer(t)

	postJSON(t, ts.URL+"/api/events", validEvent(models.EventSessionStart))

	resp, err := http.Get(ts.URL + "/api/projects")
	require.NoError(t, err)
	projects := decodeJSON[[]models.Project](t, resp)
	require.Len(t, projects, 1)
	assert.Equal(t, "home-dev-api", projects[0].ID)
	assert.Equal(t, 1, projects[0].SessionCount)

	resp, err = http.Get(ts.URL + "/api/projects/home-dev-api")
	require.NoError(t, err)
	project := decodeJSON[models.Project](t, resp)
	assert.Equal(t, "api", project.Name)

	resp, err = http.Get(ts.URL + "/api/projects/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionsEndpoints(t *testing.T) {
	ts := newTestServer(t)

	postJSON(t, ts.URL+"/api/events", validEvent(models.EventSessionStart))
	postJSON(t, ts.URL+"/api/events", validEvent(models.EventStop))

	resp, err := http.Get(ts.URL + "/api/sessions")
	require.NoError(t, err)
	sessions := decodeJSON[[]models.Session](t, resp)
	require.Len(t, sessions, 1)
	assert.Equal(t, "sess-1", sessions[0].ID)
	assert.Equal(t, 2, sessions[0].EventCount)

	// Detail view includes the chronological timeline.
	resp, err = http.Get(ts.URL + "/api/sessions/sess-1")
	require.NoError(t, err)
	sess := decodeJSON[models.Session](t, resp)
	require.Len(t, sess.Events, 2)
	assert.Equal(t, models.EventSessionStart, sess.Events[0].EventType)

	resp, err = http.Get(ts.URL + "/api/sessions/sess-1/events")
	require.NoError(t, err)
	events := decodeJSON[[]models.Event](t, resp)
	assert.Len(t, events, 2)

	resp, err = http.Get(ts.URL + "/api/sessions/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	postJSON(t, ts.URL+"/api/events", validEvent(models.EventSessionStart))

	resp, err := http.Get(ts.URL + "/api/stats")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stats := decodeJSON[models.Stats](t, resp)
	assert.Equal(t, int64(1), stats.TotalEvents)
	assert.Equal(t, int64(1), stats.TotalSessions)
	assert.Equal(t, int64(1), stats.EventsByType[models.EventSessionStart])
}

func TestFilterOptionsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	// Empty lists are arrays, not null.
	resp, err := http.Get(ts.URL + "/api/filter-options")
	require.NoError(t, err)
	opts := decodeJSON[models.FilterOptions](t, resp)
	assert.NotNil(t, opts.EventTypes)
	assert.Empty(t, opts.EventTypes)

	postJSON(t, ts.URL+"/api/events", validEvent(models.EventSessionStart))

	resp, err = http.Get(ts.URL + "/api/filter-options")
	require.NoError(t, err)
	opts = decodeJSON[models.FilterOptions](t, resp)
	assert.Equal(t, []string{models.EventSessionStart}, opts.EventTypes)
	require.Len(t, opts.Projects, 1)
	require.Len(t, opts.Sessions, 1)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON[map[string]string](t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestCORSHeaders(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
