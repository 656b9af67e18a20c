package relay

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/beacon/internal/config"
)

// fakeDashboard records sync requests the relay forwards.
type fakeDashboard struct {
	mu       sync.Mutex
	requests []string
	server   *httptest.Server
}

func newFakeDashboard() *fakeDashboard {
	d := &fakeDashboard{}
	d.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		d.requests = append(d.requests, r.URL.Path)
		d.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "sessionId": "remote-1"})
	}))
	return d
}

func (d *fakeDashboard) paths() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.requests...)
}

func testService(t *testing.T) (*Service, *fakeDashboard, *httptest.Server) {
	t.Helper()

	dashboard := newFakeDashboard()
	cfg := config.Default()
	cfg.BaseURL = dashboard.server.URL
	cfg.APIKey = "test-key"

	svc := NewService(cfg, "test-version")
	relayServer := httptest.NewServer(svc.Router())

	t.Cleanup(func() {
		relayServer.Close()
		dashboard.server.Close()
	})
	return svc, dashboard, relayServer
}

func postEvent(t *testing.T, relayURL, eventType string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(relayURL+"/api/event/"+eventType, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func startPayload(sessionID string) map[string]any {
	return map[string]any{
		"sessionId": sessionID,
		"directory": "/work/app",
		"model":     "claude-sonnet",
		"source":    "startup",
	}
}

func TestHealth(t *testing.T) {
	_, _, relayServer := testService(t)

	resp, err := http.Get(relayServer.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, "test-version", body["version"])
}

func TestSessionStartForwardsToDashboard(t *testing.T) {
	_, dashboard, relayServer := testService(t)

	resp := postEvent(t, relayServer.URL, "session-start", startPayload("sess-1"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"/sync/session"}, dashboard.paths())
}

func TestConversationFlow(t *testing.T) {
	svc, dashboard, relayServer := testService(t)

	postEvent(t, relayServer.URL, "session-start", startPayload("sess-1"))
	postEvent(t, relayServer.URL, "user-input", map[string]any{
		"sessionId": "sess-1", "text": "hello", "origin": "human",
	})
	postEvent(t, relayServer.URL, "assistant-turn", map[string]any{
		"sessionId": "sess-1",
		"parts":     []map[string]any{{"type": "text", "text": "hi"}},
		"usage":     map[string]any{"promptTokens": 10, "completionTokens": 2, "cost": 0.001},
	})

	assert.Equal(t, []string{"/sync/session", "/sync/message", "/sync/message", "/sync/session"}, dashboard.paths())
	assert.Equal(t, 1, svc.activeSessionCount())

	postEvent(t, relayServer.URL, "session-end", map[string]any{"sessionId": "sess-1"})
	assert.Equal(t, 0, svc.activeSessionCount())
}

func TestSessionsAreIsolated(t *testing.T) {
	svc, _, relayServer := testService(t)

	postEvent(t, relayServer.URL, "session-start", startPayload("sess-a"))
	postEvent(t, relayServer.URL, "session-start", startPayload("sess-b"))
	assert.Equal(t, 2, svc.activeSessionCount())

	postEvent(t, relayServer.URL, "session-end", map[string]any{"sessionId": "sess-a"})
	assert.Equal(t, 1, svc.activeSessionCount())
}

func TestEventForUnknownSessionIsHarmless(t *testing.T) {
	_, dashboard, relayServer := testService(t)

	// No session-start: the orchestrator treats it as a no-op.
	resp := postEvent(t, relayServer.URL, "user-input", map[string]any{
		"sessionId": "ghost", "text": "hello", "origin": "human",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, dashboard.paths())
}

func TestAutoSyncOffDropsEvents(t *testing.T) {
	dashboard := newFakeDashboard()
	defer dashboard.server.Close()

	cfg := config.Default()
	cfg.BaseURL = dashboard.server.URL
	cfg.AutoSync = false
	svc := NewService(cfg, "test")
	relayServer := httptest.NewServer(svc.Router())
	defer relayServer.Close()

	resp := postEvent(t, relayServer.URL, "session-start", startPayload("sess-1"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["skipped"])
	assert.Empty(t, dashboard.paths())
}

func TestMalformedEventRejected(t *testing.T) {
	_, _, relayServer := testService(t)

	resp, err := http.Post(relayServer.URL+"/api/event/session-start", "application/json", bytes.NewReader([]byte("{broken")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatus(t *testing.T) {
	_, _, relayServer := testService(t)

	postEvent(t, relayServer.URL, "session-start", startPayload("sess-1"))

	resp, err := http.Get(relayServer.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, float64(1), body["activeSessions"])
	assert.Equal(t, float64(1), body["syncAttempts"])
	assert.Equal(t, float64(0), body["syncFailures"])
}

func TestReloadSwapsClient(t *testing.T) {
	svc, _, relayServer := testService(t)

	newDashboard := newFakeDashboard()
	defer newDashboard.server.Close()

	cfg := config.Default()
	cfg.BaseURL = newDashboard.server.URL
	svc.Reload(cfg)

	// Sessions started after the reload use the new destination.
	postEvent(t, relayServer.URL, "session-start", startPayload("sess-after"))
	assert.Equal(t, []string{"/sync/session"}, newDashboard.paths())
}
