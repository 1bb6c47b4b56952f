// ABOUTME: Tests for the HTTP API surface using httptest.
// ABOUTME: Exercises tool invocation, stats, and the uniform result shape.

package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/ward-gateway/internal/config"
	"github.com/2389/ward-gateway/internal/metrics"
	"github.com/2389/ward-gateway/internal/tools"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Tools.BaseDirectory = t.TempDir()
	cfg.Tools.AllowedExtensions = []string{".txt"}
	cfg.Tools.MaxFileSize = 1024
	cfg.WebSocket.MaxConnections = 4
	cfg.WebSocket.HeartbeatInterval = time.Second
	cfg.WebSocket.HeartbeatTimeout = 3 * time.Second
	return cfg
}

func newTestGateway(t *testing.T, cfg *config.Config) (*Gateway, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw, err := New(cfg, logger, Options{Metrics: metrics.New()})
	require.NoError(t, err)

	srv := httptest.NewServer(gw.httpServer.Handler)
	t.Cleanup(srv.Close)
	return gw, srv
}

func callTool(t *testing.T, srv *httptest.Server, name string, args map[string]any) *tools.Result {
	t.Helper()
	body, err := json.Marshal(ToolCallRequest{Name: name, Arguments: args})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/tools/call", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result tools.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return &result
}

func getJSON(t *testing.T, srv *httptest.Server, path string, out any) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestIndexEndpoint(t *testing.T) {
	_, srv := newTestGateway(t, testConfig(t))

	var body map[string]any
	getJSON(t, srv, "/", &body)
	assert.Equal(t, "ward-gateway", body["service"])
	assert.NotEmpty(t, body["server_id"])

	resp, err := http.Get(srv.URL + "/no-such-path")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	_, srv := newTestGateway(t, testConfig(t))

	var body map[string]any
	getJSON(t, srv, "/health", &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["connections"])
	assert.Equal(t, float64(4), body["tools"])
}

func TestListToolsEndpoint(t *testing.T) {
	_, srv := newTestGateway(t, testConfig(t))

	var body struct {
		Tools []tools.Descriptor `json:"tools"`
	}
	getJSON(t, srv, "/tools", &body)

	names := make([]string, 0, len(body.Tools))
	for _, d := range body.Tools {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"read_file", "write_file", "append_file", "list_files"}, names)
}

func TestDeviceToolsRegisteredWhenEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Device.Enabled = true
	_, srv := newTestGateway(t, cfg)

	var body struct {
		Tools []tools.Descriptor `json:"tools"`
	}
	getJSON(t, srv, "/tools", &body)
	names := make([]string, 0, len(body.Tools))
	for _, d := range body.Tools {
		names = append(names, d.Name)
	}
	assert.Contains(t, names, "send_device_command")
	assert.Contains(t, names, "check_device_status")
}

func TestToolCallRoundTrip(t *testing.T) {
	_, srv := newTestGateway(t, testConfig(t))

	res := callTool(t, srv, "write_file", map[string]any{
		"file_path": "note.txt",
		"content":   "hello",
	})
	require.True(t, res.Success, res.Error)

	res = callTool(t, srv, "read_file", map[string]any{"file_path": "note.txt"})
	require.True(t, res.Success, res.Error)
	got := res.Result.(map[string]any)
	assert.Equal(t, "hello", got["content"])
	assert.Equal(t, float64(5), got["size"])

	res = callTool(t, srv, "list_files", map[string]any{"directory_path": "."})
	require.True(t, res.Success, res.Error)
	listing := res.Result.(map[string]any)
	assert.Equal(t, float64(1), listing["total_files"])
	assert.Equal(t, float64(0), listing["total_dirs"])
}

func TestToolCallFailuresAreResults(t *testing.T) {
	_, srv := newTestGateway(t, testConfig(t))

	t.Run("unknown tool lists catalog", func(t *testing.T) {
		res := callTool(t, srv, "no_such_tool", nil)
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "read_file")
	})

	t.Run("disallowed extension", func(t *testing.T) {
		res := callTool(t, srv, "write_file", map[string]any{
			"file_path": "evil.exe",
			"content":   "x",
		})
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, ".exe")
	})

	t.Run("sandbox escape", func(t *testing.T) {
		res := callTool(t, srv, "read_file", map[string]any{"file_path": "../../etc/passwd"})
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "outside base directory")
	})
}

func TestToolCallBadRequests(t *testing.T) {
	_, srv := newTestGateway(t, testConfig(t))

	resp, err := http.Post(srv.URL+"/tools/call", "application/json", bytes.NewReader([]byte("not json")))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/tools/call", "application/json", bytes.NewReader([]byte(`{"arguments":{}}`)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/tools/call")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStatsEndpointAndReset(t *testing.T) {
	_, srv := newTestGateway(t, testConfig(t))

	callTool(t, srv, "write_file", map[string]any{"file_path": "a.txt", "content": "x"})
	callTool(t, srv, "read_file", map[string]any{"file_path": "missing.txt"})

	var stats StatsResponse
	getJSON(t, srv, "/stats", &stats)
	assert.Equal(t, int64(1), stats.Tools["write_file"].SuccessCount)
	assert.Equal(t, int64(1), stats.Tools["read_file"].ErrorCount)

	resp, err := http.Post(srv.URL+"/stats/reset", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	getJSON(t, srv, "/stats", &stats)
	assert.Zero(t, stats.Tools["write_file"].CallCount)
}

func TestPerToolEnabledFlags(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tools.Enabled = map[string]bool{"append_file": false}
	_, srv := newTestGateway(t, cfg)

	var body struct {
		Tools []tools.Descriptor `json:"tools"`
	}
	getJSON(t, srv, "/tools", &body)
	for _, d := range body.Tools {
		assert.NotEqual(t, "append_file", d.Name)
	}

	res := callTool(t, srv, "append_file", map[string]any{"file_path": "a.txt", "content": "x"})
	assert.False(t, res.Success)
}

func TestConnectionsEndpointEmpty(t *testing.T) {
	_, srv := newTestGateway(t, testConfig(t))

	var body map[string]any
	getJSON(t, srv, "/connections", &body)
	assert.Equal(t, float64(0), body["count"])
}

func TestMetricsEndpoint(t *testing.T) {
	_, srv := newTestGateway(t, testConfig(t))

	callTool(t, srv, "write_file", map[string]any{"file_path": "a.txt", "content": "x"})

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	text, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(text), "ward_tools_invocations_total")
}
