// ABOUTME: HTTP API handlers exposing the tool catalog, invocation, and stats.
// ABOUTME: Tool call failures are structured results, never HTTP errors.

package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/2389/ward-gateway/internal/tools"
)

// ToolCallRequest is the JSON request body for POST /tools/call.
type ToolCallRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// StatsResponse is the JSON response for GET /stats.
type StatsResponse struct {
	ServerID    string                 `json:"server_id"`
	Tools       map[string]tools.Stats `json:"tools"`
	Connections any                    `json:"connections"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleIndex describes the service for GET /.
func (g *Gateway) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service":   "ward-gateway",
		"server_id": g.serverID,
		"endpoints": []string{"/health", "/tools", "/tools/call", "/stats", "/connections", "/ws"},
	})
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := g.connReg.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": stats.LiveConnections,
		"tools":       len(g.toolReg.Names()),
	})
}

// handleListTools handles GET /tools requests.
// It returns the catalog of enabled tool descriptors in insertion order.
func (g *Gateway) handleListTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": g.toolReg.List()})
}

// handleToolCall handles POST /tools/call requests. The response is always
// the uniform result shape; an unknown tool or failing handler is a 200 with
// success=false, not an HTTP error.
func (g *Gateway) handleToolCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, &tools.Result{Success: false, Error: "reading request body: " + err.Error()})
		return
	}

	var req ToolCallRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, &tools.Result{Success: false, Error: "invalid JSON body: " + err.Error()})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, &tools.Result{Success: false, Error: "tool name is required"})
		return
	}

	requestID := uuid.New().String()
	g.logger.Debug("tool call received", "request_id", requestID, "tool", req.Name)

	start := time.Now()
	result := g.toolReg.Invoke(r.Context(), req.Name, req.Arguments)
	g.metrics.ToolInvoked(req.Name, result.Success, time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, result)
}

// handleStats handles GET /stats requests.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, &StatsResponse{
		ServerID:    g.serverID,
		Tools:       g.toolReg.AllStats(),
		Connections: g.connReg.Stats(),
	})
}

// handleStatsReset handles POST /stats/reset requests.
func (g *Gateway) handleStatsReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	g.toolReg.ResetStats()
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

// handleConnections handles GET /connections requests.
func (g *Gateway) handleConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	infos := g.connReg.Infos()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":       len(infos),
		"connections": infos,
	})
}
