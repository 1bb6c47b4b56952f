// ABOUTME: Websocket endpoint bridging duplex peers into the connection registry.
// ABOUTME: Runs one sequential session loop per connection, dispatching by message kind.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/2389/ward-gateway/internal/chat"
	"github.com/2389/ward-gateway/internal/conn"
	"github.com/2389/ward-gateway/internal/protocol"
)

// closeReasonLimit is the websocket close-reason byte budget (RFC 6455
// allows 123 bytes of payload after the status code).
const closeReasonLimit = 123

// wsTransport adapts a websocket connection to the registry's Transport.
type wsTransport struct {
	ws         *websocket.Conn
	remoteAddr string
}

func (t *wsTransport) Send(ctx context.Context, env *protocol.Envelope) error {
	return wsjson.Write(ctx, t.ws, env)
}

func (t *wsTransport) Close(reason string) error {
	if len(reason) > closeReasonLimit {
		reason = reason[:closeReasonLimit]
	}
	return t.ws.Close(websocket.StatusNormalClosure, reason)
}

func (t *wsTransport) RemoteAddr() string { return t.remoteAddr }

// handleWebSocket upgrades the request and services the connection until
// the peer goes away or the registry evicts it.
func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	transport := &wsTransport{ws: ws, remoteAddr: r.RemoteAddr}
	metadata := map[string]any{"user_agent": r.UserAgent()}

	c, err := g.connReg.Accept(r.Context(), transport, r.URL.Query().Get("client_id"), metadata)
	if err != nil {
		g.metrics.ConnectionEvent("rejected")
		reason := "accept failed"
		if errors.Is(err, conn.ErrCapacityExceeded) {
			reason = "capacity exceeded"
		}
		_ = transport.Close(reason)
		return
	}
	g.metrics.ConnectionEvent("accepted")
	g.metrics.SetLiveConnections(g.connReg.Stats().LiveConnections)

	g.readLoop(r.Context(), c.ID, ws)

	// The registry may have evicted the connection already; Disconnect is
	// idempotent either way.
	g.connReg.Disconnect(c.ID, "connection closed")
	g.metrics.SetLiveConnections(g.connReg.Stats().LiveConnections)
}

// readLoop processes inbound envelopes sequentially. Messages from one
// connection are never handled out of order; other connections proceed
// independently.
func (g *Gateway) readLoop(ctx context.Context, id string, ws *websocket.Conn) {
	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, ws, &raw); err != nil {
			g.logger.Debug("websocket read ended", "connection_id", id, "error", err)
			return
		}
		g.dispatch(ctx, id, raw)
	}
}

// dispatch handles one inbound envelope. Protocol errors produce an error
// envelope back to the peer; they never terminate the connection.
func (g *Gateway) dispatch(ctx context.Context, id string, raw json.RawMessage) {
	env, err := protocol.Decode(raw)
	if err != nil {
		if errors.Is(err, protocol.ErrUnrecognizedKind) && env != nil {
			g.metrics.Message("in", "unrecognized")
			g.sendError(ctx, id, fmt.Sprintf("unrecognized message type: %q", env.Type))
			return
		}
		g.metrics.Message("in", "malformed")
		g.sendError(ctx, id, "malformed message: "+err.Error())
		return
	}
	g.metrics.Message("in", string(env.Type))

	switch env.Type {
	case protocol.KindPing:
		g.connReg.HandlePing(id)
		g.send(ctx, id, protocol.Pong(env.Data["timestamp"]))

	case protocol.KindPong:
		g.connReg.HandlePong(id)

	case protocol.KindChat:
		g.handleChat(ctx, id, env)

	case protocol.KindConfig:
		g.handleConfig(ctx, id, env)

	default:
		// processing, chat_response, error, and system are kinds this
		// gateway produces; a peer sending one gets logged and ignored.
		g.logger.Warn("ignoring server-owned message kind from peer",
			"connection_id", id,
			"type", env.Type,
		)
	}
}

// handleChat routes a chat turn to the collaborator, bracketed by a
// processing notice so the peer sees progress before the response.
func (g *Gateway) handleChat(ctx context.Context, id string, env *protocol.Envelope) {
	content, _ := env.Data["content"].(string)
	if content == "" {
		content, _ = env.Data["message"].(string)
	}
	if content == "" {
		g.sendError(ctx, id, "chat message requires content")
		return
	}
	model, _ := env.Data["model"].(string)

	g.send(ctx, id, protocol.Processing("processing chat message"))

	resp, err := g.chatHandler.Handle(ctx, &chat.Request{
		ConnectionID: id,
		Content:      content,
		Model:        model,
		Metadata:     env.Data,
	})
	if err != nil {
		g.logger.Error("chat handler failed", "connection_id", id, "error", err)
		resp = &chat.Response{Success: false, Error: err.Error()}
	}

	data := map[string]any{
		"success": resp.Success,
	}
	if resp.Result != "" {
		data["result"] = resp.Result
	}
	if resp.Error != "" {
		data["error"] = resp.Error
	}
	if len(resp.ToolCalls) > 0 {
		data["tool_calls"] = resp.ToolCalls
	}
	if resp.ModelUsed != "" {
		data["model_used"] = resp.ModelUsed
	}
	g.send(ctx, id, protocol.New(protocol.KindChatResponse, data))
}

// handleConfig merges peer-supplied settings into the connection metadata.
func (g *Gateway) handleConfig(ctx context.Context, id string, env *protocol.Envelope) {
	c, ok := g.connReg.Get(id)
	if !ok {
		return
	}
	c.MergeMetadata(env.Data)
	g.logger.Info("connection configured", "connection_id", id, "keys", len(env.Data))
	g.send(ctx, id, protocol.System("configuration updated", nil))
}

func (g *Gateway) send(ctx context.Context, id string, env *protocol.Envelope) {
	if err := g.connReg.Send(ctx, id, env); err != nil {
		g.logger.Debug("outbound send failed", "connection_id", id, "type", env.Type, "error", err)
		return
	}
	g.metrics.Message("out", string(env.Type))
}

func (g *Gateway) sendError(ctx context.Context, id string, msg string) {
	g.send(ctx, id, protocol.Error(msg))
}
