// ABOUTME: Represents one live duplex connection and its heartbeat state.
// ABOUTME: All mutation happens through the registry; callers only read snapshots.

package conn

import (
	"context"
	"sync"
	"time"

	"github.com/2389/ward-gateway/internal/protocol"
)

// Connection is one live duplex session. The registry owns the lifecycle;
// the only mutations are send-count increments and heartbeat timestamps.
type Connection struct {
	ID string

	transport   Transport
	connectedAt time.Time

	// sendMu serializes writes so envelopes to one peer keep send order.
	sendMu sync.Mutex

	mu       sync.Mutex
	metadata map[string]any
	lastPing time.Time
	lastPong time.Time
	sent     int64
}

func newConnection(id string, t Transport, metadata map[string]any) *Connection {
	m := make(map[string]any, len(metadata))
	for k, v := range metadata {
		m[k] = v
	}
	return &Connection{
		ID:          id,
		metadata:    m,
		transport:   t,
		connectedAt: time.Now(),
	}
}

// MergeMetadata folds peer-supplied settings into the connection metadata.
func (c *Connection) MergeMetadata(values map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range values {
		c.metadata[k] = v
	}
}

// send writes one envelope to the peer and counts it. Envelopes to a single
// connection are serialized here so send order is preserved.
func (c *Connection) send(ctx context.Context, env *protocol.Envelope) error {
	c.sendMu.Lock()
	err := c.transport.Send(ctx, env)
	c.sendMu.Unlock()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.sent++
	c.mu.Unlock()
	return nil
}

// markPing records that a heartbeat probe was sent.
func (c *Connection) markPing(at time.Time) {
	c.mu.Lock()
	c.lastPing = at
	c.mu.Unlock()
}

// markPong records heartbeat acknowledgement from the peer. The ping-sent
// timestamp is left alone; the next cycle probes again regardless.
func (c *Connection) markPong(at time.Time) {
	c.mu.Lock()
	c.lastPong = at
	c.mu.Unlock()
}

// alive evaluates the liveness predicate: a connection is alive unless a
// ping was sent more than timeout ago with no pong at or after it. An
// unprobed connection is always alive.
func (c *Connection) alive(now time.Time, timeout time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastPing.IsZero() {
		return true
	}
	if now.Sub(c.lastPing) <= timeout {
		return true
	}
	return !c.lastPong.IsZero() && !c.lastPong.Before(c.lastPing)
}

// Info is a point-in-time snapshot of a connection's public state.
type Info struct {
	ID           string         `json:"id"`
	RemoteAddr   string         `json:"remote_addr"`
	ConnectedAt  time.Time      `json:"connected_at"`
	LastPing     *time.Time     `json:"last_ping,omitempty"`
	LastPong     *time.Time     `json:"last_pong,omitempty"`
	MessagesSent int64          `json:"messages_sent"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Snapshot returns the connection's current public state.
func (c *Connection) Snapshot() Info {
	c.mu.Lock()
	defer c.mu.Unlock()

	meta := make(map[string]any, len(c.metadata))
	for k, v := range c.metadata {
		meta[k] = v
	}
	info := Info{
		ID:           c.ID,
		RemoteAddr:   c.transport.RemoteAddr(),
		ConnectedAt:  c.connectedAt,
		MessagesSent: c.sent,
		Metadata:     meta,
	}
	if !c.lastPing.IsZero() {
		ping := c.lastPing
		info.LastPing = &ping
	}
	if !c.lastPong.IsZero() {
		pong := c.lastPong
		info.LastPong = &pong
	}
	return info
}
