// ABOUTME: Authoritative map of live duplex connections with capacity enforcement.
// ABOUTME: Owns accept, disconnect, targeted send, broadcast, and liveness stats.

package conn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/ward-gateway/internal/protocol"
)

// ErrCapacityExceeded indicates the registry is at its connection limit.
var ErrCapacityExceeded = errors.New("connection capacity exceeded")

// ErrUnknownConnection indicates the given ID has no live connection.
var ErrUnknownConnection = errors.New("unknown connection")

// ErrTransportFailure indicates the underlying channel failed on send.
var ErrTransportFailure = errors.New("transport failure")

// RegistryConfig bounds the registry and parameterizes the liveness predicate.
type RegistryConfig struct {
	// MaxConnections caps the live count. Zero or negative means unlimited.
	MaxConnections int

	// HeartbeatTimeout is how long a ping may go unanswered before the
	// liveness predicate fails.
	HeartbeatTimeout time.Duration
}

// Registry is the single authoritative owner of live connections.
type Registry struct {
	cfg    RegistryConfig
	logger *slog.Logger

	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cfg:    cfg,
		logger: logger.With("component", "conn-registry"),
		conns:  make(map[string]*Connection),
	}
}

// Accept registers a new connection and sends it a welcome message.
// A proposed ID colliding with a live connection evicts the old one with
// reason "replaced by new connection". The capacity check, eviction, and
// insertion happen under one lock hold so concurrent accepts with the same
// ID never expose zero or two entries.
func (r *Registry) Accept(ctx context.Context, t Transport, proposedID string, metadata map[string]any) (*Connection, error) {
	id := proposedID
	if id == "" {
		id = fmt.Sprintf("%s-%d", t.RemoteAddr(), time.Now().UnixNano())
	}

	r.mu.Lock()
	replaced, collision := r.conns[id]
	if collision {
		delete(r.conns, id)
	} else if r.cfg.MaxConnections > 0 && len(r.conns) >= r.cfg.MaxConnections {
		r.mu.Unlock()
		r.logger.Warn("connection rejected at capacity",
			"remote_addr", t.RemoteAddr(),
			"max_connections", r.cfg.MaxConnections,
		)
		return nil, fmt.Errorf("%w: %d connections at limit", ErrCapacityExceeded, r.cfg.MaxConnections)
	}

	c := newConnection(id, t, metadata)
	r.conns[id] = c
	total := len(r.conns)
	r.mu.Unlock()

	if collision {
		r.teardown(replaced, "replaced by new connection")
	}

	r.logger.Info("connection accepted",
		"connection_id", id,
		"remote_addr", t.RemoteAddr(),
		"total_connections", total,
	)

	welcome := protocol.System("connected", map[string]any{"connection_id": id})
	if err := c.send(ctx, welcome); err != nil {
		r.Disconnect(id, "send failure")
		return nil, fmt.Errorf("%w: welcome to %q: %v", ErrTransportFailure, id, err)
	}
	return c, nil
}

// Disconnect removes a connection and tears down its transport. Removing an
// absent ID is a no-op logged as a warning. Eviction is observable exactly
// once: only the caller that removes the entry runs the teardown.
func (r *Registry) Disconnect(id, reason string) {
	r.mu.Lock()
	c, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	total := len(r.conns)
	r.mu.Unlock()

	if !ok {
		r.logger.Warn("disconnect for unknown connection", "connection_id", id, "reason", reason)
		return
	}

	r.teardown(c, reason)
	r.logger.Info("connection closed",
		"connection_id", id,
		"reason", reason,
		"total_connections", total,
	)
}

// teardown notifies the peer of the reason best-effort, then closes the
// channel. Called only after the entry has left the map, so no lock is held
// across the I/O.
func (r *Registry) teardown(c *Connection, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	notice := protocol.System("disconnecting: "+reason, nil)
	if err := c.send(ctx, notice); err != nil {
		r.logger.Debug("disconnect notice not delivered", "connection_id", c.ID, "error", err)
	}
	if err := c.transport.Close(reason); err != nil {
		r.logger.Debug("transport close failed", "connection_id", c.ID, "error", err)
	}
}

// Get returns the live connection for an ID.
func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// Send delivers one envelope to a single connection. A transport failure
// evicts the connection; a failed send never retries.
func (r *Registry) Send(ctx context.Context, id string, env *protocol.Envelope) error {
	c, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownConnection, id)
	}
	if err := c.send(ctx, env); err != nil {
		r.Disconnect(id, "send failure")
		return fmt.Errorf("%w: send to %q: %v", ErrTransportFailure, id, err)
	}
	return nil
}

// Broadcast delivers an envelope to every live connection not excluded.
// Failed connections are collected and evicted after the full pass; one dead
// peer never stops delivery to the rest. Returns the delivered count.
func (r *Registry) Broadcast(ctx context.Context, env *protocol.Envelope, exclude ...string) int {
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	r.mu.RLock()
	targets := make([]*Connection, 0, len(r.conns))
	for id, c := range r.conns {
		if _, excluded := skip[id]; !excluded {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	delivered := 0
	var failed []string
	for _, c := range targets {
		if err := c.send(ctx, env); err != nil {
			r.logger.Warn("broadcast send failed", "connection_id", c.ID, "error", err)
			failed = append(failed, c.ID)
			continue
		}
		delivered++
	}
	for _, id := range failed {
		r.Disconnect(id, "send failure")
	}
	return delivered
}

// HandlePing records inbound heartbeat traffic from the peer. A peer that
// pings us is demonstrably alive, so it counts as acknowledgement too.
func (r *Registry) HandlePing(id string) {
	if c, ok := r.Get(id); ok {
		c.markPong(time.Now())
	}
}

// HandlePong records a pong for an outstanding probe.
func (r *Registry) HandlePong(id string) {
	if c, ok := r.Get(id); ok {
		c.markPong(time.Now())
	}
}

// Stats summarizes the registry for the status surface.
type Stats struct {
	LiveConnections  int   `json:"live_connections"`
	MaxConnections   int   `json:"max_connections"`
	MessagesSent     int64 `json:"messages_sent"`
	AliveConnections int   `json:"alive_connections"`
}

// Stats returns the live count, capacity, aggregate send count, and how many
// connections currently pass the liveness predicate.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	now := time.Now()
	stats := Stats{
		LiveConnections: len(conns),
		MaxConnections:  r.cfg.MaxConnections,
	}
	for _, c := range conns {
		info := c.Snapshot()
		stats.MessagesSent += info.MessagesSent
		if c.alive(now, r.cfg.HeartbeatTimeout) {
			stats.AliveConnections++
		}
	}
	return stats
}

// Infos returns a snapshot of every live connection.
func (r *Registry) Infos() []Info {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	infos := make([]Info, 0, len(conns))
	for _, c := range conns {
		infos = append(infos, c.Snapshot())
	}
	return infos
}

// Shutdown disconnects every live connection with reason "server shutdown".
// Each teardown attempts the peer notification before returning.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Disconnect(id, "server shutdown")
	}
	r.logger.Info("registry shut down", "disconnected", len(ids))
}
