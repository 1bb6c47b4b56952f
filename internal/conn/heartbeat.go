// ABOUTME: Background heartbeat monitor probing every live connection.
// ABOUTME: Evicts connections whose last ping went unanswered past the timeout.

package conn

import (
	"context"
	"log/slog"
	"time"

	"github.com/2389/ward-gateway/internal/protocol"
)

// DefaultHeartbeatInterval is used when the configured interval is zero.
const DefaultHeartbeatInterval = 30 * time.Second

// Monitor periodically probes every registered connection. It only reads
// liveness state and requests eviction through the registry's disconnect
// path; it never mutates connection state directly.
type Monitor struct {
	registry *Registry
	interval time.Duration
	logger   *slog.Logger
}

// NewMonitor creates a heartbeat monitor over the given registry.
func NewMonitor(registry *Registry, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		registry: registry,
		interval: interval,
		logger:   logger.With("component", "heartbeat"),
	}
}

// Run probes on a fixed interval until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info("heartbeat monitor started",
		"interval", m.interval,
		"timeout", m.registry.cfg.HeartbeatTimeout,
	)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("heartbeat monitor stopped")
			return
		case <-ticker.C:
			m.Cycle(ctx)
		}
	}
}

// Cycle runs one probe pass: evict connections failing the liveness
// predicate, then ping everything that remains. A failed ping send evicts
// through the registry's send-failure path.
func (m *Monitor) Cycle(ctx context.Context) {
	timeout := m.registry.cfg.HeartbeatTimeout
	now := time.Now()

	m.registry.mu.RLock()
	live := make([]*Connection, 0, len(m.registry.conns))
	for _, c := range m.registry.conns {
		live = append(live, c)
	}
	m.registry.mu.RUnlock()

	remaining := live[:0]
	for _, c := range live {
		if !c.alive(now, timeout) {
			m.logger.Warn("connection failed liveness check", "connection_id", c.ID)
			m.registry.Disconnect(c.ID, "heartbeat timeout")
			continue
		}
		remaining = append(remaining, c)
	}

	for _, c := range remaining {
		if err := m.registry.Send(ctx, c.ID, protocol.Ping()); err != nil {
			// Send already evicted the connection.
			m.logger.Warn("heartbeat probe failed", "connection_id", c.ID, "error", err)
			continue
		}
		c.markPing(now)
	}
}
