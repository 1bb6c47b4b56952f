// ABOUTME: Transport abstraction for a duplex connection's outbound half.
// ABOUTME: Implemented by the websocket layer and by test fakes.

package conn

import (
	"context"

	"github.com/2389/ward-gateway/internal/protocol"
)

// Transport is the write side of a duplex connection. Implementations must
// be safe for concurrent Send calls; the registry serializes per-connection
// sends but the heartbeat monitor and session loop run independently.
type Transport interface {
	// Send delivers one envelope to the peer. A returned error means the
	// transport is unusable and the connection will be evicted.
	Send(ctx context.Context, env *protocol.Envelope) error

	// Close tears down the underlying channel. The reason is delivered to
	// the peer where the transport supports it.
	Close(reason string) error

	// RemoteAddr identifies the peer for logging and ID generation.
	RemoteAddr() string
}
