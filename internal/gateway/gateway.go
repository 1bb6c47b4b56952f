// ABOUTME: Gateway orchestrator that wires the tool registry, connection registry,
// ABOUTME: heartbeat monitor, and HTTP server into one managed lifecycle.

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/ward-gateway/internal/chat"
	"github.com/2389/ward-gateway/internal/config"
	"github.com/2389/ward-gateway/internal/conn"
	"github.com/2389/ward-gateway/internal/metrics"
	"github.com/2389/ward-gateway/internal/tools"
)

// Gateway orchestrates the ward-gateway server components.
// It manages the tool registry, the duplex connection registry, the
// heartbeat monitor, and the HTTP server exposing both.
type Gateway struct {
	config      *config.Config
	toolReg     *tools.Registry
	connReg     *conn.Registry
	monitor     *conn.Monitor
	chatHandler chat.Handler
	metrics     *metrics.Metrics
	httpServer  *http.Server
	logger      *slog.Logger

	// serverID identifies this gateway instance
	serverID string

	// stopMonitor cancels the heartbeat goroutine on shutdown
	stopMonitor context.CancelFunc
}

// Options carries optional collaborators for New.
type Options struct {
	// ChatHandler produces chat completions. Defaults to chat.Unconfigured.
	ChatHandler chat.Handler

	// Metrics instruments the gateway. Nil disables instrumentation.
	Metrics *metrics.Metrics
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Gateway, error) {
	toolReg := tools.NewRegistry(logger.With("component", "tool-registry"))
	if err := registerBuiltinTools(cfg, toolReg, logger); err != nil {
		return nil, err
	}

	connReg := conn.NewRegistry(conn.RegistryConfig{
		MaxConnections:   cfg.WebSocket.MaxConnections,
		HeartbeatTimeout: cfg.WebSocket.HeartbeatTimeout,
	}, logger)

	chatHandler := opts.ChatHandler
	if chatHandler == nil {
		chatHandler = chat.Unconfigured{}
	}

	gw := &Gateway{
		config:      cfg,
		toolReg:     toolReg,
		connReg:     connReg,
		monitor:     conn.NewMonitor(connReg, cfg.WebSocket.HeartbeatInterval, logger),
		chatHandler: chatHandler,
		metrics:     opts.Metrics,
		logger:      logger.With("component", "gateway"),
		serverID:    generateServerID(),
	}

	mux := http.NewServeMux()
	gw.registerRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// registerBuiltinTools wires the file tools and, when enabled, the device
// bridge into the registry, applying per-tool enabled flags from config.
func registerBuiltinTools(cfg *config.Config, reg *tools.Registry, logger *slog.Logger) error {
	fileTools, err := tools.NewFileTools(tools.FileConfig{
		BaseDir:           cfg.Tools.BaseDirectory,
		AllowedExtensions: cfg.Tools.AllowedExtensions,
		MaxFileSize:       cfg.Tools.MaxFileSize,
		CreateDirectories: cfg.Tools.CreateDirectories,
	}, logger.With("component", "file-tools"))
	if err != nil {
		return fmt.Errorf("creating file tools: %w", err)
	}
	fileTools.Register(reg)

	if cfg.Device.Enabled {
		bridge := tools.NewDeviceBridge(tools.DeviceConfig{
			Host:    cfg.Device.Host,
			Port:    cfg.Device.Port,
			Timeout: cfg.Device.Timeout,
		}, logger.With("component", "device-bridge"))
		bridge.Register(reg)
	}

	for name, enabled := range cfg.Tools.Enabled {
		if !reg.SetEnabled(name, enabled) {
			logger.Warn("enabled flag for unregistered tool", "tool", name)
		}
	}
	return nil
}

// registerRoutes wires the HTTP surface.
func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", g.handleIndex)
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/tools", g.handleListTools)
	mux.HandleFunc("/tools/call", g.handleToolCall)
	mux.HandleFunc("/stats", g.handleStats)
	mux.HandleFunc("/stats/reset", g.handleStatsReset)
	mux.HandleFunc("/connections", g.handleConnections)

	if g.config.WebSocket.Enabled {
		mux.HandleFunc("/ws", g.handleWebSocket)
	}
	if g.config.Metrics.Enabled {
		mux.Handle(g.config.Metrics.Path, g.metrics.Handler())
	}
}

// Run starts the gateway and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	if g.config.WebSocket.Enabled {
		monitorCtx, cancel := context.WithCancel(context.Background())
		g.stopMonitor = cancel
		go g.monitor.Run(monitorCtx)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String(), "server_id", g.serverID)
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops background work and disconnects every live connection.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	if g.stopMonitor != nil {
		g.stopMonitor()
	}
	g.connReg.Shutdown()
	g.metrics.SetLiveConnections(0)

	if err := g.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	return nil
}

// generateServerID creates a unique identifier for this gateway instance.
func generateServerID() string {
	return fmt.Sprintf("ward-gateway-%d", time.Now().UnixNano()%1000000)
}
