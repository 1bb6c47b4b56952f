// ABOUTME: Configuration loading and parsing for ward-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete ward-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Tools     ToolsConfig     `yaml:"tools"`
	Device    DeviceConfig    `yaml:"device"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// WebSocketConfig holds duplex connection and heartbeat configuration
type WebSocketConfig struct {
	Enabled           bool          `yaml:"enabled"`
	MaxConnections    int           `yaml:"max_connections"`
	HeartbeatInterval time.Duration `yaml:"-"`
	HeartbeatTimeout  time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	HeartbeatIntervalRaw string `yaml:"heartbeat_interval"`
	HeartbeatTimeoutRaw  string `yaml:"heartbeat_timeout"`
}

// ToolsConfig holds file tool sandboxing configuration
type ToolsConfig struct {
	BaseDirectory     string          `yaml:"base_directory"`
	AllowedExtensions []string        `yaml:"allowed_extensions"`
	MaxFileSize       int64           `yaml:"max_file_size"`
	CreateDirectories bool            `yaml:"create_directories"`
	Enabled           map[string]bool `yaml:"enabled"` // per-tool override; absent means enabled
}

// DeviceConfig holds the companion device agent endpoint configuration
type DeviceConfig struct {
	Enabled bool          `yaml:"enabled"`
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{HTTPAddr: ":8080"},
		WebSocket: WebSocketConfig{
			Enabled:           true,
			MaxConnections:    100,
			HeartbeatInterval: 30 * time.Second,
			HeartbeatTimeout:  90 * time.Second,
		},
		Tools: ToolsConfig{
			BaseDirectory: "./sandbox",
			MaxFileSize:   1 << 20,
		},
		Device: DeviceConfig{
			Host:    "127.0.0.1",
			Port:    8765,
			Timeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Resolve returns the first config path that exists, checking the
// WARD_CONFIG environment variable, then ./config.yaml, then
// ~/.config/ward/gateway.yaml. An empty string means use defaults.
func Resolve() string {
	if p := os.Getenv("WARD_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".config", "ward", "gateway.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Tools.BaseDirectory == "" {
		return fmt.Errorf("tools.base_directory is required")
	}
	if c.Tools.MaxFileSize < 0 {
		return fmt.Errorf("tools.max_file_size must not be negative")
	}

	if c.WebSocket.Enabled {
		if c.WebSocket.MaxConnections < 0 {
			return fmt.Errorf("websocket.max_connections must not be negative")
		}
		if c.WebSocket.HeartbeatInterval <= 0 {
			return fmt.Errorf("websocket.heartbeat_interval must be positive")
		}
		if c.WebSocket.HeartbeatTimeout < c.WebSocket.HeartbeatInterval {
			return fmt.Errorf("websocket.heartbeat_timeout must be at least the heartbeat interval")
		}
	}

	if c.Device.Enabled {
		if c.Device.Host == "" {
			return fmt.Errorf("device.host is required when device is enabled")
		}
		if c.Device.Port <= 0 || c.Device.Port > 65535 {
			return fmt.Errorf("device.port must be a valid port number")
		}
	}

	if c.Metrics.Enabled && c.Metrics.Path == "" {
		return fmt.Errorf("metrics.path is required when metrics are enabled")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.WebSocket.HeartbeatIntervalRaw != "" {
		cfg.WebSocket.HeartbeatInterval, err = time.ParseDuration(cfg.WebSocket.HeartbeatIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing heartbeat_interval %q: %w", cfg.WebSocket.HeartbeatIntervalRaw, err)
		}
	}

	if cfg.WebSocket.HeartbeatTimeoutRaw != "" {
		cfg.WebSocket.HeartbeatTimeout, err = time.ParseDuration(cfg.WebSocket.HeartbeatTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing heartbeat_timeout %q: %w", cfg.WebSocket.HeartbeatTimeoutRaw, err)
		}
	}

	if cfg.Device.TimeoutRaw != "" {
		cfg.Device.Timeout, err = time.ParseDuration(cfg.Device.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing device timeout %q: %w", cfg.Device.TimeoutRaw, err)
		}
	}

	return nil
}

// ToolEnabled reports whether a tool is enabled. Tools without an explicit
// entry default to enabled.
func (c *ToolsConfig) ToolEnabled(name string) bool {
	enabled, ok := c.Enabled[name]
	if !ok {
		return true
	}
	return enabled
}
