// Package config handles configuration loading for ward-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from WARD_CONFIG environment variable
//  2. ./config.yaml (current directory)
//  3. ~/.config/ward/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	tools:
//	  base_directory: "${WARD_SANDBOX_DIR}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	websocket:
//	  heartbeat_interval: "30s"
//	  heartbeat_timeout: "90s"
package config
