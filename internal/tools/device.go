// ABOUTME: Device bridge forwarding control commands to a companion device agent.
// ABOUTME: Exposes the send_device_command and check_device_status tools.

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DeviceConfig locates the device agent's HTTP endpoint.
type DeviceConfig struct {
	Host    string
	Port    int
	Timeout time.Duration
}

// DeviceBridge forwards commands to the device agent over HTTP.
type DeviceBridge struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewDeviceBridge builds a bridge against the configured device agent.
func NewDeviceBridge(cfg DeviceConfig, logger *slog.Logger) *DeviceBridge {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviceBridge{
		baseURL: fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Register adds the device tools to the registry.
func (b *DeviceBridge) Register(r *Registry) {
	r.Register(Descriptor{
		Name:        "send_device_command",
		Description: "Forward a control command to the connected device",
		InputSchema: []byte(`{"type":"object","properties":{"command":{"type":"string","description":"Command name to execute"},"args":{"type":"object","description":"Optional command arguments"}},"required":["command"]}`),
		Synonyms: map[string]string{
			"cmd":    "command",
			"action": "command",
		},
	}, b.SendCommand)

	r.Register(Descriptor{
		Name:        "check_device_status",
		Description: "Check whether the device agent is reachable",
		InputSchema: []byte(`{"type":"object","properties":{}}`),
	}, b.CheckStatus)
}

// commandRequest is the wire format the device agent expects.
type commandRequest struct {
	Command   string         `json:"command"`
	Args      map[string]any `json:"args"`
	Timestamp int64          `json:"timestamp"`
}

// SendCommand forwards a single command and returns the agent's response.
func (b *DeviceBridge) SendCommand(ctx context.Context, args map[string]any) (any, error) {
	command, err := stringArg(args, "command")
	if err != nil {
		return nil, err
	}
	cmdArgs, err := mapArg(args, "args")
	if err != nil {
		return nil, err
	}
	if cmdArgs == nil {
		cmdArgs = map[string]any{}
	}

	payload, err := json.Marshal(commandRequest{
		Command:   command,
		Args:      cmdArgs,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encoding command: %v", ErrIOFailure, err)
	}

	url := b.baseURL + "/api/command/execute"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrIOFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: device agent unreachable: %v", ErrIOFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading device response: %v", ErrIOFailure, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: device agent returned %d: %s", ErrIOFailure, resp.StatusCode, bytes.TrimSpace(body))
	}

	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: device response is not JSON: %v", ErrIOFailure, err)
	}

	b.logger.Info("device command forwarded",
		"command", command,
		"duration", time.Since(start),
	)
	return result, nil
}

// CheckStatus probes the device agent's health endpoint.
func (b *DeviceBridge) CheckStatus(ctx context.Context, _ map[string]any) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/health", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrIOFailure, err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return map[string]any{
			"reachable": false,
			"endpoint":  b.baseURL,
			"error":     err.Error(),
		}, nil
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return map[string]any{
		"reachable": resp.StatusCode == http.StatusOK,
		"endpoint":  b.baseURL,
		"status":    resp.StatusCode,
	}, nil
}
