// ABOUTME: Boundary to the external chat/model collaborator.
// ABOUTME: The gateway routes chat messages here and forwards the structured response.

package chat

import (
	"context"
)

// Request is one user chat turn handed to the collaborator.
type Request struct {
	// ConnectionID identifies the originating duplex connection.
	ConnectionID string

	// Content is the user's message text.
	Content string

	// Model optionally selects a model; empty means the collaborator's default.
	Model string

	// Metadata carries any extra fields from the inbound envelope.
	Metadata map[string]any
}

// ToolCall records one tool invocation the collaborator made while
// producing a response.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
}

// Response is the collaborator's structured result.
type Response struct {
	Success   bool       `json:"success"`
	Result    string     `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	ModelUsed string     `json:"model_used,omitempty"`
}

// Handler produces chat completions. How completions are generated is
// outside this gateway; implementations may call back into the tool
// registry's Invoke while handling a turn.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// Unconfigured is the default Handler when no collaborator is wired. Every
// request fails with a structured response rather than an error so the
// connection stays usable.
type Unconfigured struct{}

// Handle reports that no chat backend is configured.
func (Unconfigured) Handle(_ context.Context, _ *Request) (*Response, error) {
	return &Response{
		Success: false,
		Error:   "no chat backend configured",
	}, nil
}
