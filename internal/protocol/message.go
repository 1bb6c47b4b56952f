// ABOUTME: Wire-level message envelope and the set of recognized message kinds.
// ABOUTME: Every duplex frame is a JSON envelope of {type, data}.

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind identifies the purpose of an envelope.
type Kind string

// The recognized message kinds. Ping and pong belong to the heartbeat;
// chat, chat_response and processing are routed to the chat collaborator;
// error and system are produced by the gateway itself.
const (
	KindChat         Kind = "chat"
	KindConfig       Kind = "config"
	KindPing         Kind = "ping"
	KindPong         Kind = "pong"
	KindProcessing   Kind = "processing"
	KindChatResponse Kind = "chat_response"
	KindError        Kind = "error"
	KindSystem       Kind = "system"
)

// ErrUnrecognizedKind indicates an envelope whose type is not one of the
// recognized kinds. The connection stays open; callers answer with an
// error envelope instead.
var ErrUnrecognizedKind = errors.New("unrecognized message kind")

var recognized = map[Kind]bool{
	KindChat:         true,
	KindConfig:       true,
	KindPing:         true,
	KindPong:         true,
	KindProcessing:   true,
	KindChatResponse: true,
	KindError:        true,
	KindSystem:       true,
}

// Recognized reports whether k is one of the enumerated kinds.
func (k Kind) Recognized() bool {
	return recognized[k]
}

// Envelope is one protocol unit exchanged over a duplex connection.
type Envelope struct {
	Type Kind           `json:"type"`
	Data map[string]any `json:"data"`
}

// Decode parses a raw frame into an Envelope. A syntactically valid frame
// with an unknown type is returned alongside ErrUnrecognizedKind so the
// caller can echo the offending kind back to the sender.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	if !env.Type.Recognized() {
		return &env, fmt.Errorf("%w: %q", ErrUnrecognizedKind, env.Type)
	}
	if env.Data == nil {
		env.Data = map[string]any{}
	}
	return &env, nil
}

// New builds an outbound envelope. Kinds that carry a canonical timestamp
// (ping, pong, processing, error, system) are stamped with the current time.
func New(kind Kind, data map[string]any) *Envelope {
	if data == nil {
		data = map[string]any{}
	}
	switch kind {
	case KindPing, KindPong, KindProcessing, KindError, KindSystem, KindChatResponse:
		if _, ok := data["timestamp"]; !ok {
			data["timestamp"] = time.Now().Unix()
		}
	}
	return &Envelope{Type: kind, Data: data}
}

// Ping builds a heartbeat probe envelope.
func Ping() *Envelope {
	return New(KindPing, nil)
}

// Pong builds a heartbeat reply. If the originating ping carried a
// timestamp it is echoed back as ping_timestamp.
func Pong(pingTimestamp any) *Envelope {
	data := map[string]any{}
	if pingTimestamp != nil {
		data["ping_timestamp"] = pingTimestamp
	}
	return New(KindPong, data)
}

// Error builds an error envelope with a human-readable message.
func Error(message string) *Envelope {
	return New(KindError, map[string]any{"message": message})
}

// Errorf builds an error envelope from a format string.
func Errorf(format string, args ...any) *Envelope {
	return Error(fmt.Sprintf(format, args...))
}

// System builds a system notice. Extra fields are merged into the data
// mapping alongside the message.
func System(message string, extra map[string]any) *Envelope {
	data := map[string]any{"message": message}
	for k, v := range extra {
		data[k] = v
	}
	return New(KindSystem, data)
}

// Processing builds the in-progress notice sent before a chat response.
func Processing(message string) *Envelope {
	return New(KindProcessing, map[string]any{"message": message})
}
