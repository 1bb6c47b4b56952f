// ABOUTME: Registry of named tools with per-tool invocation statistics.
// ABOUTME: Invoke is the executor boundary: every handler failure becomes a structured result.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Handler executes one tool invocation against an argument mapping.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Descriptor is the static definition of a callable tool.
type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`

	// Synonyms maps accepted argument aliases to their canonical name.
	// Applied once at the executor boundary, before the handler runs.
	Synonyms map[string]string `json:"-"`
}

// Result is the uniform shape every invocation produces. Handler failures
// never escape the executor; they surface here as Success=false plus a
// human-readable error.
type Result struct {
	Success bool   `json:"success"`
	Result  any    `json:"result"`
	Error   string `json:"error,omitempty"`
}

// Stats is the running invocation record for one tool.
type Stats struct {
	CallCount    int64      `json:"call_count"`
	SuccessCount int64      `json:"success_count"`
	ErrorCount   int64      `json:"error_count"`
	LastUsed     *time.Time `json:"last_used"`
}

// tool pairs a descriptor with its handler and mutable state. The stats
// mutex makes concurrent increments of the same tool lose nothing.
type tool struct {
	desc    Descriptor
	handler Handler
	enabled bool

	mu    sync.Mutex
	stats Stats
}

// Registry owns the set of invocable tools.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*tool
	order  []string
	logger *slog.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*tool),
		logger: logger,
	}
}

// Register adds a tool keyed by its descriptor name. Re-registering a name
// replaces the prior descriptor and handler but keeps the original position
// in the catalog; last write wins.
func (r *Registry) Register(desc Descriptor, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[desc.Name]; !exists {
		r.order = append(r.order, desc.Name)
	}
	r.tools[desc.Name] = &tool{desc: desc, handler: h, enabled: true}
	r.logger.Info("tool registered", "tool", desc.Name)
}

// SetEnabled toggles a tool in or out of the advertised catalog. The
// descriptor stays registered so the tool can be reactivated later.
// Returns false if the name is unknown.
func (r *Registry) SetEnabled(name string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tools[name]
	if !ok {
		return false
	}
	t.enabled = enabled
	r.logger.Info("tool enabled flag changed", "tool", name, "enabled", enabled)
	return true
}

// List returns the enabled descriptors in insertion order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descs := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		if t := r.tools[name]; t.enabled {
			descs = append(descs, t.desc)
		}
	}
	return descs
}

// Names returns the enabled tool names in insertion order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.order))
	for _, name := range r.order {
		if r.tools[name].enabled {
			names = append(names, name)
		}
	}
	return names
}

// lookup returns an enabled tool by name.
func (r *Registry) lookup(name string) (*tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok || !t.enabled {
		return nil, false
	}
	return t, true
}

// Invoke looks up and executes a tool. An unknown (or disabled) name yields
// a failure result listing the currently available tools so the caller can
// self-correct without a second round trip. Handler errors and panics are
// caught here and converted into failure results.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) *Result {
	t, ok := r.lookup(name)
	if !ok {
		r.logger.Warn("unknown tool invoked", "tool", name)
		return &Result{
			Success: false,
			Error:   fmt.Sprintf("%v: %q (available tools: %s)", ErrUnknownTool, name, strings.Join(r.Names(), ", ")),
		}
	}

	args = unwrapKwargs(args)
	args = applySynonyms(t.desc.Synonyms, args)

	start := time.Now()
	t.recordCall(start)

	out, err := t.run(ctx, args)
	duration := time.Since(start)

	if err != nil {
		t.recordError()
		r.logger.Error("tool execution failed",
			"tool", name,
			"duration", duration,
			"error", err,
		)
		return &Result{Success: false, Error: err.Error()}
	}

	t.recordSuccess()
	r.logger.Info("tool executed",
		"tool", name,
		"duration", duration,
	)
	return &Result{Success: true, Result: out}
}

// run executes the handler, converting a panic into an error so a
// misbehaving handler cannot take down the caller's processing loop.
func (t *tool) run(ctx context.Context, args map[string]any) (out any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool %q panicked: %v", t.desc.Name, rec)
		}
	}()
	return t.handler(ctx, args)
}

func (t *tool) recordCall(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.CallCount++
	used := at
	t.stats.LastUsed = &used
}

func (t *tool) recordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.SuccessCount++
}

func (t *tool) recordError() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.ErrorCount++
}

func (t *tool) snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Stats returns the running statistics for one tool.
func (r *Registry) Stats(name string) (Stats, bool) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return Stats{}, false
	}
	return t.snapshot(), true
}

// AllStats returns statistics for every registered tool, including
// disabled ones, keyed by name.
func (r *Registry) AllStats() map[string]Stats {
	r.mu.RLock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	r.mu.RUnlock()

	sort.Strings(names)
	stats := make(map[string]Stats, len(names))
	for _, name := range names {
		r.mu.RLock()
		t := r.tools[name]
		r.mu.RUnlock()
		stats[name] = t.snapshot()
	}
	return stats
}

// ResetStats zeroes the statistics of every registered tool.
func (r *Registry) ResetStats() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.tools {
		t.mu.Lock()
		t.stats = Stats{}
		t.mu.Unlock()
	}
	r.logger.Info("tool statistics reset")
}
