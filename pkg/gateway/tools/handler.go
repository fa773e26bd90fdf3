// Package tools implements ToolHandler: a per-session tool registry,
// SYSTEM_CTL vs. user-level dispatch, and concurrent execution of a turn's
// collected tool calls.
package tools

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/relaytone/xiaozhi-engine/pkg/core/di"
	"github.com/relaytone/xiaozhi-engine/pkg/core/ports"
	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
)

// Registry is a per-session tool registry: every tool registered for the
// session, merged into one lookup by name. Device-declared MCP tools are
// not added to it.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]ports.Tool
}

// NewRegistry returns an empty per-session registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]ports.Tool)}
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(tool ports.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (ports.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the schemas for every registered tool, for inclusion
// in an LLM call when intent mode is function_call.
func (r *Registry) Definitions() []types.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Definition())
	}
	return out
}

// Handler dispatches tool calls against a per-session Registry.
type Handler struct {
	registries map[string]*Registry
	mu         sync.RWMutex
	container  *di.Container
	bus        any // *bus.EventBus, kept as any to avoid an import cycle with ports.ToolContext
}

// New constructs a Handler. container and eventBus are what SYSTEM_CTL
// tools receive via ports.ToolContext.
func New(container *di.Container, eventBus any) *Handler {
	return &Handler{
		registries: make(map[string]*Registry),
		container:  container,
		bus:        eventBus,
	}
}

// RegistryFor returns (creating if necessary) the per-session registry for
// sessionID.
func (h *Handler) RegistryFor(sessionID string) *Registry {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.registries[sessionID]
	if !ok {
		r = NewRegistry()
		h.registries[sessionID] = r
	}
	return r
}

// Cleanup drops sessionID's registry at session teardown.
func (h *Handler) Cleanup(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.registries, sessionID)
}

// Execute looks up call.Name in sessionID's registry, classifies it
// SYSTEM_CTL vs. user-level, and executes it. Unknown tools return an
// ERROR action rather than an error return, per spec.md #4.9 — a missing
// tool is a normal outcome the caller speaks back, not a fault.
func (h *Handler) Execute(ctx context.Context, sessionID string, call types.ToolCall) types.ActionResponse {
	reg := h.RegistryFor(sessionID)
	tool, ok := reg.Get(call.Name)
	if !ok {
		return types.ActionResponse{Action: types.ActionError, Text: fmt.Sprintf("unknown tool %q", call.Name), ToolCallID: call.ID}
	}

	var toolCtx *ports.ToolContext
	if tool.SystemCtl() {
		toolCtx = &ports.ToolContext{SessionID: sessionID, Container: h.container, Bus: h.bus}
	}

	resp, err := tool.Execute(ctx, toolCtx, call.Arguments)
	if err != nil {
		return types.ActionResponse{Action: types.ActionError, Text: err.Error(), ToolCallID: call.ID}
	}
	resp.ToolCallID = call.ID
	return resp
}

// ExecuteAll runs every call in calls concurrently (bounded by
// errgroup.Group's default of unlimited goroutines, matched one-per-call
// since a turn rarely has more than a handful of tool calls) and returns
// their ActionResponses in the same order as calls.
func (h *Handler) ExecuteAll(ctx context.Context, sessionID string, calls []types.ToolCall) []types.ActionResponse {
	results := make([]types.ActionResponse, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			results[i] = h.Execute(gctx, sessionID, call)
			return nil
		})
	}
	_ = g.Wait() // Execute never returns an error; it encodes failure as ActionError
	return results
}
