// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/tenantctx"
)

// ToolHandler implements one MCP tool's "tools/call" body: given the
// caller's tenant context and the raw `arguments` object, it performs
// whatever upstream call the tool maps to and returns a result. The
// concrete REST mapping is an external collaborator this core only
// calls through - registered handlers, not anything defined here.
type ToolHandler func(tc *tenantctx.TenantContext, arguments json.RawMessage) (*ToolResult, error)

// ToolDescriptor is the metadata "tools/list" advertises for one
// registered tool.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

type registeredTool struct {
	descriptor ToolDescriptor
	handler    ToolHandler
}

// Registry is the set of tools a gateway instance exposes over MCP.
// It is built once at startup and shared read-only across sessions -
// each session's Dispatcher holds a reference to the same Registry.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registeredTool
}

// NewRegistry builds an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registeredTool)}
}

// Register adds a tool under name, requiring name to scope requiredScope
// before the handler runs. Registering the same name twice panics -
// that is a startup wiring bug, not a runtime condition.
func (r *Registry) Register(descriptor ToolDescriptor, handler ToolHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[descriptor.Name]; exists {
		panic(fmt.Sprintf("mcp: tool %q registered twice", descriptor.Name))
	}
	r.tools[descriptor.Name] = registeredTool{descriptor: descriptor, handler: handler}
}

// List returns the registered tools' descriptors, sorted by name for a
// stable "tools/list" response.
func (r *Registry) List() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDescriptor, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) lookup(name string) (registeredTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}
