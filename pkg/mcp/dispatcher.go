// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	gwerrors "github.com/PTTG-IT/SDP-MCP-sub003/pkg/errors"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/sse"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/tenantctx"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/tracing"
)

var tracer = otel.Tracer(tracing.ServiceTracerName)

// Dispatcher binds one session's tenant to the shared tool Registry. A
// new Dispatcher is built per SSE session (see NewDispatcherFactory),
// so every dispatched call carries that session's TenantContext
// without any ambient lookup.
type Dispatcher struct {
	tc       *tenantctx.TenantContext
	registry *Registry
}

// NewDispatcherFactory returns a constructor suitable for wiring
// directly into sse.NewHandler's dispatcher-factory parameter: one
// Dispatcher per session, all sharing registry.
func NewDispatcherFactory(registry *Registry) func(*tenantctx.TenantContext) sse.Dispatcher {
	return func(tc *tenantctx.TenantContext) sse.Dispatcher {
		return &Dispatcher{tc: tc, registry: registry}
	}
}

// Dispatch decodes one JSON-RPC body, routes it, and re-encodes the
// result. A notification (no "id") is executed for effect and returns
// nil, nil - the session worker never emits a response for it.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) ([]byte, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return encode(Response{JSONRPC: "2.0", Error: &RPCError{Code: CodeParseError, Message: "invalid JSON-RPC request"}})
	}

	notification := isNotification(raw)
	tc := tenantctx.Rebind(d.tc, ctx)

	result, rpcErr := d.route(tc, req)
	if notification {
		return nil, nil
	}

	resp := Response{JSONRPC: "2.0", ID: req.ID}
	switch {
	case rpcErr != nil:
		resp.Error = rpcErr
	case result != nil:
		encoded, err := json.Marshal(result)
		if err != nil {
			resp.Error = &RPCError{Code: CodeInternalError, Message: "failed to encode result"}
			break
		}
		resp.Result = encoded
	}
	return encode(resp)
}

// route dispatches by method, returning either a JSON-encodable result
// (success) or an RPCError (JSON-RPC-level failure). Tool-invocation
// failures are NOT returned here as RPCError unless they are
// transport/auth failures; ordinary tool errors are folded into the
// successful result as an isError content block.
func (d *Dispatcher) route(tc *tenantctx.TenantContext, req Request) (any, *RPCError) {
	switch req.Method {
	case "initialize":
		return handshakeResult(), nil
	case "notifications/initialized":
		return struct{}{}, nil
	case "tools/list":
		return struct {
			Tools []ToolDescriptor `json:"tools"`
		}{Tools: d.registry.List()}, nil
	case "tools/call":
		return d.callTool(tc, req.Params)
	default:
		return nil, &RPCError{Code: CodeMethodNotFound, Message: "unknown method: " + req.Method}
	}
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (d *Dispatcher) callTool(tc *tenantctx.TenantContext, rawParams json.RawMessage) (any, *RPCError) {
	var params callToolParams
	if err := json.Unmarshal(rawParams, &params); err != nil {
		return nil, &RPCError{Code: CodeInvalidParams, Message: "invalid tools/call params"}
	}

	tool, ok := d.registry.lookup(params.Name)
	if !ok {
		return NewErrorResult("unknown tool: " + params.Name), nil
	}

	ctx, span := tracer.Start(tc, "mcp.tools/call")
	span.SetAttributes(attribute.String("tool.name", params.Name), attribute.String("tenant.id", tc.TenantID))
	defer span.End()
	tc = tenantctx.Rebind(tc, ctx)

	result, err := tool.handler(tc, params.Arguments)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	if err == nil {
		return result, nil
	}

	// Transport/auth failures are protocol-level errors; every other
	// tool failure is folded into an isError content block so the
	// agent sees it as a normal (if unsuccessful) tool result.
	if kind := gwerrors.KindOf(err); kind == gwerrors.KindAuth || kind == gwerrors.KindPermissionDenied {
		return nil, &RPCError{Code: CodeAuthError, Message: err.Error()}
	}

	env := gwerrors.ToEnvelope(err)
	encoded, marshalErr := json.Marshal(env)
	if marshalErr != nil {
		return NewErrorResult(err.Error()), nil
	}
	return NewErrorResult(string(encoded)), nil
}

func handshakeResult() any {
	return struct {
		ProtocolVersion string `json:"protocolVersion"`
		ServerInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
		Capabilities struct {
			Tools struct{} `json:"tools"`
		} `json:"capabilities"`
	}{ProtocolVersion: protocolVersion}
}

func encode(resp Response) ([]byte, error) {
	return json.Marshal(resp)
}
