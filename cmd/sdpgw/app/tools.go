// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"

	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/mcp"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/tenantctx"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/upstream"
)

// registerTools wires the one tool this gateway ships out of the box:
// a generic passthrough that proxies an arbitrary method/path/body
// through the tenant's upstream client. Request-shaping and validation
// for specific ITSM operations (get_request, create_request, and so
// on) are a separate, per-deployment concern layered on top of this
// binary - this tool exists so the gateway is independently runnable
// and exercises the full session/dispatch/upstream path end to end.
func registerTools(registry *mcp.Registry, client *upstream.Client) {
	registry.Register(mcp.ToolDescriptor{
		Name:        "itsm_request",
		Description: "Issue an HTTP request to the tenant's ITSM instance",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"required": ["method", "path"],
			"properties": {
				"method": {"type": "string"},
				"path": {"type": "string"},
				"body": {"type": "string"}
			}
		}`),
	}, func(tc *tenantctx.TenantContext, arguments json.RawMessage) (*mcp.ToolResult, error) {
		return callITSMRequest(tc, client, arguments)
	})
}

type itsmRequestArgs struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Body   string `json:"body"`
}

func callITSMRequest(tc *tenantctx.TenantContext, client *upstream.Client, arguments json.RawMessage) (*mcp.ToolResult, error) {
	var args itsmRequestArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return mcp.NewErrorResult("invalid arguments: " + err.Error()), nil
	}

	var body []byte
	if args.Body != "" {
		body = []byte(args.Body)
	}

	resp, err := client.Do(tc, args.Method, args.Path, body)
	if err != nil {
		return nil, err
	}
	return mcp.NewTextResult(string(resp.Body)), nil
}
