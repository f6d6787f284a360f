// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// MCPCaller abstracts the MCP connection a skill's manifest may declare.
type MCPCaller interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	Close() error
}

// MCPDialFunc connects to the MCP server declared by a skill manifest.
type MCPDialFunc func(ctx context.Context, spec *MCPSpec) (MCPCaller, error)

const mcpInitTimeout = 10 * time.Second

// dialMCP is the default dialer backed by mcp-go.
func dialMCP(ctx context.Context, spec *MCPSpec) (MCPCaller, error) {
	var (
		c   *client.Client
		err error
	)
	switch spec.Transport {
	case "stdio":
		c, err = client.NewStdioMCPClient(spec.Command, nil, spec.Args...)
	case "http":
		c, err = client.NewStreamableHttpClient(spec.URL)
	default:
		return nil, fmt.Errorf("unknown mcp transport %q", spec.Transport)
	}
	if err != nil {
		return nil, err
	}

	if err := c.Start(ctx); err != nil {
		return nil, err
	}

	initCtx, cancel := context.WithTimeout(ctx, mcpInitTimeout)
	defer cancel()

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "heuris-client",
		Version: "0.1.0",
	}
	if _, err := c.Initialize(initCtx, initRequest); err != nil {
		c.Close()
		return nil, err
	}

	return &mcpClient{client: c}, nil
}

type mcpClient struct {
	client *client.Client
}

func (m *mcpClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	resp, err := m.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}
	return resp.Tools, nil
}

func (m *mcpClient) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return m.client.CallTool(ctx, req)
}

func (m *mcpClient) Close() error {
	return m.client.Close()
}

// connectMCP dials the skill's MCP server and caches its tool list.
func (r *Registry) connectMCP(ctx context.Context, name string) error {
	r.mu.Lock()
	e, ok := r.skills[name]
	if !ok || e.spec.MCP == nil || e.mcp != nil {
		r.mu.Unlock()
		return nil
	}
	spec := e.spec.MCP
	dial := r.dial
	r.mu.Unlock()

	caller, err := dial(ctx, spec)
	if err != nil {
		return err
	}
	tools, err := caller.ListTools(ctx)
	if err != nil {
		caller.Close()
		return err
	}

	r.mu.Lock()
	e.mcp = caller
	e.mcpTools = make([]ToolDecl, 0, len(tools))
	for _, t := range tools {
		e.mcpTools = append(e.mcpTools, mcpToolDecl(t))
	}
	r.mu.Unlock()
	return nil
}

func mcpToolDecl(t mcp.Tool) ToolDecl {
	decl := ToolDecl{Name: t.Name, Description: t.Description}
	required := make(map[string]bool, len(t.InputSchema.Required))
	for _, name := range t.InputSchema.Required {
		required[name] = true
	}
	for name, raw := range t.InputSchema.Properties {
		spec := ParamSpec{Name: name, Type: "string", Required: required[name]}
		if attrs, ok := raw.(map[string]any); ok {
			if s, ok := attrs["type"].(string); ok {
				spec.Type = normalizeType(s)
			}
			if s, ok := attrs["description"].(string); ok {
				spec.Description = s
			}
		}
		decl.Params = append(decl.Params, spec)
	}
	return decl
}

// mcpToolFunc wraps an MCP tool as a ToolFunc. Results follow the same
// contract as in-process tools: structured content passes through,
// plain text is coerced into a result mapping.
func (r *Registry) mcpToolFunc(caller MCPCaller, tool string) ToolFunc {
	return func(ctx context.Context, _ Invocation, args map[string]any) (any, error) {
		result, err := caller.CallTool(ctx, tool, args)
		if err != nil {
			return nil, err
		}
		return mcpResultValue(result)
	}
}

func mcpResultValue(result *mcp.CallToolResult) (any, error) {
	if result == nil {
		return nil, errors.New("mcp tool result is nil")
	}
	if result.IsError {
		return nil, fmt.Errorf("mcp tool returned error: %s", extractTextContent(result.Content))
	}
	if result.StructuredContent != nil {
		return result.StructuredContent, nil
	}
	if text := extractTextContent(result.Content); text != "" {
		return text, nil
	}
	return result, nil
}

func extractTextContent(items []mcp.Content) string {
	if len(items) == 0 {
		return ""
	}
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}
