package mcpservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/storekit/mcp-adapter/mcp"
	"github.com/storekit/mcp-adapter/router"
)

// ToolHandler is the function signature used to handle a tool invocation.
type ToolHandler func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error)

// StaticTool pairs an MCP tool descriptor with its handler.
type StaticTool struct {
	Descriptor mcp.Tool
	Handler    ToolHandler
}

// ToolsOption configures a StaticTools container.
type ToolsOption func(*StaticTools)

// WithToolsPageSize sets the page size used by tools/list.
func WithToolsPageSize(n int) ToolsOption {
	return func(c *StaticTools) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// StaticTools is a registration-based router.ToolsHandler. Tools are
// listed in registration order; list pagination uses opaque offset
// cursors.
type StaticTools struct {
	mu       sync.RWMutex
	tools    []StaticTool
	byName   map[string]int
	pageSize int
}

var _ router.ToolsHandler = (*StaticTools)(nil)

// NewStaticTools constructs an empty container.
func NewStaticTools(opts ...ToolsOption) *StaticTools {
	c := &StaticTools{byName: make(map[string]int), pageSize: 50}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Add registers tools. Re-registering a name replaces the previous entry.
func (c *StaticTools) Add(tools ...StaticTool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tool := range tools {
		if idx, ok := c.byName[tool.Descriptor.Name]; ok {
			c.tools[idx] = tool
			continue
		}
		c.byName[tool.Descriptor.Name] = len(c.tools)
		c.tools = append(c.tools, tool)
	}
}

func (c *StaticTools) ListTools(ctx context.Context, cursor string) (*mcp.ListToolsResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	offset, err := parseCursor(cursor, len(c.tools))
	if err != nil {
		return nil, err
	}

	end := offset + c.pageSize
	if end > len(c.tools) {
		end = len(c.tools)
	}
	out := &mcp.ListToolsResult{Tools: make([]mcp.Tool, 0, end-offset)}
	for _, tool := range c.tools[offset:end] {
		out.Tools = append(out.Tools, tool.Descriptor)
	}
	if end < len(c.tools) {
		out.NextCursor = strconv.Itoa(end)
	}
	return out, nil
}

func (c *StaticTools) ListAllTools(ctx context.Context) (*mcp.ListToolsResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := &mcp.ListToolsResult{Tools: make([]mcp.Tool, 0, len(c.tools))}
	for _, tool := range c.tools {
		out.Tools = append(out.Tools, tool.Descriptor)
	}
	return out, nil
}

func (c *StaticTools) CallTool(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c.mu.RLock()
	idx, ok := c.byName[req.Name]
	var tool StaticTool
	if ok {
		tool = c.tools[idx]
	}
	c.mu.RUnlock()

	if !ok {
		return nil, router.InvalidParamsf("unknown tool %q", req.Name)
	}
	return tool.Handler(ctx, req)
}

// NewTool constructs a StaticTool from a typed argument struct. The input
// schema is reflected from A; unknown argument fields are rejected at call
// time.
func NewTool[A any](name, description string, fn func(ctx context.Context, args A) (*mcp.CallToolResult, error)) StaticTool {
	desc := mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: reflectInputSchema[A](),
	}

	handler := func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args A
		if len(req.Arguments) > 0 {
			dec := json.NewDecoder(bytes.NewReader(req.Arguments))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&args); err != nil {
				return ErrorResult("invalid arguments: %v", err), nil
			}
		}
		return fn(ctx, args)
	}

	return StaticTool{Descriptor: desc, Handler: handler}
}

// TextResult builds a successful single-text-block tool result.
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: text}}}
}

// ErrorResult builds a tool-level failure result. The JSON-RPC response is
// still a success; IsError signals the fault to the model.
func ErrorResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.ContentBlock{{Type: "text", Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

// reflectInputSchema reflects a Go type A via invopop/jsonschema and
// converts it to the simplified mcp.ToolInputSchema. Non-object types
// collapse to an empty object schema.
func reflectInputSchema[A any]() mcp.ToolInputSchema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(new(A))
	if s == nil || s.Type != "object" {
		return mcp.ToolInputSchema{Type: "object", Properties: map[string]mcp.SchemaProperty{}}
	}

	props := make(map[string]mcp.SchemaProperty)
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			props[el.Key] = mcp.SchemaProperty{
				Type:        el.Value.Type,
				Description: el.Value.Description,
			}
		}
	}
	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: props,
		Required:   append([]string(nil), s.Required...),
	}
}

// parseCursor interprets an offset cursor, rejecting values that do not
// point inside the collection.
func parseCursor(cursor string, size int) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	offset, err := strconv.Atoi(cursor)
	if err != nil || offset < 0 || offset > size {
		return 0, router.InvalidParamsf("invalid cursor %q", cursor)
	}
	return offset, nil
}
