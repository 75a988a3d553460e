package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/storekit/mcp-adapter/mcp"
)

// ErrNotSupported is returned by capability handlers for operations their
// variant does not implement. The router answers such methods with a
// method-not-found error rather than an internal fault: an unsupported
// operation on a capability is an expected branch.
var ErrNotSupported = errors.New("operation not supported")

// ParamError marks a handler failure caused by the shape or content of the
// request parameters. The router maps it to an invalid-params error.
type ParamError struct {
	Reason string
}

func (e *ParamError) Error() string { return e.Reason }

// InvalidParamsf builds a ParamError with a formatted reason.
func InvalidParamsf(format string, args ...any) error {
	return &ParamError{Reason: fmt.Sprintf(format, args...)}
}

// SystemHandler owns the lifecycle and utility methods: initialize, ping,
// logging level, completion and roots.
type SystemHandler interface {
	Initialize(ctx context.Context, req *mcp.InitializeRequest) (*mcp.InitializeResult, error)
	Ping(ctx context.Context) error
	SetLogLevel(ctx context.Context, level mcp.LoggingLevel) error
	Complete(ctx context.Context, req *mcp.CompleteRequest) (*mcp.CompleteResult, error)
	ListRoots(ctx context.Context) (*mcp.ListRootsResult, error)
}

// ToolsHandler owns the tools capability.
type ToolsHandler interface {
	ListTools(ctx context.Context, cursor string) (*mcp.ListToolsResult, error)
	// ListAllTools ignores pagination and returns the full tool set.
	ListAllTools(ctx context.Context) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// ResourcesHandler owns the resources capability.
type ResourcesHandler interface {
	ListResources(ctx context.Context, cursor string) (*mcp.ListResourcesResult, error)
	ListTemplates(ctx context.Context, cursor string) (*mcp.ListResourceTemplatesResult, error)
	ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error)
	Subscribe(ctx context.Context, uri string) error
	Unsubscribe(ctx context.Context, uri string) error
}

// PromptsHandler owns the prompts capability.
type PromptsHandler interface {
	ListPrompts(ctx context.Context, cursor string) (*mcp.ListPromptsResult, error)
	GetPrompt(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error)
}
