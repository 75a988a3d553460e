package mcpservice

import (
	"context"
	"sync"

	"github.com/storekit/mcp-adapter/mcp"
	"github.com/storekit/mcp-adapter/router"
)

// protocolVersion is the MCP revision this adapter speaks.
const protocolVersion = "2025-06-18"

// SystemOption configures a System handler.
type SystemOption func(*System)

// WithInstructions sets the instructions text returned from initialize.
func WithInstructions(text string) SystemOption {
	return func(s *System) { s.instructions = text }
}

// WithRoots sets the roots returned from roots/list.
func WithRoots(roots ...mcp.Root) SystemOption {
	return func(s *System) { s.roots = roots }
}

// WithCompletionFunc installs a completion callback. Without one,
// completion/complete returns an empty suggestion set.
func WithCompletionFunc(fn func(ctx context.Context, req *mcp.CompleteRequest) (*mcp.CompleteResult, error)) SystemOption {
	return func(s *System) { s.completeFn = fn }
}

// System implements router.SystemHandler: the initialize handshake, ping,
// logging level, completion and roots.
type System struct {
	serverInfo   mcp.ImplementationInfo
	capabilities mcp.ServerCapabilities
	instructions string
	roots        []mcp.Root
	completeFn   func(ctx context.Context, req *mcp.CompleteRequest) (*mcp.CompleteResult, error)

	mu       sync.Mutex
	logLevel mcp.LoggingLevel
}

var _ router.SystemHandler = (*System)(nil)

// NewSystem builds a System handler advertising the given server identity
// and capabilities.
func NewSystem(serverInfo mcp.ImplementationInfo, capabilities mcp.ServerCapabilities, opts ...SystemOption) *System {
	s := &System{
		serverInfo:   serverInfo,
		capabilities: capabilities,
		logLevel:     mcp.LoggingLevelInfo,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *System) Initialize(ctx context.Context, req *mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	return &mcp.InitializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities:    s.capabilities,
		ServerInfo:      s.serverInfo,
		Instructions:    s.instructions,
	}, nil
}

func (s *System) Ping(ctx context.Context) error { return nil }

func (s *System) SetLogLevel(ctx context.Context, level mcp.LoggingLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logLevel = level
	return nil
}

// LogLevel returns the most recently set logging level.
func (s *System) LogLevel() mcp.LoggingLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logLevel
}

func (s *System) Complete(ctx context.Context, req *mcp.CompleteRequest) (*mcp.CompleteResult, error) {
	if s.completeFn != nil {
		return s.completeFn(ctx, req)
	}
	res := &mcp.CompleteResult{}
	res.Completion.Values = []string{}
	return res, nil
}

func (s *System) ListRoots(ctx context.Context) (*mcp.ListRootsResult, error) {
	roots := s.roots
	if roots == nil {
		roots = []mcp.Root{}
	}
	return &mcp.ListRootsResult{Roots: roots}, nil
}
