package mcpservice

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/storekit/mcp-adapter/mcp"
	"github.com/storekit/mcp-adapter/router"
)

// PromptVariant is the behavior behind a registered prompt. The two
// variants — builder-based static messages and ability-based callbacks —
// satisfy the same interface, so a variant that cannot serve an operation
// reports it with an ordinary error value instead of a fault.
type PromptVariant interface {
	Render(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error)
}

// BuilderPrompt renders a fixed message sequence, substituting {{name}}
// placeholders from the request arguments.
type BuilderPrompt struct {
	Description string
	Messages    []mcp.PromptMessage
}

func (p BuilderPrompt) Render(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
	messages := make([]mcp.PromptMessage, len(p.Messages))
	for i, msg := range p.Messages {
		rendered := msg
		for name, value := range args {
			rendered.Content.Text = strings.ReplaceAll(rendered.Content.Text, "{{"+name+"}}", value)
		}
		messages[i] = rendered
	}
	return &mcp.GetPromptResult{Description: p.Description, Messages: messages}, nil
}

// AbilityPrompt delegates rendering to a callback. A nil callback means
// the prompt is listable but not retrievable; Render then reports
// router.ErrNotSupported.
type AbilityPrompt struct {
	Fn func(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error)
}

func (p AbilityPrompt) Render(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
	if p.Fn == nil {
		return nil, router.ErrNotSupported
	}
	return p.Fn(ctx, args)
}

// StaticPrompt pairs a prompt descriptor with its variant.
type StaticPrompt struct {
	Descriptor mcp.Prompt
	Variant    PromptVariant
}

// PromptsOption configures a StaticPrompts container.
type PromptsOption func(*StaticPrompts)

// WithPromptsPageSize sets the page size used by prompts/list.
func WithPromptsPageSize(n int) PromptsOption {
	return func(c *StaticPrompts) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// StaticPrompts is a registration-based router.PromptsHandler.
type StaticPrompts struct {
	mu       sync.RWMutex
	prompts  []StaticPrompt
	byName   map[string]int
	pageSize int
}

var _ router.PromptsHandler = (*StaticPrompts)(nil)

// NewStaticPrompts constructs an empty container.
func NewStaticPrompts(opts ...PromptsOption) *StaticPrompts {
	c := &StaticPrompts{byName: make(map[string]int), pageSize: 50}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Add registers prompts. Re-registering a name replaces the previous
// entry.
func (c *StaticPrompts) Add(prompts ...StaticPrompt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, prompt := range prompts {
		if idx, ok := c.byName[prompt.Descriptor.Name]; ok {
			c.prompts[idx] = prompt
			continue
		}
		c.byName[prompt.Descriptor.Name] = len(c.prompts)
		c.prompts = append(c.prompts, prompt)
	}
}

func (c *StaticPrompts) ListPrompts(ctx context.Context, cursor string) (*mcp.ListPromptsResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	offset, err := parseCursor(cursor, len(c.prompts))
	if err != nil {
		return nil, err
	}

	end := offset + c.pageSize
	if end > len(c.prompts) {
		end = len(c.prompts)
	}
	out := &mcp.ListPromptsResult{Prompts: make([]mcp.Prompt, 0, end-offset)}
	for _, prompt := range c.prompts[offset:end] {
		out.Prompts = append(out.Prompts, prompt.Descriptor)
	}
	if end < len(c.prompts) {
		out.NextCursor = strconv.Itoa(end)
	}
	return out, nil
}

func (c *StaticPrompts) GetPrompt(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	c.mu.RLock()
	idx, ok := c.byName[req.Name]
	var prompt StaticPrompt
	if ok {
		prompt = c.prompts[idx]
	}
	c.mu.RUnlock()

	if !ok {
		return nil, router.InvalidParamsf("unknown prompt %q", req.Name)
	}
	if err := checkRequiredArguments(prompt.Descriptor, req.Arguments); err != nil {
		return nil, err
	}
	return prompt.Variant.Render(ctx, req.Arguments)
}

func checkRequiredArguments(desc mcp.Prompt, args map[string]string) error {
	for _, arg := range desc.Arguments {
		if !arg.Required {
			continue
		}
		if _, ok := args[arg.Name]; !ok {
			return router.InvalidParamsf("missing required argument %q", arg.Name)
		}
	}
	return nil
}
