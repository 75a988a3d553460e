package mcpservice

import (
	"context"
	"strconv"
	"sync"

	"github.com/storekit/mcp-adapter/mcp"
	"github.com/storekit/mcp-adapter/router"
)

// StaticResource pairs a resource descriptor with its contents.
type StaticResource struct {
	Descriptor mcp.Resource
	Contents   []mcp.ResourceContents
}

// ResourcesOption configures a StaticResources container.
type ResourcesOption func(*StaticResources)

// WithResourcesPageSize sets the page size used by resources/list.
func WithResourcesPageSize(n int) ResourcesOption {
	return func(c *StaticResources) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithResourceTemplates registers the templates returned from
// resources/templates/list.
func WithResourceTemplates(templates ...mcp.ResourceTemplate) ResourcesOption {
	return func(c *StaticResources) { c.templates = templates }
}

// WithoutSubscriptions disables resources/subscribe and
// resources/unsubscribe; both then report router.ErrNotSupported.
func WithoutSubscriptions() ResourcesOption {
	return func(c *StaticResources) { c.subscribable = false }
}

// StaticResources is a registration-based router.ResourcesHandler.
// Subscriptions are bookkeeping only: static contents never change, but
// per-URI subscriber state is tracked so subscribe/unsubscribe behave.
type StaticResources struct {
	mu           sync.RWMutex
	resources    []StaticResource
	byURI        map[string]int
	templates    []mcp.ResourceTemplate
	subscribers  map[string]struct{}
	subscribable bool
	pageSize     int
}

var _ router.ResourcesHandler = (*StaticResources)(nil)

// NewStaticResources constructs an empty container.
func NewStaticResources(opts ...ResourcesOption) *StaticResources {
	c := &StaticResources{
		byURI:        make(map[string]int),
		subscribers:  make(map[string]struct{}),
		subscribable: true,
		pageSize:     50,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Add registers resources. Re-registering a URI replaces the previous
// entry.
func (c *StaticResources) Add(resources ...StaticResource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, res := range resources {
		if idx, ok := c.byURI[res.Descriptor.URI]; ok {
			c.resources[idx] = res
			continue
		}
		c.byURI[res.Descriptor.URI] = len(c.resources)
		c.resources = append(c.resources, res)
	}
}

func (c *StaticResources) ListResources(ctx context.Context, cursor string) (*mcp.ListResourcesResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	offset, err := parseCursor(cursor, len(c.resources))
	if err != nil {
		return nil, err
	}

	end := offset + c.pageSize
	if end > len(c.resources) {
		end = len(c.resources)
	}
	out := &mcp.ListResourcesResult{Resources: make([]mcp.Resource, 0, end-offset)}
	for _, res := range c.resources[offset:end] {
		out.Resources = append(out.Resources, res.Descriptor)
	}
	if end < len(c.resources) {
		out.NextCursor = strconv.Itoa(end)
	}
	return out, nil
}

func (c *StaticResources) ListTemplates(ctx context.Context, cursor string) (*mcp.ListResourceTemplatesResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	templates := c.templates
	if templates == nil {
		templates = []mcp.ResourceTemplate{}
	}
	return &mcp.ListResourceTemplatesResult{ResourceTemplates: templates}, nil
}

func (c *StaticResources) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	idx, ok := c.byURI[uri]
	if !ok {
		return nil, router.InvalidParamsf("unknown resource %q", uri)
	}
	return &mcp.ReadResourceResult{Contents: c.resources[idx].Contents}, nil
}

func (c *StaticResources) Subscribe(ctx context.Context, uri string) error {
	if !c.subscribable {
		return router.ErrNotSupported
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byURI[uri]; !ok {
		return router.InvalidParamsf("unknown resource %q", uri)
	}
	c.subscribers[uri] = struct{}{}
	return nil
}

func (c *StaticResources) Unsubscribe(ctx context.Context, uri string) error {
	if !c.subscribable {
		return router.ErrNotSupported
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subscribers[uri]; !ok {
		return router.InvalidParamsf("not subscribed to %q", uri)
	}
	delete(c.subscribers, uri)
	return nil
}
