package mcpservice

import (
	"context"
	"encoding/base64"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"

	"github.com/storekit/mcp-adapter/mcp"
	"github.com/storekit/mcp-adapter/router"
)

// FSOption configures an FSResources provider.
type FSOption func(*FSResources)

// WithUpdateFunc installs a callback invoked with the resource URI when a
// subscribed file changes on disk.
func WithUpdateFunc(fn func(uri string)) FSOption {
	return func(c *FSResources) { c.onUpdate = fn }
}

// WithFSLogger sets the logger used for watcher diagnostics.
func WithFSLogger(log *slog.Logger) FSOption {
	return func(c *FSResources) { c.log = log }
}

// FSResources serves the files under a directory root as read-only
// resources with file:// URIs. Subscribed URIs are watched with fsnotify;
// updates are surfaced through the update callback.
type FSResources struct {
	root     string
	log      *slog.Logger
	onUpdate func(uri string)
	watcher  *fsnotify.Watcher

	mu          sync.Mutex
	subscribers map[string]struct{}
}

var _ router.ResourcesHandler = (*FSResources)(nil)

// NewFSResources builds a provider rooted at dir and starts the change
// watcher. Callers should Close it when done.
func NewFSResources(dir string, opts ...FSOption) (*FSResources, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}

	c := &FSResources{
		root:        root,
		log:         slog.Default(),
		subscribers: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	c.watcher = w
	if err := w.Add(root); err != nil {
		_ = w.Close()
		return nil, err
	}
	// Watch existing subdirectories too; new ones are added as they appear.
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() && path != root {
			_ = w.Add(path)
		}
		return nil
	})
	go c.watch()

	return c, nil
}

// Close stops the filesystem watcher.
func (c *FSResources) Close() error {
	return c.watcher.Close()
}

func (c *FSResources) watch() {
	for {
		select {
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = c.watcher.Add(ev.Name)
					continue
				}
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				c.notify(c.uriFor(ev.Name))
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.log.Debug("fs.watch.err", slog.String("err", err.Error()))
		}
	}
}

func (c *FSResources) notify(uri string) {
	c.mu.Lock()
	_, subscribed := c.subscribers[uri]
	fn := c.onUpdate
	c.mu.Unlock()
	if subscribed && fn != nil {
		fn(uri)
	}
}

func (c *FSResources) uriFor(path string) string {
	return "file://" + filepath.ToSlash(path)
}

// pathFor resolves a file:// URI back to a path, refusing anything that
// escapes the root.
func (c *FSResources) pathFor(uri string) (string, error) {
	raw, ok := strings.CutPrefix(uri, "file://")
	if !ok {
		return "", router.InvalidParamsf("unsupported resource uri %q", uri)
	}
	path := filepath.Clean(filepath.FromSlash(raw))
	if path != c.root && !strings.HasPrefix(path, c.root+string(filepath.Separator)) {
		return "", router.InvalidParamsf("resource %q is outside the served root", uri)
	}
	return path, nil
}

func (c *FSResources) ListResources(ctx context.Context, cursor string) (*mcp.ListResourcesResult, error) {
	var all []mcp.Resource
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		all = append(all, mcp.Resource{
			URI:      c.uriFor(path),
			Name:     filepath.Base(path),
			MimeType: mimeTypeFor(path),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].URI < all[j].URI })

	offset, cerr := parseCursor(cursor, len(all))
	if cerr != nil {
		return nil, cerr
	}
	const pageSize = 100
	end := offset + pageSize
	if end > len(all) {
		end = len(all)
	}
	out := &mcp.ListResourcesResult{Resources: all[offset:end]}
	if out.Resources == nil {
		out.Resources = []mcp.Resource{}
	}
	if end < len(all) {
		out.NextCursor = strconv.Itoa(end)
	}
	return out, nil
}

func (c *FSResources) ListTemplates(ctx context.Context, cursor string) (*mcp.ListResourceTemplatesResult, error) {
	return &mcp.ListResourceTemplatesResult{
		ResourceTemplates: []mcp.ResourceTemplate{{
			URITemplate: c.uriFor(c.root) + "/{+path}",
			Name:        filepath.Base(c.root),
		}},
	}, nil
}

func (c *FSResources) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	path, err := c.pathFor(uri)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, router.InvalidParamsf("unknown resource %q", uri)
		}
		return nil, err
	}

	contents := mcp.ResourceContents{URI: uri, MimeType: mimeTypeFor(path)}
	if utf8.Valid(b) {
		contents.Text = string(b)
	} else {
		contents.Blob = base64.StdEncoding.EncodeToString(b)
	}
	return &mcp.ReadResourceResult{Contents: []mcp.ResourceContents{contents}}, nil
}

func (c *FSResources) Subscribe(ctx context.Context, uri string) error {
	path, err := c.pathFor(uri)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return router.InvalidParamsf("unknown resource %q", uri)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers[uri] = struct{}{}
	return nil
}

func (c *FSResources) Unsubscribe(ctx context.Context, uri string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subscribers[uri]; !ok {
		return router.InvalidParamsf("not subscribed to %q", uri)
	}
	delete(c.subscribers, uri)
	return nil
}

func mimeTypeFor(path string) string {
	if mt := mime.TypeByExtension(filepath.Ext(path)); mt != "" {
		return mt
	}
	return "application/octet-stream"
}
