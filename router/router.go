package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/storekit/mcp-adapter/internal/jsonrpc"
	"github.com/storekit/mcp-adapter/mcp"
	"github.com/storekit/mcp-adapter/sessions"
)

// methodTag is the closed set of dispatchable operations. Dispatch resolves
// a method name to a tag once, then switches over the tag; handler
// interfaces keep the set extensible without unconstrained dynamic calls.
type methodTag int

const (
	tagInitialize methodTag = iota
	tagPing
	tagToolsList
	tagToolsListAll
	tagToolsCall
	tagResourcesList
	tagResourcesTemplatesList
	tagResourcesRead
	tagResourcesSubscribe
	tagResourcesUnsubscribe
	tagPromptsList
	tagPromptsGet
	tagLoggingSetLevel
	tagCompletionComplete
	tagRootsList
)

var methodTags = map[string]methodTag{
	string(mcp.InitializeMethod):             tagInitialize,
	string(mcp.PingMethod):                   tagPing,
	string(mcp.ToolsListMethod):              tagToolsList,
	string(mcp.ToolsListAllMethod):           tagToolsListAll,
	string(mcp.ToolsCallMethod):              tagToolsCall,
	string(mcp.ResourcesListMethod):          tagResourcesList,
	string(mcp.ResourcesTemplatesListMethod): tagResourcesTemplatesList,
	string(mcp.ResourcesReadMethod):          tagResourcesRead,
	string(mcp.ResourcesSubscribeMethod):     tagResourcesSubscribe,
	string(mcp.ResourcesUnsubscribeMethod):   tagResourcesUnsubscribe,
	string(mcp.PromptsListMethod):            tagPromptsList,
	string(mcp.PromptsGetMethod):             tagPromptsGet,
	string(mcp.LoggingSetLevelMethod):        tagLoggingSetLevel,
	string(mcp.CompletionCompleteMethod):     tagCompletionComplete,
	string(mcp.RootsListMethod):              tagRootsList,
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the slog logger used for dispatch events.
func WithLogger(log *slog.Logger) Option {
	return func(r *Router) { r.log = log }
}

// WithToolsHandler installs the tools capability.
func WithToolsHandler(h ToolsHandler) Option {
	return func(r *Router) { r.tools = h }
}

// WithResourcesHandler installs the resources capability.
func WithResourcesHandler(h ResourcesHandler) Option {
	return func(r *Router) { r.resources = h }
}

// WithPromptsHandler installs the prompts capability.
func WithPromptsHandler(h PromptsHandler) Option {
	return func(r *Router) { r.prompts = h }
}

// Router dispatches decoded JSON-RPC requests to capability handlers. It
// owns no persistent state: the dispatch table is fixed at construction
// and session state lives in the sessions.Store.
type Router struct {
	log       *slog.Logger
	store     *sessions.Store
	system    SystemHandler
	tools     ToolsHandler
	resources ResourcesHandler
	prompts   PromptsHandler
}

// New constructs a Router. The system handler and session store are
// required; capability handlers are optional and their methods answer
// method-not-found when absent.
func New(store *sessions.Store, system SystemHandler, opts ...Option) (*Router, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if system == nil {
		return nil, fmt.Errorf("system handler is required")
	}
	r := &Router{log: slog.Default(), store: store, system: system}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Route dispatches one request and always returns a response envelope. The
// caller decides whether to surface it (notifications produce no response
// entry at the transport layer).
//
// Handler faults never escape: errors and panics become internal-error
// responses, and the completion event fires on every exit path.
func (r *Router) Route(ctx context.Context, req *jsonrpc.Request, hctx *Context) (res *jsonrpc.Response) {
	start := time.Now()
	transport := ""
	if hctx != nil {
		transport = hctx.Transport
	}

	defer func() {
		status := "ok"
		attrs := []any{
			slog.String("method", req.Method),
			slog.String("transport", transport),
			slog.Int64("dur_ms", time.Since(start).Milliseconds()),
		}
		if res != nil && res.Error != nil {
			status = "error"
			attrs = append(attrs, slog.Int("err_code", int(res.Error.Code)))
		}
		attrs = append(attrs, slog.String("status", status))
		r.log.InfoContext(ctx, "rpc.request.done", attrs...)
	}()

	startAttrs := append([]any{
		slog.String("method", req.Method),
		slog.String("transport", transport),
	}, paramSummary(req.Method, req.Params)...)
	r.log.InfoContext(ctx, "rpc.request.start", startAttrs...)

	return r.dispatch(ctx, req, hctx)
}

func (r *Router) dispatch(ctx context.Context, req *jsonrpc.Request, hctx *Context) (res *jsonrpc.Response) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.ErrorContext(ctx, "rpc.handler.panic",
				slog.String("method", req.Method),
				slog.Any("panic", rec),
			)
			res = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal server error")
		}
	}()

	tag, ok := methodTags[req.Method]
	if !ok {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}

	switch tag {
	case tagInitialize:
		return r.routeInitialize(ctx, req, hctx)

	case tagPing:
		if err := r.system.Ping(ctx); err != nil {
			return r.fail(ctx, req, err)
		}
		return r.result(req.ID, nil)

	case tagToolsList:
		if r.tools == nil {
			return r.capabilityMissing(req, "tools")
		}
		out, err := r.tools.ListTools(ctx, cursorParam(req.Params))
		if err != nil {
			return r.fail(ctx, req, err)
		}
		return r.result(req.ID, out)

	case tagToolsListAll:
		if r.tools == nil {
			return r.capabilityMissing(req, "tools")
		}
		out, err := r.tools.ListAllTools(ctx)
		if err != nil {
			return r.fail(ctx, req, err)
		}
		return r.result(req.ID, out)

	case tagToolsCall:
		if r.tools == nil {
			return r.capabilityMissing(req, "tools")
		}
		var call mcp.CallToolRequest
		if err := decodeParams(req.Params, &call); err != nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid tool call params")
		}
		if call.Name == "" {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "tool name is required")
		}
		out, err := r.tools.CallTool(ctx, &call)
		if err != nil {
			return r.fail(ctx, req, err)
		}
		return r.result(req.ID, out)

	case tagResourcesList:
		if r.resources == nil {
			return r.capabilityMissing(req, "resources")
		}
		out, err := r.resources.ListResources(ctx, cursorParam(req.Params))
		if err != nil {
			return r.fail(ctx, req, err)
		}
		return r.result(req.ID, out)

	case tagResourcesTemplatesList:
		if r.resources == nil {
			return r.capabilityMissing(req, "resources")
		}
		out, err := r.resources.ListTemplates(ctx, cursorParam(req.Params))
		if err != nil {
			return r.fail(ctx, req, err)
		}
		return r.result(req.ID, out)

	case tagResourcesRead:
		if r.resources == nil {
			return r.capabilityMissing(req, "resources")
		}
		uri, errRes := r.uriParam(req)
		if errRes != nil {
			return errRes
		}
		out, err := r.resources.ReadResource(ctx, uri)
		if err != nil {
			return r.fail(ctx, req, err)
		}
		return r.result(req.ID, out)

	case tagResourcesSubscribe:
		if r.resources == nil {
			return r.capabilityMissing(req, "resources")
		}
		uri, errRes := r.uriParam(req)
		if errRes != nil {
			return errRes
		}
		if err := r.resources.Subscribe(ctx, uri); err != nil {
			return r.fail(ctx, req, err)
		}
		return r.result(req.ID, nil)

	case tagResourcesUnsubscribe:
		if r.resources == nil {
			return r.capabilityMissing(req, "resources")
		}
		uri, errRes := r.uriParam(req)
		if errRes != nil {
			return errRes
		}
		if err := r.resources.Unsubscribe(ctx, uri); err != nil {
			return r.fail(ctx, req, err)
		}
		return r.result(req.ID, nil)

	case tagPromptsList:
		if r.prompts == nil {
			return r.capabilityMissing(req, "prompts")
		}
		out, err := r.prompts.ListPrompts(ctx, cursorParam(req.Params))
		if err != nil {
			return r.fail(ctx, req, err)
		}
		return r.result(req.ID, out)

	case tagPromptsGet:
		if r.prompts == nil {
			return r.capabilityMissing(req, "prompts")
		}
		var get mcp.GetPromptRequest
		if err := decodeParams(req.Params, &get); err != nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid prompt params")
		}
		if get.Name == "" {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "prompt name is required")
		}
		out, err := r.prompts.GetPrompt(ctx, &get)
		if err != nil {
			return r.fail(ctx, req, err)
		}
		return r.result(req.ID, out)

	case tagLoggingSetLevel:
		var set mcp.SetLevelRequest
		if err := decodeParams(req.Params, &set); err != nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid logging params")
		}
		if !mcp.IsValidLoggingLevel(set.Level) {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, fmt.Sprintf("invalid logging level %q", set.Level))
		}
		if err := r.system.SetLogLevel(ctx, set.Level); err != nil {
			return r.fail(ctx, req, err)
		}
		return r.result(req.ID, nil)

	case tagCompletionComplete:
		var comp mcp.CompleteRequest
		if err := decodeParams(req.Params, &comp); err != nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid completion params")
		}
		out, err := r.system.Complete(ctx, &comp)
		if err != nil {
			return r.fail(ctx, req, err)
		}
		return r.result(req.ID, out)

	case tagRootsList:
		out, err := r.system.ListRoots(ctx)
		if err != nil {
			return r.fail(ctx, req, err)
		}
		return r.result(req.ID, out)
	}

	return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
}

// routeInitialize invokes the initialize handler and, for transport calls
// that arrived without a session id, creates the session from the client's
// initialize params. This is the only session-creation path in the adapter.
func (r *Router) routeInitialize(ctx context.Context, req *jsonrpc.Request, hctx *Context) *jsonrpc.Response {
	var initReq mcp.InitializeRequest
	if err := decodeParams(req.Params, &initReq); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid initialize params")
	}

	initRes, err := r.system.Initialize(ctx, &initReq)
	if err != nil {
		return r.fail(ctx, req, err)
	}

	if hctx != nil && hctx.SessionID == "" && hctx.NewSessionID() == "" {
		// Client metadata is stored verbatim for later inspection.
		clientParams := map[string]any{}
		if len(req.Params) > 0 {
			_ = json.Unmarshal(req.Params, &clientParams)
		}

		sessID, err := r.store.Create(ctx, hctx.UserID, clientParams)
		if err != nil {
			r.log.ErrorContext(ctx, "session.create.fail", slog.String("err", err.Error()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "failed to create session")
		}
		hctx.StashNewSession(sessID)
		r.log.InfoContext(ctx, "session.create.ok", slog.String("session_id", sessID))
	}

	return r.result(req.ID, initRes)
}

func (r *Router) result(id *jsonrpc.RequestID, v any) *jsonrpc.Response {
	res, err := jsonrpc.NewResultResponse(id, v)
	if err != nil {
		r.log.Error("rpc.result.encode.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, "failed to encode result")
	}
	return res
}

// fail converts a handler error into a response. Expected branches map to
// their taxonomy codes; anything else is an internal error whose detail is
// logged but never echoed to the client.
func (r *Router) fail(ctx context.Context, req *jsonrpc.Request, err error) *jsonrpc.Response {
	var paramErr *ParamError
	switch {
	case errors.Is(err, ErrNotSupported):
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, fmt.Sprintf("method %q not supported", req.Method))
	case errors.As(err, &paramErr):
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, paramErr.Reason)
	default:
		r.log.ErrorContext(ctx, "rpc.handler.fail",
			slog.String("method", req.Method),
			slog.String("err", err.Error()),
		)
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal server error")
	}
}

func (r *Router) capabilityMissing(req *jsonrpc.Request, capability string) *jsonrpc.Response {
	return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, fmt.Sprintf("%s capability not available", capability))
}

func (r *Router) uriParam(req *jsonrpc.Request) (string, *jsonrpc.Response) {
	var p struct {
		URI string `json:"uri"`
	}
	if err := decodeParams(req.Params, &p); err != nil {
		return "", jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid resource params")
	}
	if p.URI == "" {
		return "", jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "resource uri is required")
	}
	return p.URI, nil
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func cursorParam(raw json.RawMessage) string {
	var p mcp.PaginatedRequest
	if err := decodeParams(raw, &p); err != nil {
		return ""
	}
	return p.Cursor
}

// paramSummary extracts a fixed allow-list of scalar fields for logging.
// Raw tool arguments are never logged; only their count is.
func paramSummary(method string, raw json.RawMessage) []any {
	if len(raw) == 0 {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}

	var attrs []any
	for _, key := range []string{"name", "protocolVersion", "uri", "level", "cursor"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			attrs = append(attrs, slog.String("param_"+key, s))
		}
	}
	if method == string(mcp.ToolsCallMethod) {
		if raw, ok := fields["arguments"]; ok {
			var args map[string]json.RawMessage
			if err := json.Unmarshal(raw, &args); err == nil {
				attrs = append(attrs, slog.Int("arg_count", len(args)))
			}
		}
	}
	return attrs
}
