package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/storekit/mcp-adapter/auth"
	"github.com/storekit/mcp-adapter/internal/jsonrpc"
	"github.com/storekit/mcp-adapter/internal/logctx"
	"github.com/storekit/mcp-adapter/mcp"
	"github.com/storekit/mcp-adapter/router"
	"github.com/storekit/mcp-adapter/sessions"
)

var _ http.Handler = (*Handler)(nil)

var jsonMediaType = contenttype.NewMediaType("application/json")

const (
	// Canonical header names; Go matches headers case-insensitively.
	mcpSessionIDHeader    = "Mcp-Session-Id"
	authorizationHeader   = "Authorization"
	wwwAuthenticateHeader = "WWW-Authenticate"
)

// Option configures the Handler.
type Option func(*newConfig)

type newConfig struct {
	serverName string
	logger     *slog.Logger
}

// WithServerName sets a human-readable server name used in log events.
func WithServerName(name string) Option {
	return func(c *newConfig) { c.serverName = name }
}

// WithLogger sets the slog logger used by the handler.
func WithLogger(log *slog.Logger) Option {
	return func(c *newConfig) { c.logger = log }
}

// Handler binds the request router and session store to HTTP verbs on a
// single MCP endpoint path.
type Handler struct {
	mux        *http.ServeMux
	log        *slog.Logger
	serverName string
	endpoint   *url.URL

	auth   auth.Authenticator
	store  *sessions.Store
	router *router.Router
}

// New constructs a Handler serving the MCP endpoint at the path of
// endpoint. The session store, router and authenticator are required.
func New(endpoint string, store *sessions.Store, rtr *router.Router, authenticator auth.Authenticator, opts ...Option) (*Handler, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if rtr == nil {
		return nil, fmt.Errorf("router is required")
	}
	if authenticator == nil {
		return nil, fmt.Errorf("authenticator is required")
	}

	mcpURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint URL %q: %w", endpoint, err)
	}

	cfg := &newConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	h := &Handler{
		log:        slog.New(logctx.Handler{Handler: cfg.logger.Handler()}),
		serverName: cfg.serverName,
		endpoint:   mcpURL,
		auth:       authenticator,
		store:      store,
		router:     rtr,
	}

	path := pathOnly(mcpURL)
	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("POST %s", path), h.handlePost)
	mux.HandleFunc(fmt.Sprintf("GET %s", path), h.handleGet)
	mux.HandleFunc(fmt.Sprintf("DELETE %s", path), h.handleDelete)
	mux.HandleFunc(path, h.handleMethodNotAllowed)
	h.mux = mux

	return h, nil
}

func pathOnly(u *url.URL) string {
	if u == nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
}

// handlePost carries the JSON-RPC message exchange: decode, normalize,
// gate on session, dispatch, assemble.
func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.post.start")

	defer func() {
		if rec := recover(); rec != nil {
			h.log.ErrorContext(ctx, "http.post.panic",
				slog.String("server", h.serverName),
				slog.Any("panic", rec),
			)
			h.writeResponse(w, http.StatusInternalServerError,
				jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInternalError, "internal server error"))
		}
	}()

	if ctype, err := contenttype.GetMediaType(r); err != nil || !ctype.Matches(jsonMediaType) {
		h.log.WarnContext(ctx, "content_type.unsupported")
		h.writeResponse(w, http.StatusUnsupportedMediaType,
			jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInvalidRequest, "content-type must be application/json"))
		return
	}

	userInfo := h.checkAuthentication(ctx, r, w)
	if userInfo == nil {
		h.log.InfoContext(ctx, "auth.fail")
		return
	}

	rc := newRequestContext(r)
	if rc.body == nil {
		h.log.WarnContext(ctx, "json.decode.fail")
		h.writeResponse(w, http.StatusBadRequest,
			jsonrpc.NewErrorResponse(jsonrpc.NewRequestID(int64(0)), jsonrpc.ErrorCodeParseError, "invalid JSON body"))
		return
	}

	msgs, err := jsonrpc.Normalize(rc.body)
	if err != nil {
		h.log.WarnContext(ctx, "jsonrpc.normalize.fail", slog.String("err", err.Error()))
		h.writeResponse(w, http.StatusBadRequest,
			jsonrpc.NewErrorResponse(jsonrpc.NewRequestID(int64(0)), jsonrpc.ErrorCodeParseError, "invalid JSON body"))
		return
	}

	hctx := &router.Context{
		Transport: "http",
		UserID:    userInfo.UserID(),
		SessionID: rc.sessionID,
	}
	if rc.sessionID != "" {
		ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
			SessionID: rc.sessionID,
			UserID:    userInfo.UserID(),
		})
	}

	// Session validation is per message but resolved once per call: every
	// non-initialize message in a batch names the same session.
	sessionChecked := false
	sessionValid := false

	out := jsonrpc.Process(msgs, rc.wasArray, func(raw json.RawMessage) *jsonrpc.Response {
		return h.handleMessage(ctx, raw, hctx, &sessionChecked, &sessionValid)
	})

	if id := hctx.NewSessionID(); id != "" {
		w.Header().Set(mcpSessionIDHeader, id)
	}

	switch res := out.(type) {
	case nil:
		// Only notifications (or an empty body object) — nothing to return.
		w.WriteHeader(http.StatusAccepted)
	case *jsonrpc.Response:
		status := http.StatusOK
		if res.Error != nil {
			status = jsonrpc.HTTPStatus(res.Error.Code)
		}
		h.writeResponse(w, status, res)
	case []*jsonrpc.Response:
		// Batches are always HTTP 200; per-message errors ride inside.
		h.writeResponse(w, http.StatusOK, res)
	}

	h.log.InfoContext(ctx, "http.post.ok", slog.Duration("dur", time.Since(start)))
}

// handleMessage processes one normalized message: envelope validation,
// session gating, dispatch. A nil return means the message produces no
// response entry (it was a notification).
func (h *Handler) handleMessage(ctx context.Context, raw json.RawMessage, hctx *router.Context, sessionChecked, sessionValid *bool) *jsonrpc.Response {
	req, err := jsonrpc.ParseRequest(raw)
	if err != nil {
		// Failures are isolated to the offending message; the rest of the
		// batch proceeds.
		h.log.WarnContext(ctx, "jsonrpc.message.invalid", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(extractID(raw), jsonrpc.ErrorCodeInvalidRequest, "invalid JSON-RPC message")
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: req.Method,
		ID:     req.ID.String(),
	})

	isNotification := req.IsNotification()

	if req.Method != string(mcp.InitializeMethod) {
		if hctx.SessionID == "" {
			h.log.WarnContext(ctx, "session.id.missing")
			if isNotification {
				return nil
			}
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "missing Mcp-Session-Id header")
		}
		if !*sessionChecked {
			*sessionValid = h.store.Validate(ctx, hctx.UserID, hctx.SessionID)
			*sessionChecked = true
		}
		if !*sessionValid {
			h.log.InfoContext(ctx, "session.validate.miss")
			if isNotification {
				return nil
			}
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid or expired session")
		}
	}

	res := h.router.Route(ctx, req, hctx)
	if isNotification {
		return nil
	}
	return res
}

// handleGet is reserved for a future streaming surface.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	h.log.InfoContext(r.Context(), "http.get.reject")
	h.writeResponse(w, http.StatusMethodNotAllowed,
		jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInvalidRequest, "method not allowed"))
}

func (h *Handler) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.log.InfoContext(r.Context(), "http.method.reject", slog.String("verb", r.Method))
	h.writeResponse(w, http.StatusMethodNotAllowed,
		jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInvalidRequest, "method not allowed"))
}

// handleDelete terminates the session named by the Mcp-Session-Id header.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.delete.start")

	userInfo := h.checkAuthentication(ctx, r, w)
	if userInfo == nil {
		h.log.InfoContext(ctx, "auth.fail")
		return
	}

	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		h.log.WarnContext(ctx, "session.id.missing")
		h.writeResponse(w, http.StatusBadRequest,
			jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInvalidRequest, "missing Mcp-Session-Id header"))
		return
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID: sessID,
		UserID:    userInfo.UserID(),
	})

	if !h.store.Delete(ctx, userInfo.UserID(), sessID) {
		h.log.InfoContext(ctx, "session.delete.miss")
		h.writeResponse(w, jsonrpc.HTTPStatus(jsonrpc.ErrorCodeInvalidParams),
			jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInvalidParams, "session not found"))
		return
	}

	w.WriteHeader(http.StatusOK)
	h.log.InfoContext(ctx, "http.delete.ok", slog.Duration("dur", time.Since(start)))
}

func (h *Handler) checkAuthentication(ctx context.Context, r *http.Request, w http.ResponseWriter) auth.UserInfo {
	authHeader := r.Header.Get(authorizationHeader)
	if authHeader == "" {
		h.log.InfoContext(ctx, "auth.check.missing")
		w.Header().Add(wwwAuthenticateHeader, "Bearer")
		h.writeResponse(w, http.StatusUnauthorized,
			jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeUnauthorized, "authentication required"))
		return nil
	}

	const bearerPrefix = "Bearer "
	tok := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
	if !strings.HasPrefix(authHeader, bearerPrefix) || tok == "" {
		h.log.InfoContext(ctx, "auth.check.invalid")
		w.Header().Add(wwwAuthenticateHeader, `Bearer error="invalid_request"`)
		h.writeResponse(w, http.StatusBadRequest,
			jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInvalidRequest, "malformed bearer authorization header"))
		return nil
	}

	userInfo, err := h.auth.CheckAuthentication(ctx, tok)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUnauthorized):
			h.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
			w.Header().Add(wwwAuthenticateHeader, `Bearer error="invalid_token"`)
			h.writeResponse(w, http.StatusUnauthorized,
				jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeUnauthorized, "invalid token"))
		case errors.Is(err, auth.ErrInsufficientScope):
			h.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
			w.Header().Add(wwwAuthenticateHeader, `Bearer error="insufficient_scope"`)
			h.writeResponse(w, http.StatusForbidden,
				jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeUnauthorized, "insufficient scope"))
		default:
			h.log.ErrorContext(ctx, "auth.check.err", slog.String("err", err.Error()))
			h.writeResponse(w, http.StatusInternalServerError,
				jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInternalError, "internal server error"))
		}
		return nil
	}

	return userInfo
}

func (h *Handler) writeResponse(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("http.response.write.fail", slog.String("err", err.Error()))
	}
}

// extractID pulls a request id out of an otherwise invalid envelope so the
// error entry still echoes it.
func extractID(raw json.RawMessage) *jsonrpc.RequestID {
	var probe struct {
		ID *jsonrpc.RequestID `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil
	}
	return probe.ID
}
