package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/storekit/mcp-adapter/internal/jsonrpc"
	"github.com/storekit/mcp-adapter/mcp"
	"github.com/storekit/mcp-adapter/sessions"
	"github.com/storekit/mcp-adapter/sessions/memstore"
)

type stubSystem struct {
	initErr error
}

func (s *stubSystem) Initialize(ctx context.Context, req *mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	if s.initErr != nil {
		return nil, s.initErr
	}
	return &mcp.InitializeResult{ProtocolVersion: "2025-06-18"}, nil
}

func (s *stubSystem) Ping(ctx context.Context) error { return nil }

func (s *stubSystem) SetLogLevel(ctx context.Context, level mcp.LoggingLevel) error { return nil }

func (s *stubSystem) Complete(ctx context.Context, req *mcp.CompleteRequest) (*mcp.CompleteResult, error) {
	return &mcp.CompleteResult{}, nil
}

func (s *stubSystem) ListRoots(ctx context.Context) (*mcp.ListRootsResult, error) {
	return &mcp.ListRootsResult{Roots: []mcp.Root{}}, nil
}

type stubTools struct {
	callFn func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error)
	listFn func(ctx context.Context, cursor string) (*mcp.ListToolsResult, error)
}

func (s *stubTools) ListTools(ctx context.Context, cursor string) (*mcp.ListToolsResult, error) {
	if s.listFn != nil {
		return s.listFn(ctx, cursor)
	}
	return &mcp.ListToolsResult{Tools: []mcp.Tool{}}, nil
}

func (s *stubTools) ListAllTools(ctx context.Context) (*mcp.ListToolsResult, error) {
	return &mcp.ListToolsResult{Tools: []mcp.Tool{}}, nil
}

func (s *stubTools) CallTool(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.callFn != nil {
		return s.callFn(ctx, req)
	}
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{}}, nil
}

func newTestRouter(t *testing.T, opts ...Option) (*Router, *sessions.Store) {
	t.Helper()
	store := sessions.NewStore(memstore.New(), sessions.DefaultConfig())
	opts = append([]Option{WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	rtr, err := New(store, &stubSystem{}, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return rtr, store
}

func makeReq(t *testing.T, raw string) *jsonrpc.Request {
	t.Helper()
	req, err := jsonrpc.ParseRequest(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("ParseRequest(%s) error = %v", raw, err)
	}
	return req
}

func wantErrCode(t *testing.T, res *jsonrpc.Response, code jsonrpc.ErrorCode) {
	t.Helper()
	if res == nil || res.Error == nil {
		t.Fatalf("response = %+v, want error with code %d", res, code)
	}
	if res.Error.Code != code {
		t.Fatalf("error code = %d (%s), want %d", res.Error.Code, res.Error.Message, code)
	}
}

func TestUnknownMethodIsMethodNotFound(t *testing.T) {
	rtr, _ := newTestRouter(t)

	res := rtr.Route(context.Background(), makeReq(t, `{"jsonrpc":"2.0","id":1,"method":"bogus/method"}`), &Context{})
	wantErrCode(t, res, jsonrpc.ErrorCodeMethodNotFound)
}

func TestMissingCapabilityIsMethodNotFound(t *testing.T) {
	rtr, _ := newTestRouter(t)

	for _, method := range []string{"tools/list", "tools/call", "resources/list", "resources/read", "prompts/list", "prompts/get"} {
		res := rtr.Route(context.Background(), makeReq(t, `{"jsonrpc":"2.0","id":1,"method":"`+method+`"}`), &Context{})
		if res.Error == nil || res.Error.Code != jsonrpc.ErrorCodeMethodNotFound {
			t.Errorf("%s: error = %+v, want code %d", method, res.Error, jsonrpc.ErrorCodeMethodNotFound)
		}
	}
}

func TestPingReturnsEmptyObject(t *testing.T) {
	rtr, _ := newTestRouter(t)

	res := rtr.Route(context.Background(), makeReq(t, `{"jsonrpc":"2.0","id":1,"method":"ping"}`), &Context{})
	if res.Error != nil {
		t.Fatalf("unexpected error: %+v", res.Error)
	}
	if got := string(res.Result); got != "{}" {
		t.Errorf("result = %s, want {}", got)
	}
}

func TestInitializeCreatesSessionOnce(t *testing.T) {
	rtr, store := newTestRouter(t)

	hctx := &Context{Transport: "http", UserID: "user-1"}
	req := makeReq(t, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","clientInfo":{"name":"c","version":"1"}}}`)

	res := rtr.Route(context.Background(), req, hctx)
	if res.Error != nil {
		t.Fatalf("unexpected error: %+v", res.Error)
	}
	sessID := hctx.NewSessionID()
	if sessID == "" {
		t.Fatal("no session stashed by initialize")
	}
	if !store.Validate(context.Background(), "user-1", sessID) {
		t.Error("stashed session is not live in the store")
	}

	// A second initialize on the same call must not mint another session.
	res = rtr.Route(context.Background(), req, hctx)
	if res.Error != nil {
		t.Fatalf("unexpected error: %+v", res.Error)
	}
	if got := hctx.NewSessionID(); got != sessID {
		t.Errorf("session id changed from %q to %q on repeat initialize", sessID, got)
	}
}

func TestInitializeWithSessionDoesNotCreate(t *testing.T) {
	rtr, store := newTestRouter(t)

	hctx := &Context{Transport: "http", UserID: "user-1", SessionID: "existing"}
	req := makeReq(t, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","clientInfo":{"name":"c","version":"1"}}}`)

	res := rtr.Route(context.Background(), req, hctx)
	if res.Error != nil {
		t.Fatalf("unexpected error: %+v", res.Error)
	}
	if got := hctx.NewSessionID(); got != "" {
		t.Errorf("session %q created despite inbound session id", got)
	}
	if n := len(store.ListAll(context.Background(), "user-1")); n != 0 {
		t.Errorf("store has %d sessions, want 0", n)
	}
}

func TestInitializeStoresClientParamsVerbatim(t *testing.T) {
	rtr, store := newTestRouter(t)

	hctx := &Context{Transport: "http", UserID: "user-1"}
	req := makeReq(t, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","clientInfo":{"name":"my-client","version":"2.1"}}}`)
	if res := rtr.Route(context.Background(), req, hctx); res.Error != nil {
		t.Fatalf("unexpected error: %+v", res.Error)
	}

	sess, err := store.Get(context.Background(), "user-1", hctx.NewSessionID())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	info, ok := sess.ClientParams["clientInfo"].(map[string]any)
	if !ok {
		t.Fatalf("clientInfo missing from stored params: %+v", sess.ClientParams)
	}
	if got := info["name"]; got != "my-client" {
		t.Errorf("stored client name = %v, want my-client", got)
	}
}

func TestHandlerPanicBecomesInternalError(t *testing.T) {
	tools := &stubTools{callFn: func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		panic("boom")
	}}
	rtr, _ := newTestRouter(t, WithToolsHandler(tools))

	res := rtr.Route(context.Background(), makeReq(t, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"x"}}`), &Context{})
	wantErrCode(t, res, jsonrpc.ErrorCodeInternalError)
}

func TestHandlerErrorMapping(t *testing.T) {
	for _, tc := range []struct {
		name     string
		err      error
		wantCode jsonrpc.ErrorCode
		wantMsg  string
	}{
		{name: "not supported", err: ErrNotSupported, wantCode: jsonrpc.ErrorCodeMethodNotFound},
		{name: "param error", err: InvalidParamsf("bad cursor %q", "zzz"), wantCode: jsonrpc.ErrorCodeInvalidParams, wantMsg: `bad cursor "zzz"`},
		{name: "opaque error", err: errors.New("db connection refused"), wantCode: jsonrpc.ErrorCodeInternalError, wantMsg: "internal server error"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tools := &stubTools{listFn: func(ctx context.Context, cursor string) (*mcp.ListToolsResult, error) {
				return nil, tc.err
			}}
			rtr, _ := newTestRouter(t, WithToolsHandler(tools))

			res := rtr.Route(context.Background(), makeReq(t, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`), &Context{})
			wantErrCode(t, res, tc.wantCode)
			if tc.wantMsg != "" && res.Error.Message != tc.wantMsg {
				t.Errorf("message = %q, want %q", res.Error.Message, tc.wantMsg)
			}
		})
	}
}

func TestToolCallRequiresName(t *testing.T) {
	rtr, _ := newTestRouter(t, WithToolsHandler(&stubTools{}))

	res := rtr.Route(context.Background(), makeReq(t, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{}}`), &Context{})
	wantErrCode(t, res, jsonrpc.ErrorCodeInvalidParams)
}

func TestSetLevelRejectsUnknownLevel(t *testing.T) {
	rtr, _ := newTestRouter(t)

	res := rtr.Route(context.Background(), makeReq(t, `{"jsonrpc":"2.0","id":1,"method":"logging/setLevel","params":{"level":"verbose"}}`), &Context{})
	wantErrCode(t, res, jsonrpc.ErrorCodeInvalidParams)

	res = rtr.Route(context.Background(), makeReq(t, `{"jsonrpc":"2.0","id":1,"method":"logging/setLevel","params":{"level":"warning"}}`), &Context{})
	if res.Error != nil {
		t.Fatalf("unexpected error: %+v", res.Error)
	}
}

func TestStashNewSessionIsSetOnce(t *testing.T) {
	hctx := &Context{}
	if !hctx.StashNewSession("first") {
		t.Fatal("first stash rejected")
	}
	if hctx.StashNewSession("second") {
		t.Error("second stash accepted")
	}
	if got := hctx.NewSessionID(); got != "first" {
		t.Errorf("NewSessionID() = %q, want %q", got, "first")
	}
}
