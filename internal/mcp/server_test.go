package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dmarma/okta-mcp-server/internal/logging"
	"github.com/dmarma/okta-mcp-server/internal/protocol"
	"github.com/dmarma/okta-mcp-server/internal/version"
)

func newTestServer(tools ...Tool) *Server {
	return NewServer(NewToolbox(logging.Discard(), tools), logging.Discard())
}

func TestHandleInitialize(t *testing.T) {
	srv := newTestServer()
	resp, ok := srv.Handle(context.Background(), protocol.Request{JSONRPC: "2.0", ID: 1, Method: "initialize"})
	if !ok || resp.Error != nil {
		t.Fatalf("unexpected response %+v", resp)
	}
	res, isInit := resp.Result.(protocol.InitializeResult)
	if !isInit {
		t.Fatalf("unexpected result type %T", resp.Result)
	}
	if res.ServerInfo.Name != version.Name || res.ProtocolVersion != protocol.MCPVersion {
		t.Fatalf("unexpected initialize result %+v", res)
	}
	if _, ok := res.Capabilities["tools"]; !ok {
		t.Fatalf("expected tools capability")
	}
}

func TestHandleToolsList(t *testing.T) {
	srv := newTestServer(echoTool("list_users"), echoTool("get_user", "userId"))
	resp, ok := srv.Handle(context.Background(), protocol.Request{JSONRPC: "2.0", ID: "a", Method: "tools/list"})
	if !ok {
		t.Fatalf("expected response")
	}
	list := resp.Result.(protocol.ListResult)
	if len(list.Tools) != 2 || list.Tools[1].Name != "get_user" {
		t.Fatalf("unexpected tools %+v", list.Tools)
	}
	if resp.ID != "a" {
		t.Fatalf("expected id to echo, got %v", resp.ID)
	}
}

func TestHandleToolsCall(t *testing.T) {
	srv := newTestServer(echoTool("get_user", "userId"))
	params, _ := json.Marshal(protocol.CallParams{Name: "get_user", Args: map[string]any{"userId": "00u1"}})

	resp, _ := srv.Handle(context.Background(), protocol.Request{JSONRPC: "2.0", ID: 7, Method: "tools/call", Params: params})
	if resp.Error != nil {
		t.Fatalf("unexpected error %+v", resp.Error)
	}
	if _, ok := resp.Result.(protocol.CallResult); !ok {
		t.Fatalf("unexpected result type %T", resp.Result)
	}

	params, _ = json.Marshal(protocol.CallParams{Name: "get_user"})
	resp, _ = srv.Handle(context.Background(), protocol.Request{JSONRPC: "2.0", ID: 8, Method: "tools/call", Params: params})
	if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidParams {
		t.Fatalf("expected invalid params, got %+v", resp)
	}
}

func TestHandleToolsCallBadParams(t *testing.T) {
	srv := newTestServer()
	resp, _ := srv.Handle(context.Background(), protocol.Request{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: json.RawMessage(`[1,2]`)})
	if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidParams {
		t.Fatalf("expected invalid params, got %+v", resp)
	}
	resp, _ = srv.Handle(context.Background(), protocol.Request{JSONRPC: "2.0", ID: 2, Method: "tools/call", Params: json.RawMessage(`{}`)})
	if resp.Error == nil || resp.Error.Message != "tool name required" {
		t.Fatalf("expected tool name required, got %+v", resp)
	}
}

func TestHandleUnknownMethod(t *testing.T) {
	srv := newTestServer()
	resp, ok := srv.Handle(context.Background(), protocol.Request{JSONRPC: "2.0", ID: 1, Method: "resources/list"})
	if !ok || resp.Error == nil || resp.Error.Code != protocol.CodeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", resp)
	}
}

func TestHandleNotificationHasNoResponse(t *testing.T) {
	srv := newTestServer()
	if _, ok := srv.Handle(context.Background(), protocol.Request{JSONRPC: "2.0", Method: "notifications/initialized"}); ok {
		t.Fatalf("notifications must not be answered")
	}
}

func TestHandleRawParseError(t *testing.T) {
	srv := newTestServer()
	resp, ok := srv.HandleRaw(context.Background(), []byte("{not json"))
	if !ok || resp.Error == nil || resp.Error.Code != protocol.CodeParseError {
		t.Fatalf("expected parse error, got %+v", resp)
	}
	if resp.ID != nil {
		t.Fatalf("expected null id, got %v", resp.ID)
	}
}

func TestHandleBadVersion(t *testing.T) {
	srv := newTestServer()
	resp, _ := srv.Handle(context.Background(), protocol.Request{JSONRPC: "1.0", ID: 1, Method: "ping"})
	if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidRequest {
		t.Fatalf("expected invalid request, got %+v", resp)
	}
}

func TestHandleAfterClose(t *testing.T) {
	srv := newTestServer()
	srv.Close()
	if !srv.Closed() {
		t.Fatalf("expected closed")
	}
	resp, _ := srv.Handle(context.Background(), protocol.Request{JSONRPC: "2.0", ID: 1, Method: "ping"})
	if resp.Error == nil || resp.Error.Code != protocol.CodeServerError {
		t.Fatalf("expected server error after close, got %+v", resp)
	}
}
