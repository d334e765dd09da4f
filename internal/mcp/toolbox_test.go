package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmarma/okta-mcp-server/internal/logging"
	"github.com/dmarma/okta-mcp-server/internal/protocol"
)

type fakeTool struct {
	def  Definition
	call func(ctx context.Context, args map[string]any) (any, error)
}

func (f fakeTool) Definition() Definition { return f.def }

func (f fakeTool) Call(ctx context.Context, args map[string]any) (any, error) {
	if f.call == nil {
		return args, nil
	}
	return f.call(ctx, args)
}

func echoTool(name string, required ...string) fakeTool {
	props := map[string]protocol.JSONSchema{}
	for _, r := range required {
		props[r] = protocol.JSONSchema{Type: "string"}
	}
	return fakeTool{def: Definition{
		Name:        name,
		Description: "echo " + name,
		Parameters:  protocol.JSONSchema{Type: "object", Properties: props, Required: required},
	}}
}

func TestToolboxListPreservesOrder(t *testing.T) {
	tb := NewToolbox(logging.Discard(), []Tool{echoTool("b"), echoTool("a"), echoTool("c")})
	list := tb.ListTools()
	if len(list) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(list))
	}
	for i, want := range []string{"b", "a", "c"} {
		if list[i].Name != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, list[i].Name)
		}
		if list[i].InputSchema == nil || list[i].InputSchema.Type != "object" {
			t.Fatalf("expected object input schema for %s", want)
		}
	}
}

func TestToolboxDuplicateFirstWins(t *testing.T) {
	first := echoTool("dup")
	first.def.Description = "first"
	second := echoTool("dup")
	second.def.Description = "second"

	tb := NewToolbox(logging.Discard(), []Tool{first, second})
	if tb.Len() != 1 {
		t.Fatalf("expected 1 tool, got %d", tb.Len())
	}
	if got := tb.ListTools()[0].Description; got != "first" {
		t.Fatalf("expected first registration to win, got %q", got)
	}
}

func TestCallToolUnknown(t *testing.T) {
	tb := NewToolbox(logging.Discard(), nil)
	_, rpcErr := tb.CallTool(context.Background(), "nope", nil)
	if rpcErr == nil {
		t.Fatalf("expected error")
	}
	if rpcErr.Code != protocol.CodeMethodNotFound || rpcErr.Message != "Unknown tool: nope" {
		t.Fatalf("unexpected error: %+v", rpcErr)
	}
}

func TestCallToolMissingRequiredInOrder(t *testing.T) {
	called := false
	tool := echoTool("t", "userId", "groupId")
	tool.call = func(context.Context, map[string]any) (any, error) {
		called = true
		return nil, nil
	}
	tb := NewToolbox(logging.Discard(), []Tool{tool})

	_, rpcErr := tb.CallTool(context.Background(), "t", map[string]any{"groupId": "g"})
	if rpcErr == nil || rpcErr.Code != protocol.CodeInvalidParams {
		t.Fatalf("expected invalid params, got %+v", rpcErr)
	}
	if rpcErr.Message != "Missing required parameter: userId" {
		t.Fatalf("unexpected message %q", rpcErr.Message)
	}

	_, rpcErr = tb.CallTool(context.Background(), "t", nil)
	if rpcErr == nil || rpcErr.Message != "Missing required parameter: userId" {
		t.Fatalf("expected first required parameter to be reported, got %+v", rpcErr)
	}
	if called {
		t.Fatalf("handler must not run when parameters are missing")
	}
}

func TestCallToolNullSatisfiesPresence(t *testing.T) {
	tb := NewToolbox(logging.Discard(), []Tool{echoTool("t", "userId")})
	res, rpcErr := tb.CallTool(context.Background(), "t", map[string]any{"userId": nil})
	if rpcErr != nil {
		t.Fatalf("unexpected error: %+v", rpcErr)
	}
	if len(res.Content) != 1 || !strings.Contains(res.Content[0].Text, `"userId": null`) {
		t.Fatalf("unexpected content %+v", res.Content)
	}
}

func TestCallToolSuccessIsIndentedJSON(t *testing.T) {
	tool := echoTool("t")
	tool.call = func(context.Context, map[string]any) (any, error) {
		return map[string]any{"id": "00u1", "status": "ACTIVE"}, nil
	}
	tb := NewToolbox(logging.Discard(), []Tool{tool})

	res, rpcErr := tb.CallTool(context.Background(), "t", map[string]any{})
	if rpcErr != nil {
		t.Fatalf("unexpected error: %+v", rpcErr)
	}
	want := "{\n  \"id\": \"00u1\",\n  \"status\": \"ACTIVE\"\n}"
	if len(res.Content) != 1 || res.Content[0].Type != "text" || res.Content[0].Text != want {
		t.Fatalf("unexpected content %+v", res.Content)
	}
}

func TestCallToolHandlerError(t *testing.T) {
	tool := echoTool("t")
	tool.call = func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("Not found: Resource not found: 123 (User)")
	}
	tb := NewToolbox(logging.Discard(), []Tool{tool})

	_, rpcErr := tb.CallTool(context.Background(), "t", nil)
	if rpcErr == nil || rpcErr.Code != protocol.CodeInternalError {
		t.Fatalf("expected internal error, got %+v", rpcErr)
	}
	if rpcErr.Message != "API error: Not found: Resource not found: 123 (User)" {
		t.Fatalf("unexpected message %q", rpcErr.Message)
	}
}

func TestCallToolRecoversPanic(t *testing.T) {
	tool := echoTool("t")
	tool.call = func(context.Context, map[string]any) (any, error) {
		panic("boom")
	}
	tb := NewToolbox(logging.Discard(), []Tool{tool})

	_, rpcErr := tb.CallTool(context.Background(), "t", nil)
	if rpcErr == nil || rpcErr.Code != protocol.CodeInternalError {
		t.Fatalf("expected internal error, got %+v", rpcErr)
	}
	if !strings.Contains(rpcErr.Message, "boom") {
		t.Fatalf("expected panic value in message, got %q", rpcErr.Message)
	}
}

func TestCallToolTimeout(t *testing.T) {
	tool := echoTool("t")
	tool.call = func(ctx context.Context, _ map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	tb := NewToolbox(logging.Discard(), []Tool{tool}, WithCallTimeout(20*time.Millisecond))

	_, rpcErr := tb.CallTool(context.Background(), "t", nil)
	if rpcErr == nil || rpcErr.Code != protocol.CodeInternalError {
		t.Fatalf("expected internal error, got %+v", rpcErr)
	}
	if !strings.Contains(rpcErr.Message, "timed out") {
		t.Fatalf("expected timeout message, got %q", rpcErr.Message)
	}
}

func TestDescribeSkipsUnnamed(t *testing.T) {
	if _, ok := Describe(echoTool("")); ok {
		t.Fatalf("expected unnamed tool to be skipped")
	}
	desc, ok := Describe(echoTool("x", "a"))
	if !ok || desc.InputSchema.Required[0] != "a" {
		t.Fatalf("unexpected descriptor %+v", desc)
	}
}
