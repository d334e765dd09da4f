package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmarma/okta-mcp-server/internal/protocol"
	"github.com/sirupsen/logrus"
)

// Toolbox stores tools in discovery order and dispatches calls by name. It
// is read-only after construction.
type Toolbox struct {
	log         *logrus.Entry
	tools       []Tool
	byName      map[string]Tool
	callTimeout time.Duration
}

// ToolboxOption configures a Toolbox.
type ToolboxOption func(*Toolbox)

// WithCallTimeout bounds every handler invocation. Zero disables the bound.
func WithCallTimeout(d time.Duration) ToolboxOption {
	return func(tb *Toolbox) { tb.callTimeout = d }
}

// NewToolbox constructs a toolbox with the provided tools. When two tools
// share a name the first one wins.
func NewToolbox(log *logrus.Entry, tools []Tool, opts ...ToolboxOption) *Toolbox {
	tb := &Toolbox{log: log, byName: make(map[string]Tool, len(tools))}
	for _, opt := range opts {
		opt(tb)
	}
	for _, t := range tools {
		name := t.Definition().Name
		if _, dup := tb.byName[name]; dup {
			log.WithField("tool", name).Warn("duplicate tool name ignored")
			continue
		}
		tb.byName[name] = t
		tb.tools = append(tb.tools, t)
	}
	return tb
}

// Len returns the number of loaded tools.
func (tb *Toolbox) Len() int { return len(tb.tools) }

// ListTools returns all tool descriptors in load order.
func (tb *Toolbox) ListTools() []protocol.ToolDescriptor {
	list := make([]protocol.ToolDescriptor, 0, len(tb.tools))
	for _, t := range tb.tools {
		desc, ok := Describe(t)
		if !ok {
			tb.log.Warn("tool without definition skipped from listing")
			continue
		}
		list = append(list, desc)
	}
	return list
}

// CallTool resolves name, checks required parameters and runs the handler.
// Handler failures come back as internal errors; CallTool itself never
// panics.
func (tb *Toolbox) CallTool(ctx context.Context, name string, args map[string]any) (protocol.CallResult, *protocol.ResponseError) {
	log := tb.log.WithField("tool", name)
	log.Debug("tool call received")

	tool, ok := tb.byName[name]
	if !ok {
		log.Warn("unknown tool")
		return protocol.CallResult{}, &protocol.ResponseError{
			Code:    protocol.CodeMethodNotFound,
			Message: "Unknown tool: " + name,
			Data:    map[string]string{"name": name},
		}
	}
	if args == nil {
		args = map[string]any{}
	}

	for _, param := range tool.Definition().Parameters.Required {
		// Presence, not truthiness: an explicit null satisfies the check.
		if _, present := args[param]; !present {
			log.WithField("parameter", param).Warn("missing required parameter")
			return protocol.CallResult{}, &protocol.ResponseError{
				Code:    protocol.CodeInvalidParams,
				Message: "Missing required parameter: " + param,
				Data:    map[string]string{"parameter": param},
			}
		}
	}
	log.Debug("parameters validated")

	start := time.Now()
	out, err := tb.invoke(ctx, tool, args)
	if err != nil {
		log.WithError(err).WithField("dur", time.Since(start)).Warn("tool call failed")
		return protocol.CallResult{}, &protocol.ResponseError{
			Code:    protocol.CodeInternalError,
			Message: "API error: " + err.Error(),
		}
	}

	text, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		log.WithError(err).Error("encode tool result")
		return protocol.CallResult{}, &protocol.ResponseError{
			Code:    protocol.CodeInternalError,
			Message: "API error: encode result: " + err.Error(),
		}
	}
	log.WithField("dur", time.Since(start)).Info("tool call completed")

	return protocol.CallResult{Content: []protocol.ContentPart{{Type: "text", Text: string(text)}}}, nil
}

type callOutcome struct {
	value any
	err   error
}

func (tb *Toolbox) invoke(ctx context.Context, tool Tool, args map[string]any) (any, error) {
	if tb.callTimeout <= 0 {
		res := safeCall(ctx, tool, args)
		return res.value, res.err
	}

	ctx, cancel := context.WithTimeout(ctx, tb.callTimeout)
	defer cancel()

	done := make(chan callOutcome, 1)
	go func() { done <- safeCall(ctx, tool, args) }()

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("call timed out after %s", tb.callTimeout)
		}
		return nil, ctx.Err()
	}
}

func safeCall(ctx context.Context, tool Tool, args map[string]any) (res callOutcome) {
	defer func() {
		if r := recover(); r != nil {
			res = callOutcome{err: fmt.Errorf("handler panic: %v", r)}
		}
	}()
	v, err := tool.Call(ctx, args)
	return callOutcome{value: v, err: err}
}
