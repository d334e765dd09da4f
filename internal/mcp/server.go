package mcp

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/dmarma/okta-mcp-server/internal/protocol"
	"github.com/dmarma/okta-mcp-server/internal/version"
	"github.com/sirupsen/logrus"
)

// Server handles MCP JSON-RPC messages against a toolbox. One Server serves
// exactly one conversation: the stdio stream or a single SSE session.
type Server struct {
	toolbox *Toolbox
	log     *logrus.Entry
	closed  atomic.Bool
}

// NewServer wires a toolbox into an MCP server.
func NewServer(tb *Toolbox, log *logrus.Entry) *Server {
	return &Server{toolbox: tb, log: log}
}

// Close marks the server closed. Later messages are rejected.
func (s *Server) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.log.Debug("server closed")
	}
}

// Closed reports whether Close was called.
func (s *Server) Closed() bool { return s.closed.Load() }

// HandleRaw decodes and routes one message. The boolean is false when no
// response must be sent.
func (s *Server) HandleRaw(ctx context.Context, raw []byte) (protocol.Response, bool) {
	var req protocol.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return protocol.NewError(nil, protocol.CodeParseError, "Parse error", err.Error()), true
	}
	return s.Handle(ctx, req)
}

// Handle routes a single request.
func (s *Server) Handle(ctx context.Context, req protocol.Request) (protocol.Response, bool) {
	log := s.log.WithField("method", req.Method).WithField("id", req.ID)

	if req.JSONRPC != "" && req.JSONRPC != protocol.Version {
		return protocol.NewError(req.ID, protocol.CodeInvalidRequest, "invalid jsonrpc version", nil), !req.IsNotification()
	}
	if req.IsNotification() {
		log.Debug("notification received")
		return protocol.Response{}, false
	}
	if s.closed.Load() {
		return protocol.NewError(req.ID, protocol.CodeServerError, "Server closed", nil), true
	}

	switch req.Method {
	case "initialize":
		return protocol.NewResult(req.ID, protocol.InitializeResult{
			ProtocolVersion: protocol.MCPVersion,
			ServerInfo:      version.Server(),
			Capabilities: map[string]any{
				"tools": map[string]any{},
			},
		}), true
	case "ping":
		return protocol.NewResult(req.ID, map[string]any{}), true
	case "tools/list":
		log.Debug("listing tools")
		return protocol.NewResult(req.ID, protocol.ListResult{Tools: s.toolbox.ListTools()}), true
	case "tools/call":
		var params protocol.CallParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				return protocol.NewError(req.ID, protocol.CodeInvalidParams, "invalid params", err.Error()), true
			}
		}
		if params.Name == "" {
			return protocol.NewError(req.ID, protocol.CodeInvalidParams, "tool name required", nil), true
		}
		result, toolErr := s.toolbox.CallTool(ctx, params.Name, params.Args)
		if toolErr != nil {
			return protocol.Response{JSONRPC: protocol.Version, ID: req.ID, Error: toolErr}, true
		}
		return protocol.NewResult(req.ID, result), true
	case "":
		return protocol.NewError(req.ID, protocol.CodeInvalidRequest, "method required", nil), true
	default:
		log.Warn("method not found")
		return protocol.NewError(req.ID, protocol.CodeMethodNotFound, "Method not found: "+req.Method, nil), true
	}
}

// MessageStream is the server-facing half of a transport.
type MessageStream interface {
	// Start performs the transport side of the handshake.
	Start() error
	// Messages delivers inbound requests in arrival order.
	Messages() <-chan protocol.Request
	// Ready is closed once responses may be written.
	Ready() <-chan struct{}
	// Done is closed when the stream ends.
	Done() <-chan struct{}
	// Send writes one outbound message.
	Send(v any) error
}

// Connect starts the stream and processes its messages on a new goroutine,
// one at a time and in order. The returned channel is closed when
// processing stops, either because the stream ended or ctx was cancelled.
func (s *Server) Connect(ctx context.Context, stream MessageStream) (<-chan struct{}, error) {
	if err := stream.Start(); err != nil {
		return nil, err
	}
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		s.serve(ctx, stream)
	}()
	return stopped, nil
}

func (s *Server) serve(ctx context.Context, stream MessageStream) {
	select {
	case <-stream.Ready():
	case <-stream.Done():
		return
	case <-ctx.Done():
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-stream.Done():
			return
		case req := <-stream.Messages():
			resp, ok := s.Handle(ctx, req)
			if !ok {
				continue
			}
			if err := stream.Send(resp); err != nil {
				s.log.WithError(err).WithField("method", req.Method).Warn("send response failed")
			}
		}
	}
}
