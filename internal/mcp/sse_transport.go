package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/dmarma/okta-mcp-server/internal/protocol"
	"github.com/elnormous/contenttype"
	"github.com/google/uuid"
)

var (
	// ErrTransportClosed is returned for writes or deliveries after Close.
	ErrTransportClosed = errors.New("sse transport closed")
	// ErrNotConnected is returned when a message arrives before Start.
	ErrNotConnected = errors.New("sse transport not connected")
)

var jsonMediaType = contenttype.NewMediaType("application/json")

// acceptedPayload is what HandlePostMessage ends a successful delivery
// with: the message was queued, there is no body.
const acceptedPayload = "Accepted"

const sessionInboxSize = 32

// SSETransport is the event-stream half of one session. It owns the GET
// response it streams to and receives POSTed messages through
// HandlePostMessage.
type SSETransport struct {
	id       string
	endpoint string
	w        http.ResponseWriter
	flusher  http.Flusher

	mu        sync.Mutex
	started   bool
	closed    bool
	messages  chan protocol.Request
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	closeOnce sync.Once
}

// NewSSETransport binds a transport to an event-stream response. The
// session id is generated here; endpoint is the path clients POST to.
func NewSSETransport(w http.ResponseWriter, endpoint string) (*SSETransport, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support flushing")
	}
	return &SSETransport{
		id:       uuid.NewString(),
		endpoint: endpoint,
		w:        w,
		flusher:  f,
		messages: make(chan protocol.Request, sessionInboxSize),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// SessionID returns the generated identifier.
func (t *SSETransport) SessionID() string { return t.id }

// Start writes the stream headers and the endpoint event.
func (t *SSETransport) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}
	if t.started {
		return errors.New("sse transport already started")
	}
	t.started = true

	h := t.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	t.w.WriteHeader(http.StatusOK)

	endpoint := t.endpoint + "?sessionId=" + url.QueryEscape(t.id)
	return t.writeFrameLocked("endpoint", []byte(endpoint))
}

// Confirm writes the connection event and opens the session for
// responses. Nothing queued is answered before the confirmation is on the
// wire.
func (t *SSETransport) Confirm(ev protocol.ConnectionEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	t.mu.Lock()
	err = t.writeFrameLocked("", b)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	t.readyOnce.Do(func() { close(t.ready) })
	return nil
}

// Send writes one JSON-RPC message as an event-stream message event.
func (t *SSETransport) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeFrameLocked("message", b)
}

// writeFrameLocked must be called with t.mu held.
func (t *SSETransport) writeFrameLocked(event string, data []byte) error {
	if t.closed {
		return ErrTransportClosed
	}
	if !t.started {
		return ErrNotConnected
	}
	if event != "" {
		if _, err := fmt.Fprintf(t.w, "event: %s\n", event); err != nil {
			return fmt.Errorf("write sse event: %w", err)
		}
	}
	if _, err := fmt.Fprintf(t.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write sse data: %w", err)
	}
	t.flusher.Flush()
	return nil
}

// HandlePostMessage validates and queues one POSTed message, answering
// through sink: 202 and the accepted payload on success, 400 for a bad
// content type or undecodable body. body is the already-read request body.
// Returned errors that left the sink untouched are for the caller to answer.
func (t *SSETransport) HandlePostMessage(r *http.Request, body []byte, sink ResponseSink) error {
	t.mu.Lock()
	started, closed := t.started, t.closed
	t.mu.Unlock()
	if closed {
		return ErrTransportClosed
	}
	if !started {
		return ErrNotConnected
	}

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		sink.WriteHead(http.StatusBadRequest, map[string]string{"Content-Type": "text/plain; charset=utf-8"})
		_ = sink.End([]byte("Unsupported content-type: " + r.Header.Get("Content-Type")))
		return fmt.Errorf("unsupported content-type %q", r.Header.Get("Content-Type"))
	}

	var req protocol.Request
	if err := json.Unmarshal(body, &req); err != nil {
		env, _ := json.Marshal(protocol.NewError(nil, protocol.CodeParseError, "Parse error", err.Error()))
		sink.WriteHead(http.StatusBadRequest, map[string]string{"Content-Type": "application/json"})
		_ = sink.End(env)
		return fmt.Errorf("invalid message: %w", err)
	}

	// A closed transport must win over free inbox space.
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
	}
	select {
	case t.messages <- req:
	case <-t.done:
		return ErrTransportClosed
	case <-r.Context().Done():
		return r.Context().Err()
	}

	sink.WriteHead(http.StatusAccepted, nil)
	return sink.End([]byte(acceptedPayload))
}

// Messages implements MessageStream.
func (t *SSETransport) Messages() <-chan protocol.Request { return t.messages }

// Ready implements MessageStream.
func (t *SSETransport) Ready() <-chan struct{} { return t.ready }

// Done implements MessageStream.
func (t *SSETransport) Done() <-chan struct{} { return t.done }

// Close ends the stream. No write happens after Close returns.
func (t *SSETransport) Close() {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
		close(t.done)
	})
}
