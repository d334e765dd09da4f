// Package sseclient is a small client for the event-stream MCP transport.
// It opens a session, posts JSON-RPC requests to the advertised endpoint
// and matches responses arriving on the stream by id.
package sseclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dmarma/okta-mcp-server/internal/protocol"
)

// ErrClosed is returned for calls after the stream ended.
var ErrClosed = errors.New("sse session closed")

// Client is one SSE session.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	body       io.ReadCloser

	endpoint string
	conn     protocol.ConnectionEvent

	counter uint64
	mu      sync.Mutex
	pending map[string]chan protocol.Response
	done    chan struct{}
	err     error
}

// Dial opens GET /sse on baseURL and waits for the endpoint and
// connection events.
func Dial(ctx context.Context, baseURL string, httpClient *http.Client) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String()+"/sse", nil)
	if err != nil {
		return nil, fmt.Errorf("build http request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("event stream returned status %d", resp.StatusCode)
	}

	c := &Client{
		baseURL:    base,
		httpClient: httpClient,
		body:       resp.Body,
		pending:    make(map[string]chan protocol.Response),
		done:       make(chan struct{}),
	}

	events := newEventReader(resp.Body)
	ev, err := events.next()
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("read endpoint event: %w", err)
	}
	if ev.name != "endpoint" {
		resp.Body.Close()
		return nil, fmt.Errorf("expected endpoint event, got %q", ev.name)
	}
	c.endpoint = ev.data

	ev, err = events.next()
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("read connection event: %w", err)
	}
	if err := json.Unmarshal([]byte(ev.data), &c.conn); err != nil || c.conn.Type != "connection" {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected connection event %q", ev.data)
	}

	go c.readLoop(events)
	return c, nil
}

// SessionID returns the id assigned by the server.
func (c *Client) SessionID() string { return c.conn.SessionID }

// Server returns the identity announced in the connection event.
func (c *Client) Server() protocol.ServerInfo { return c.conn.Server }

// Close ends the stream; the server drops the session.
func (c *Client) Close() error {
	return c.body.Close()
}

// Done is closed once the event stream has ended.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns why the event stream ended, or nil while it is open.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) closedErr() error {
	if err := c.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return ErrClosed
}

func (c *Client) readLoop(events *eventReader) {
	var err error
	for {
		var ev event
		ev, err = events.next()
		if err != nil {
			break
		}
		if ev.name != "message" {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(ev.data))
		dec.UseNumber()
		var resp protocol.Response
		if dec.Decode(&resp) != nil {
			continue
		}
		key := fmt.Sprint(resp.ID)
		c.mu.Lock()
		ch, ok := c.pending[key]
		delete(c.pending, key)
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}

	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	close(c.done)
}

// Call posts one request and waits for its response on the stream.
func (c *Client) Call(ctx context.Context, method string, params any) (protocol.Response, error) {
	select {
	case <-c.done:
		return protocol.Response{}, c.closedErr()
	default:
	}
	id := atomic.AddUint64(&c.counter, 1)
	key := fmt.Sprint(id)

	raw, err := json.Marshal(params)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("encode params: %w", err)
	}
	buf, err := json.Marshal(protocol.Request{JSONRPC: protocol.Version, ID: id, Method: method, Params: raw})
	if err != nil {
		return protocol.Response{}, fmt.Errorf("encode request: %w", err)
	}

	ch := make(chan protocol.Response, 1)
	c.mu.Lock()
	c.pending[key] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
	}()

	if err := c.post(ctx, buf); err != nil {
		return protocol.Response{}, err
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return resp, resp.Error
		}
		return resp, nil
	case <-c.done:
		return protocol.Response{}, c.closedErr()
	case <-ctx.Done():
		return protocol.Response{}, ctx.Err()
	}
}

// Notify posts a message without an id.
func (c *Client) Notify(ctx context.Context, method string) error {
	buf, err := json.Marshal(protocol.Request{JSONRPC: protocol.Version, Method: method})
	if err != nil {
		return err
	}
	return c.post(ctx, buf)
}

func (c *Client) post(ctx context.Context, body []byte) error {
	target, err := c.baseURL.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("resolve endpoint: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusAccepted {
		var rpc protocol.Response
		if json.NewDecoder(httpResp.Body).Decode(&rpc) == nil && rpc.Error != nil {
			return rpc.Error
		}
		return fmt.Errorf("mcp server returned status %d", httpResp.StatusCode)
	}
	return nil
}

// Initialize performs the MCP handshake.
func (c *Client) Initialize(ctx context.Context) (protocol.InitializeResult, error) {
	var result protocol.InitializeResult
	resp, err := c.Call(ctx, "initialize", map[string]any{
		"protocolVersion": protocol.MCPVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "okta-mcp-probe"},
	})
	if err != nil {
		return result, err
	}
	if err := remarshal(resp.Result, &result); err != nil {
		return result, fmt.Errorf("decode initialize result: %w", err)
	}
	return result, c.Notify(ctx, "notifications/initialized")
}

// ListTools fetches the advertised tools.
func (c *Client) ListTools(ctx context.Context) ([]protocol.ToolDescriptor, error) {
	resp, err := c.Call(ctx, "tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}
	var result protocol.ListResult
	if err := remarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("decode list result: %w", err)
	}
	return result.Tools, nil
}

// CallTool invokes a tool and returns the structured result.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (protocol.CallResult, error) {
	resp, err := c.Call(ctx, "tools/call", protocol.CallParams{Name: name, Args: args})
	if err != nil {
		return protocol.CallResult{}, err
	}
	var result protocol.CallResult
	if err := remarshal(resp.Result, &result); err != nil {
		return protocol.CallResult{}, fmt.Errorf("decode call result: %w", err)
	}
	return result, nil
}

func remarshal(in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

type event struct {
	name string
	data string
}

type eventReader struct {
	sc *bufio.Scanner
}

func newEventReader(r io.Reader) *eventReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 4<<20)
	return &eventReader{sc: sc}
}

func (r *eventReader) next() (event, error) {
	var ev event
	var data []string
	for r.sc.Scan() {
		line := r.sc.Text()
		switch {
		case line == "":
			if ev.name == "" && len(data) == 0 {
				continue
			}
			ev.data = strings.Join(data, "\n")
			return ev, nil
		case strings.HasPrefix(line, "event:"):
			ev.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := r.sc.Err(); err != nil {
		return ev, err
	}
	return ev, io.EOF
}
