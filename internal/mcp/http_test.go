package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmarma/okta-mcp-server/internal/logging"
	"github.com/dmarma/okta-mcp-server/internal/protocol"
)

type sseFrame struct {
	event string
	data  string
}

type sseConn struct {
	resp   *http.Response
	frames chan sseFrame
}

func openSSE(t *testing.T, baseURL string) *sseConn {
	t.Helper()
	resp, err := http.Get(baseURL + "/sse")
	if err != nil {
		t.Fatalf("open sse: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	c := &sseConn{resp: resp, frames: make(chan sseFrame, 16)}
	go func() {
		defer close(c.frames)
		sc := bufio.NewScanner(resp.Body)
		var cur sseFrame
		for sc.Scan() {
			line := sc.Text()
			switch {
			case line == "":
				c.frames <- cur
				cur = sseFrame{}
			case strings.HasPrefix(line, "event: "):
				cur.event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				cur.data = strings.TrimPrefix(line, "data: ")
			}
		}
	}()
	t.Cleanup(func() { resp.Body.Close() })
	return c
}

func (c *sseConn) next(t *testing.T) sseFrame {
	t.Helper()
	select {
	case f, ok := <-c.frames:
		if !ok {
			t.Fatalf("stream closed")
		}
		return f
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for frame")
	}
	return sseFrame{}
}

// handshake reads the endpoint and connection frames and returns the
// endpoint path.
func (c *sseConn) handshake(t *testing.T) (string, protocol.ConnectionEvent) {
	t.Helper()
	ep := c.next(t)
	if ep.event != "endpoint" || !strings.HasPrefix(ep.data, "/messages?sessionId=") {
		t.Fatalf("unexpected endpoint frame %+v", ep)
	}
	conn := c.next(t)
	var ev protocol.ConnectionEvent
	if err := json.Unmarshal([]byte(conn.data), &ev); err != nil {
		t.Fatalf("decode connection event: %v", err)
	}
	if ev.Type != "connection" || "/messages?sessionId="+ev.SessionID != ep.data {
		t.Fatalf("connection event does not match endpoint: %+v vs %s", ev, ep.data)
	}
	return ep.data, ev
}

func post(t *testing.T, url, contentType, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, contentType, strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func newTestManager(t *testing.T, tools ...Tool) (*SessionManager, *httptest.Server) {
	t.Helper()
	m := NewSessionManager(NewToolbox(logging.Discard(), tools), logging.Discard())
	ts := httptest.NewServer(m.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
		ts.Close()
	})
	return m, ts
}

func TestSSEToolsListMatchesToolbox(t *testing.T) {
	m, ts := newTestManager(t, echoTool("list_users"), echoTool("get_user", "userId"))
	c := openSSE(t, ts.URL)
	endpoint, _ := c.handshake(t)

	resp, body := post(t, ts.URL+endpoint, "application/json", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, body)
	}
	var ack map[string]any
	if err := json.Unmarshal(body, &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack["id"] != float64(1) || ack["result"].(map[string]any)["status"] != "accepted" {
		t.Fatalf("unexpected ack %v", ack)
	}

	msg := c.next(t)
	if msg.event != "message" {
		t.Fatalf("expected message event, got %+v", msg)
	}
	var rpc struct {
		ID     any                 `json:"id"`
		Result protocol.ListResult `json:"result"`
	}
	if err := json.Unmarshal([]byte(msg.data), &rpc); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	want := m.toolbox.ListTools()
	if len(rpc.Result.Tools) != len(want) {
		t.Fatalf("expected %d tools, got %d", len(want), len(rpc.Result.Tools))
	}
	for i := range want {
		if rpc.Result.Tools[i].Name != want[i].Name {
			t.Fatalf("tool %d: expected %s, got %s", i, want[i].Name, rpc.Result.Tools[i].Name)
		}
	}
}

func TestSSESessionsAreIsolated(t *testing.T) {
	m, ts := newTestManager(t, echoTool("ping_tool"))
	a := openSSE(t, ts.URL)
	b := openSSE(t, ts.URL)
	epA, evA := a.handshake(t)
	_, evB := b.handshake(t)
	if evA.SessionID == evB.SessionID {
		t.Fatalf("expected distinct session ids")
	}
	if m.SessionCount() != 2 {
		t.Fatalf("expected 2 sessions, got %d", m.SessionCount())
	}

	post(t, ts.URL+epA, "application/json", `{"jsonrpc":"2.0","id":"only-a","method":"ping"}`)
	msg := a.next(t)
	if !strings.Contains(msg.data, `"only-a"`) {
		t.Fatalf("unexpected response on session a: %s", msg.data)
	}

	select {
	case f := <-b.frames:
		t.Fatalf("session b received a frame meant for a: %+v", f)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPostUnknownSession(t *testing.T) {
	_, ts := newTestManager(t)
	for _, url := range []string{ts.URL + "/messages?sessionId=missing", ts.URL + "/messages"} {
		resp, body := post(t, url, "application/json", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
		var rpc protocol.Response
		if err := json.Unmarshal(body, &rpc); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if rpc.Error == nil || rpc.Error.Code != protocol.CodeInvalidParams || rpc.Error.Message != "Invalid session" || rpc.ID != nil {
			t.Fatalf("unexpected error body %s", body)
		}
	}
}

func TestPostAfterSessionClosed(t *testing.T) {
	m, ts := newTestManager(t)
	c := openSSE(t, ts.URL)
	endpoint, ev := c.handshake(t)
	c.resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for m.SessionCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session was not removed after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, _, err := m.Lookup(ev.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected closed session to be gone from both tables, got %v", err)
	}

	resp, body := post(t, ts.URL+endpoint, "application/json", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for closed session, got %d", resp.StatusCode)
	}
	var rpc protocol.Response
	if err := json.Unmarshal(body, &rpc); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	if rpc.Error == nil || rpc.Error.Code != protocol.CodeInvalidParams || rpc.Error.Message != "Invalid session" {
		t.Fatalf("unexpected error body %s", body)
	}
}

func TestPostToUnstartedSessionIsServerError(t *testing.T) {
	m, ts := newTestManager(t)
	tr, err := NewSSETransport(newFlushRecorder(), messagesPath)
	if err != nil {
		t.Fatalf("new transport: %v", err)
	}
	m.mu.Lock()
	m.servers[tr.SessionID()] = newTestServer()
	m.transports[tr.SessionID()] = tr
	m.mu.Unlock()

	resp, body := post(t, ts.URL+messagesPath+"?sessionId="+tr.SessionID(), "application/json", `{"jsonrpc":"2.0","id":42,"method":"ping"}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", resp.StatusCode, body)
	}
	var rpc protocol.Response
	if err := json.Unmarshal(body, &rpc); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	if rpc.Error == nil || rpc.Error.Code != protocol.CodeServerError || rpc.Error.Message != "Internal server error" {
		t.Fatalf("unexpected error body %s", body)
	}
	if id, ok := rpc.ID.(float64); !ok || id != 42 {
		t.Fatalf("expected id 42 echoed, got %#v", rpc.ID)
	}
}

func TestPostMalformedBody(t *testing.T) {
	_, ts := newTestManager(t)
	c := openSSE(t, ts.URL)
	endpoint, _ := c.handshake(t)

	resp, body := post(t, ts.URL+endpoint, "application/json", `{nope`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "-32700") {
		t.Fatalf("expected parse error envelope, got %s", body)
	}

	resp, _ = post(t, ts.URL+endpoint, "text/plain", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for wrong content type, got %d", resp.StatusCode)
	}
}

func TestPreflight(t *testing.T) {
	_, ts := newTestManager(t)
	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/messages", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || len(body) != 0 {
		t.Fatalf("unexpected preflight response %d %q", resp.StatusCode, body)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing allow-origin header")
	}
	if !strings.Contains(resp.Header.Get("Access-Control-Allow-Methods"), "POST") {
		t.Fatalf("unexpected allow-methods %q", resp.Header.Get("Access-Control-Allow-Methods"))
	}
}

func TestShutdownRefusesNewSessions(t *testing.T) {
	m, ts := newTestManager(t)
	c := openSSE(t, ts.URL)
	c.handshake(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if m.SessionCount() != 0 {
		t.Fatalf("expected no sessions after shutdown")
	}

	resp, err := http.Get(ts.URL + "/sse")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after shutdown, got %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	_, ts := newTestManager(t, echoTool("a"))
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["tools"] != float64(1) {
		t.Fatalf("unexpected health body %v", body)
	}
}

func TestSinkGuardsSecondResponse(t *testing.T) {
	rr := httptest.NewRecorder()
	sink := newHTTPSink(rr, 3)
	sink.WriteHead(http.StatusAccepted, nil)
	if err := sink.End([]byte(acceptedPayload)); err != nil {
		t.Fatalf("end: %v", err)
	}
	if !sink.HeadersSent() {
		t.Fatalf("expected headers sent")
	}
	sink.WriteHead(http.StatusInternalServerError, nil)
	_ = sink.End([]byte("second"))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	if rr.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected json ack content type")
	}
	if strings.Contains(rr.Body.String(), "second") {
		t.Fatalf("second response leaked into body: %s", rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"status":"accepted"`) || !strings.Contains(rr.Body.String(), `"id":3`) {
		t.Fatalf("unexpected ack body %s", rr.Body.String())
	}
}

func TestConfirmGatesResponses(t *testing.T) {
	rr := newFlushRecorder()
	tr, err := NewSSETransport(rr, messagesPath)
	if err != nil {
		t.Fatalf("new transport: %v", err)
	}
	srv := newTestServer()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped, err := srv.Connect(ctx, tr)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	body := `{"jsonrpc":"2.0","id":1,"method":"ping"}`
	req := httptest.NewRequest(http.MethodPost, "/messages?sessionId="+tr.SessionID(), strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	sink := newHTTPSink(httptest.NewRecorder(), 1)
	if err := tr.HandlePostMessage(req, []byte(body), sink); err != nil {
		t.Fatalf("post: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if strings.Contains(rr.body(), "event: message") {
		t.Fatalf("response written before confirmation: %s", rr.body())
	}

	if err := tr.Confirm(protocol.ConnectionEvent{Type: "connection", SessionID: tr.SessionID()}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(rr.body(), "event: message") {
		if time.Now().After(deadline) {
			t.Fatalf("no response after confirmation: %s", rr.body())
		}
		time.Sleep(10 * time.Millisecond)
	}
	out := rr.body()
	if strings.Index(out, `"type":"connection"`) > strings.Index(out, "event: message") {
		t.Fatalf("connection event must precede responses: %s", out)
	}

	tr.Close()
	<-stopped
	if err := tr.Send(protocol.NewResult(2, nil)); err != ErrTransportClosed {
		t.Fatalf("expected ErrTransportClosed after close, got %v", err)
	}
}

type flushRecorder struct {
	*httptest.ResponseRecorder
	mu sync.Mutex
}

func newFlushRecorder() *flushRecorder {
	return &flushRecorder{ResponseRecorder: httptest.NewRecorder()}
}

func (f *flushRecorder) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ResponseRecorder.Write(p)
}

func (f *flushRecorder) body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ResponseRecorder.Body.String()
}

func TestPostAfterTransportCloseIsNotQueued(t *testing.T) {
	tr, err := NewSSETransport(newFlushRecorder(), messagesPath)
	if err != nil {
		t.Fatalf("new transport: %v", err)
	}
	if err := tr.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	tr.Close()

	body := `{"jsonrpc":"2.0","id":1,"method":"ping"}`
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodPost, messagesPath+"?sessionId="+tr.SessionID(), strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		sink := newHTTPSink(httptest.NewRecorder(), 1)
		if err := tr.HandlePostMessage(req, []byte(body), sink); !errors.Is(err, ErrTransportClosed) {
			t.Fatalf("expected ErrTransportClosed, got %v", err)
		}
		if sink.HeadersSent() {
			t.Fatalf("closed transport must leave the sink to the caller")
		}
	}
	if n := len(tr.Messages()); n != 0 {
		t.Fatalf("expected no queued messages after close, got %d", n)
	}
}
