package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/dmarma/okta-mcp-server/internal/protocol"
	"github.com/dmarma/okta-mcp-server/internal/version"
	"github.com/sirupsen/logrus"
)

const (
	ssePath      = "/sse"
	messagesPath = "/messages"
	maxBodyBytes = 4 << 20
)

// ErrSessionNotFound is returned by Lookup for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// SessionManager serves the event-stream transport. Every GET /sse opens a
// session with its own Server and SSETransport; POST /messages routes by
// the sessionId query parameter.
type SessionManager struct {
	toolbox *Toolbox
	log     *logrus.Entry

	mu         sync.RWMutex
	servers    map[string]*Server
	transports map[string]*SSETransport
	closed     bool
	wg         sync.WaitGroup
}

// NewSessionManager creates an empty manager sharing tb across sessions.
func NewSessionManager(tb *Toolbox, log *logrus.Entry) *SessionManager {
	return &SessionManager{
		toolbox:    tb,
		log:        log,
		servers:    make(map[string]*Server),
		transports: make(map[string]*SSETransport),
	}
}

// Handler returns the routed HTTP surface wrapped in CORS handling.
func (m *SessionManager) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+ssePath, m.handleSSE)
	mux.HandleFunc("POST "+messagesPath, m.handleMessages)
	mux.HandleFunc("GET /health", m.handleHealth)
	return withCORS(mux)
}

// SessionCount returns the number of live sessions.
func (m *SessionManager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.transports)
}

// Lookup returns the server and transport registered for id. Both must be
// present for the session to count as live.
func (m *SessionManager) Lookup(id string) (*Server, *SSETransport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	srv, ok := m.servers[id]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	t, ok := m.transports[id]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	return srv, t, nil
}

// Shutdown closes every session and refuses new ones. It waits for open
// stream handlers to return or ctx to end.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	transports := make([]*SSETransport, 0, len(m.transports))
	for _, t := range m.transports {
		transports = append(transports, t)
	}
	m.mu.Unlock()

	for _, t := range transports {
		t.Close()
	}

	waited := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *SessionManager) handleSSE(w http.ResponseWriter, r *http.Request) {
	t, err := NewSSETransport(w, messagesPath)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	id := t.SessionID()
	log := m.log.WithField("session", id)
	srv := NewServer(m.toolbox, log)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	m.servers[id] = srv
	m.transports[id] = t
	m.wg.Add(1)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.servers, id)
		delete(m.transports, id)
		m.mu.Unlock()
		srv.Close()
		t.Close()
		m.wg.Done()
		log.Info("session closed")
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	stopped, err := srv.Connect(ctx, t)
	if err != nil {
		log.WithError(err).Error("connect session")
		return
	}
	log.WithField("remote", r.RemoteAddr).Info("session opened")

	ev := protocol.ConnectionEvent{Type: "connection", SessionID: id, Server: version.Server()}
	if err := t.Confirm(ev); err != nil {
		log.WithError(err).Warn("send connection event")
		return
	}

	select {
	case <-r.Context().Done():
	case <-t.Done():
	case <-stopped:
	}
	cancel()
	t.Close()
	<-stopped
}

func (m *SessionManager) handleMessages(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("sessionId")
	srv, t, err := m.Lookup(id)
	if err != nil || srv.Closed() {
		writeRPCError(w, http.StatusBadRequest, nil, protocol.CodeInvalidParams, "Invalid session", map[string]any{"sessionId": id})
		return
	}
	log := m.log.WithField("session", id)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeRPCError(w, http.StatusBadRequest, nil, protocol.CodeParseError, "Parse error", err.Error())
		return
	}
	msgID := peekID(body)
	sink := newHTTPSink(w, msgID)

	defer func() {
		if rec := recover(); rec != nil {
			log.WithField("panic", rec).Error("message handler panicked")
			if !sink.HeadersSent() {
				writeRPCError(w, http.StatusInternalServerError, msgID, protocol.CodeServerError, "Internal server error", fmt.Sprint(rec))
			}
		}
	}()

	if err := t.HandlePostMessage(r, body, sink); err != nil {
		log.WithError(err).Warn("post message failed")
		if errors.Is(err, ErrTransportClosed) && !sink.HeadersSent() {
			writeRPCError(w, http.StatusBadRequest, nil, protocol.CodeInvalidParams, "Invalid session", map[string]any{"sessionId": id})
			return
		}
		if !sink.HeadersSent() {
			writeRPCError(w, http.StatusInternalServerError, msgID, protocol.CodeServerError, "Internal server error", err.Error())
		}
	}
}

func (m *SessionManager) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": m.SessionCount(),
		"tools":    m.toolbox.Len(),
	})
}

// peekID extracts the id of a posted message without validating the rest.
func peekID(body []byte) any {
	var probe struct {
		ID any `json:"id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil
	}
	return probe.ID
}

func writeRPCError(w http.ResponseWriter, status int, id any, code int, message string, data any) {
	writeJSON(w, status, protocol.NewError(id, code, message, data))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
