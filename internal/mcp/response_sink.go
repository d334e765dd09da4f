package mcp

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/dmarma/okta-mcp-server/internal/protocol"
)

// ResponseSink is the minimal response surface a transport answers a
// POSTed message through.
type ResponseSink interface {
	WriteHead(status int, headers map[string]string)
	Write(p []byte) error
	End(p []byte) error
	HeadersSent() bool
}

// httpSink adapts an http.ResponseWriter. Headers are committed on the
// first body write so End can still decide the content type.
type httpSink struct {
	w      http.ResponseWriter
	id     any
	mu     sync.Mutex
	status int
	sent   bool
	ended  bool
}

func newHTTPSink(w http.ResponseWriter, id any) *httpSink {
	return &httpSink{w: w, id: id}
}

func (s *httpSink) WriteHead(status int, headers map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent {
		return
	}
	s.status = status
	for k, v := range headers {
		s.w.Header().Set(k, v)
	}
}

func (s *httpSink) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commit()
	_, err := s.w.Write(p)
	return err
}

// End writes the final chunk. The bare accepted payload is turned into a
// JSON-RPC acknowledgement carrying the id of the posted message.
func (s *httpSink) End(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return nil
	}
	s.ended = true

	if string(p) == acceptedPayload && !s.sent {
		ack, err := json.Marshal(struct {
			JSONRPC string         `json:"jsonrpc"`
			Result  map[string]any `json:"result"`
			ID      any            `json:"id"`
		}{protocol.Version, map[string]any{"status": "accepted"}, s.id})
		if err != nil {
			return err
		}
		s.w.Header().Set("Content-Type", "application/json")
		p = ack
	}
	s.commit()
	if len(p) == 0 {
		return nil
	}
	_, err := s.w.Write(p)
	return err
}

func (s *httpSink) HeadersSent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// commit must be called with s.mu held.
func (s *httpSink) commit() {
	if s.sent {
		return
	}
	s.sent = true
	status := s.status
	if status == 0 {
		status = http.StatusOK
	}
	s.w.WriteHeader(status)
}
