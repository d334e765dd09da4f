package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/dmarma/okta-mcp-server/internal/protocol"
	"github.com/sirupsen/logrus"
)

const maxStdioMessage = 4 << 20

// StdioTransport carries newline-delimited JSON-RPC over a reader/writer
// pair, normally the process's stdin and stdout.
type StdioTransport struct {
	r   io.Reader
	w   io.Writer
	log *logrus.Entry

	mu       sync.Mutex
	messages chan protocol.Request
	ready    chan struct{}
	done     chan struct{}
	doneOnce sync.Once
	err      error
}

// NewStdioTransport returns a transport reading r and writing w.
func NewStdioTransport(r io.Reader, w io.Writer, log *logrus.Entry) *StdioTransport {
	t := &StdioTransport{
		r:        r,
		w:        w,
		log:      log,
		messages: make(chan protocol.Request),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	close(t.ready)
	return t
}

// Start begins reading the input stream.
func (t *StdioTransport) Start() error {
	go t.read()
	return nil
}

func (t *StdioTransport) read() {
	scanner := bufio.NewScanner(t.r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxStdioMessage)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var req protocol.Request
		if err := json.Unmarshal(line, &req); err != nil {
			t.log.WithError(err).Warn("stdio parse error")
			if err := t.Send(protocol.NewError(nil, protocol.CodeParseError, "Parse error", err.Error())); err != nil {
				t.finish(err)
				return
			}
			continue
		}
		select {
		case t.messages <- req:
		case <-t.done:
			return
		}
	}
	t.finish(scanner.Err())
}

func (t *StdioTransport) finish(err error) {
	t.doneOnce.Do(func() {
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
		close(t.done)
	})
}

// Messages implements MessageStream.
func (t *StdioTransport) Messages() <-chan protocol.Request { return t.messages }

// Ready implements MessageStream.
func (t *StdioTransport) Ready() <-chan struct{} { return t.ready }

// Done implements MessageStream.
func (t *StdioTransport) Done() <-chan struct{} { return t.done }

// Err returns the read error that ended the stream, nil on EOF.
func (t *StdioTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Send writes one message as a single line.
func (t *StdioTransport) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	_, err = t.w.Write(b)
	return err
}

// ServeStdio binds one server to the stream and blocks until the input
// ends or ctx is cancelled. The server is closed on return.
func ServeStdio(ctx context.Context, srv *Server, r io.Reader, w io.Writer, log *logrus.Entry) error {
	defer srv.Close()

	t := NewStdioTransport(r, w, log)
	stopped, err := srv.Connect(ctx, t)
	if err != nil {
		return err
	}
	log.Info("stdio transport connected")

	<-stopped
	if ctx.Err() != nil {
		log.Info("stdio transport interrupted")
		return nil
	}
	if err := t.Err(); err != nil && !errors.Is(err, io.EOF) {
		log.WithError(err).Error("stdio read failed")
		return err
	}
	log.Info("stdio stream closed")
	return nil
}
