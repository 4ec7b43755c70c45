// Package smctest runs a scripted management server for tests of code that
// talks to monitoring sockets.
package smctest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/ridge/must/v2"
	"github.com/ridge/parallel"
	"github.com/ridge/smcmon/session"
	"github.com/ridge/smcmon/test"
	"github.com/ridge/smcmon/thttp"
	"github.com/ridge/smcmon/tnet"
	"github.com/ridge/smcmon/tws"
)

// APIVersion is the API version the server pretends to serve
const APIVersion = "6.4"

// serverTimeout bounds the lifetime of a test server
const serverTimeout = time.Minute

// SessionID is the cookie value the server accepts
const SessionID = "0123456789ABCDEF"

// HandlerFn scripts one socket connection. Returning nil closes the
// connection gracefully.
type HandlerFn func(ctx context.Context, conn *Conn) error

// Server is a scripted management server
type Server struct {
	Session *session.Session

	mu       sync.Mutex
	handlers map[string]HandlerFn
	conns    int
}

// New starts a server for the duration of the test
func New(t *testing.T) *Server {
	s := &Server{handlers: map[string]HandlerFn{}}

	router := mux.NewRouter()
	router.HandleFunc("/"+APIVersion+"/{location:.+}", s.serveSocket)

	group := test.GroupWithTimeout(t, serverTimeout)
	server := thttp.NewServer(tnet.ListenOnRandomPort(), thttp.StandardMiddleware(router))
	group.Spawn("http", parallel.Fail, server.Run)

	s.Session = &session.Session{
		URL:        "http://" + server.ListenAddr().String(),
		APIVersion: APIVersion,
		ID:         SessionID,
	}
	return s
}

// Handle installs the script for a socket location such as
// /monitoring/log/socket
func (s *Server) Handle(location string, fn HandlerFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[location] = fn
}

// Connections returns the number of accepted socket connections
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

func (s *Server) serveSocket(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Cookie") != "JSESSIONID="+SessionID {
		http.Error(w, "not logged in", http.StatusUnauthorized)
		return
	}

	location := "/" + mux.Vars(r)["location"]
	s.mu.Lock()
	fn := s.handlers[location]
	if fn != nil {
		s.conns++
	}
	s.mu.Unlock()
	if fn == nil {
		http.NotFound(w, r)
		return
	}

	tws.Serve(w, r, tws.StreamerConfig, func(ctx context.Context, incoming <-chan tws.Message, outgoing chan<- tws.Message) error {
		return fn(ctx, &Conn{ctx: ctx, incoming: incoming, outgoing: outgoing})
	})
}

// Conn is the server side of a socket connection
type Conn struct {
	ctx      context.Context
	incoming <-chan tws.Message
	outgoing chan<- tws.Message
}

// ErrClosed is returned by Conn.Read when the client has gone away
var ErrClosed = fmt.Errorf("connection closed by client")

// Read decodes the next client message into v
func (c *Conn) Read(v any) error {
	select {
	case <-c.ctx.Done():
		return c.ctx.Err()
	case msg, ok := <-c.incoming:
		if !ok {
			return ErrClosed
		}
		return json.Unmarshal(msg.Data, v)
	}
}

// Request reads the next client message as a generic JSON object
func (c *Conn) Request() (map[string]any, error) {
	var req map[string]any
	if err := c.Read(&req); err != nil {
		return nil, err
	}
	return req, nil
}

// Send encodes v as a frame
func (c *Conn) Send(v any) error {
	return c.SendRaw(string(must.OK1(json.Marshal(v))))
}

// SendRaw sends a frame as is
func (c *Conn) SendRaw(frame string) error {
	select {
	case <-c.ctx.Done():
		return c.ctx.Err()
	case c.outgoing <- tws.Message{Data: []byte(frame)}:
		return nil
	}
}

// Rest reads client messages until the client closes the connection
func (c *Conn) Rest() ([]map[string]any, error) {
	var rest []map[string]any
	for {
		req, err := c.Request()
		switch {
		case err == ErrClosed:
			return rest, nil
		case err != nil:
			return rest, err
		}
		rest = append(rest, req)
	}
}

// Wait blocks until the client closes the connection
func (c *Conn) Wait() {
	select {
	case <-c.ctx.Done():
	case <-c.drained():
	}
}

func (c *Conn) drained() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		for range c.incoming {
		}
	}()
	return ch
}
