package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/leonletto/msgg/internal/identity"
)

// Path is the HTTP path the backend connects to.
const Path = "/bridge"

// ErrNoBackend is returned when no backend session is connected.
var ErrNoBackend = errors.New("no backend connected")

// Recorder stores an incoming event in the message log.
type Recorder interface {
	Record(ts time.Time, account, origin, text string) uint64
}

// Server is the WebSocket endpoint the IM backend process connects to. At most
// one backend session is active; a newer connection replaces the old one.
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	upgrader   websocket.Upgrader
	recorder   Recorder
	now        func() time.Time

	mu       sync.RWMutex
	shutdown bool
	active   *Connection
	buddies  []string
	wg       sync.WaitGroup
}

// NewServer creates a bridge server.
// Addr format: "host:port" (e.g., "127.0.0.1:7788"); port 0 picks a free port.
func NewServer(addr string, recorder Recorder) *Server {
	s := &Server{
		addr:     addr,
		recorder: recorder,
		now:      time.Now,
		upgrader: websocket.Upgrader{
			// The backend is a local process, not a browser.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.handleWebSocket)

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start binds the listen address and begins accepting backend connections.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return fmt.Errorf("server is shutting down")
	}
	s.mu.Unlock()

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "Bridge server error: %v\n", err)
		}
	}()

	return nil
}

// Stop closes the backend session and the HTTP server.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.shutdown = true
	active := s.active
	s.mu.Unlock()

	if active != nil {
		_ = active.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	// Wait for the connection handlers to finish
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}

	return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// URL returns the WebSocket URL a backend should dial.
func (s *Server) URL() string {
	return "ws://" + s.Addr() + Path
}

// SessionID returns the active backend session, or "" if none.
func (s *Server) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return ""
	}
	return s.active.sessionID
}

// Deliver asks the backend to send body to target.
func (s *Server) Deliver(ctx context.Context, target, body string) error {
	s.mu.RLock()
	active := s.active
	s.mu.RUnlock()

	if active == nil {
		return ErrNoBackend
	}

	data, err := json.Marshal(DeliverFrame{Type: FrameDeliver, Target: target, Body: body})
	if err != nil {
		return fmt.Errorf("marshal deliver frame: %w", err)
	}
	if err := active.Send(data); err != nil {
		return fmt.Errorf("session %s: %w", active.sessionID, err)
	}
	return nil
}

// Buddies returns the correspondents the backend last reported online.
func (s *Server) Buddies(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.active == nil {
		return nil, ErrNoBackend
	}
	out := make([]string, len(s.buddies))
	copy(out, s.buddies)
	return out, nil
}

// handleWebSocket handles the WebSocket upgrade and connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Hold the read lock across both the shutdown check and wg.Add to prevent
	// a race where Stop() calls wg.Wait() between our check and our Add.
	s.mu.RLock()
	if s.shutdown {
		s.mu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.RUnlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.wg.Done()
		log.Printf("bridge: upgrade error: %v", err)
		return
	}

	go s.handleConnection(context.Background(), conn)
}

// handleConnection manages a single backend session.
func (s *Server) handleConnection(ctx context.Context, conn *websocket.Conn) {
	defer s.wg.Done()

	wsConn := NewConnection(conn, s, identity.GenerateSessionID())
	s.attach(wsConn)
	defer s.detach(wsConn)

	welcome, _ := json.Marshal(WelcomeFrame{Type: FrameWelcome, SessionID: wsConn.sessionID})
	_ = wsConn.Send(welcome)

	errCh := make(chan error, 2)

	go func() {
		errCh <- wsConn.ReadLoop(ctx)
	}()

	go func() {
		errCh <- wsConn.WriteLoop(ctx)
	}()

	if err := <-errCh; err != nil {
		log.Printf("bridge: session %s: %v", wsConn.sessionID, err)
	}

	_ = wsConn.Close()
}

// attach makes c the active session, closing any previous one.
func (s *Server) attach(c *Connection) {
	s.mu.Lock()
	prev := s.active
	s.active = c
	s.buddies = nil
	s.mu.Unlock()

	if prev != nil {
		log.Printf("bridge: session %s replaced by %s", prev.sessionID, c.sessionID)
		_ = prev.Close()
	} else {
		log.Printf("bridge: session %s connected", c.sessionID)
	}
}

// detach clears c if it is still the active session.
func (s *Server) detach(c *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == c {
		s.active = nil
		s.buddies = nil
		log.Printf("bridge: session %s disconnected", c.sessionID)
	}
}

// handleFrame applies one frame from the backend on session c.
func (s *Server) handleFrame(c *Connection, data []byte) error {
	var f InboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse frame: %w", err)
	}

	switch f.Type {
	case FrameEvent:
		ts, account, origin, text, err := f.render(s.now())
		if err != nil {
			return err
		}
		s.recorder.Record(ts, account, origin, text)
		return nil

	case FramePresence:
		buddies := make([]string, len(f.Buddies))
		copy(buddies, f.Buddies)
		s.mu.Lock()
		if s.active == c {
			s.buddies = buddies
		}
		s.mu.Unlock()
		return nil

	default:
		return fmt.Errorf("unknown frame type %q", f.Type)
	}
}
