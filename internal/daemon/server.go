package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Default connection limits.
const (
	DefaultBufferSize   = 1024
	DefaultReadTimeout  = 5 * time.Second
	DefaultWriteTimeout = 5 * time.Second
)

// RequestHandler handles one raw request and writes the response to w.
type RequestHandler interface {
	Handle(ctx context.Context, req []byte, w io.Writer) error
}

// ServerOptions tune how requests are read off a connection.
type ServerOptions struct {
	// BufferSize caps the request size. Bytes beyond it are discarded.
	BufferSize int
	// ReadTimeout and WriteTimeout bound each connection; zero disables.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// AccumulateReads keeps reading until EOF or a full buffer instead of
	// taking the first read as the whole request.
	AccumulateReads bool
}

// Server represents the Unix socket relay server. Each connection carries a
// single request.
type Server struct {
	socketPath string
	listener   net.Listener
	handler    RequestHandler
	opts       ServerOptions
	mu         sync.RWMutex
	shutdown   bool
	wg         sync.WaitGroup
	startTime  time.Time
}

// NewServer creates a new relay server. Zero options select the defaults.
func NewServer(socketPath string, handler RequestHandler, opts ServerOptions) *Server {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	return &Server{
		socketPath: socketPath,
		handler:    handler,
		opts:       opts,
		startTime:  time.Now(),
	}
}

// SocketPath returns the path the server listens on.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Uptime returns how long ago the server was created.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Start starts the server and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	// Ensure socket directory exists
	socketDir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(socketDir, 0700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	// Remove old socket if it exists
	if err := s.removeOldSocket(); err != nil {
		return fmt.Errorf("failed to remove old socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	s.listener = listener

	// Set socket permissions to owner-only
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	go s.acceptLoop(ctx)

	return nil
}

// Stop stops the server and waits for all connections to finish.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	// Never started: the socket, if any, belongs to someone else.
	if s.listener == nil {
		return nil
	}
	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("failed to close listener: %w", err)
	}

	// Wait for all connections to finish (with timeout)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Printf("server: timed out waiting for connections to finish")
	}

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove socket: %w", err)
	}

	return nil
}

// removeOldSocket removes a stale socket file.
func (s *Server) removeOldSocket() error {
	if _, err := os.Stat(s.socketPath); err == nil {
		// Try to connect to see if socket is active
		conn, err := net.DialTimeout("unix", s.socketPath, 500*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return fmt.Errorf("socket %s is in use by another relay", s.socketPath)
		}

		if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}
	return nil
}

func (s *Server) isShutdown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shutdown
}

// acceptLoop accepts connections in a loop.
func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isShutdown() || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("server: accept error: %v", err)
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

// handleConnection reads one request, hands it to the handler and closes the
// connection. Failures are logged and never reach other connections.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()

	if s.opts.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	}

	req, err := s.readRequest(conn)
	if err != nil {
		log.Printf("server: error reading from socket: %v", err)
		return
	}
	log.Printf("server: read %d bytes", len(req))
	if len(req) == 0 {
		return
	}

	if s.opts.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	}

	if err := s.handler.Handle(ctx, req, conn); err != nil {
		log.Printf("server: %v", err)
	}
}

// readRequest reads at most BufferSize bytes. By default the first read is
// the whole request, so a request split across writes or larger than the
// buffer is cut short; AccumulateReads lifts the first restriction.
func (s *Server) readRequest(conn net.Conn) ([]byte, error) {
	buf := make([]byte, s.opts.BufferSize)

	if !s.opts.AccumulateReads {
		n, err := conn.Read(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return buf[:n], nil
	}

	n, err := io.ReadFull(conn, buf)
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return buf[:n], nil
	}
	// A peer that never half-closes is cut off by the read deadline; take
	// whatever arrived as the request.
	var netErr net.Error
	if n > 0 && errors.As(err, &netErr) && netErr.Timeout() {
		return buf[:n], nil
	}
	return nil, err
}
