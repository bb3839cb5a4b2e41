package daemon

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"
)

// DefaultClientTimeout bounds a whole request/response exchange.
const DefaultClientTimeout = 10 * time.Second

// Client sends single requests to a relay socket. Each call opens its own
// connection, since the relay closes the connection after one response.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client for the relay listening at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    DefaultClientTimeout,
	}
}

// SetTimeout changes the per-request timeout. Zero disables it.
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

// SocketPath returns the socket the client talks to.
func (c *Client) SocketPath() string {
	return c.socketPath
}

// Do sends req and returns the response lines. A relay that has nothing to
// say closes the connection without writing, which yields no lines and no
// error.
func (c *Client) Do(ctx context.Context, req []byte) ([]string, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay at %s: %w", c.socketPath, err)
	}
	defer func() { _ = conn.Close() }()

	if c.timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.timeout))
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(req); err != nil {
		return nil, fmt.Errorf("failed to write request: %w", err)
	}
	// Signal end of request for relays reading until EOF.
	if uc, ok := conn.(*net.UnixConn); ok {
		_ = uc.CloseWrite()
	}

	var lines []string
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return lines, fmt.Errorf("failed to read response: %w", err)
	}

	return lines, nil
}
