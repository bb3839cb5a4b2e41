package mcp

import (
	"context"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/leonletto/msgg/internal/daemon"
)

// Server is the msgg MCP server that exposes the relay to agents.
type Server struct {
	socketPath string
	cookie     string
	version    string
	server     *gomcp.Server
	waiter     *Waiter
}

// Option configures the MCP server.
type Option func(*Server)

// WithVersion sets the server version string.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithPollInterval sets how often wait_for_message polls the relay.
func WithPollInterval(d time.Duration) Option {
	return func(s *Server) {
		s.waiter = NewWaiter(d)
	}
}

// NewServer creates an MCP server talking to the relay at socketPath. cookie
// identifies this client to the relay, so its poll cursor and reply target
// are separate from other clients.
func NewServer(socketPath, cookie string, opts ...Option) *Server {
	s := &Server{
		socketPath: socketPath,
		cookie:     cookie,
		version:    "dev",
		waiter:     NewWaiter(DefaultPollInterval),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{
			Name:    "msgg",
			Version: s.version,
		},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdin/stdout. It blocks until the client
// disconnects or the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// newRelayClient creates a per-call relay client; each request uses its own
// connection.
func (s *Server) newRelayClient() *daemon.Client {
	return daemon.NewClient(s.socketPath)
}

// registerTools registers all MCP tool handlers with the server.
func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "poll",
		Description: "Fetch messages the relay has not yet returned to this client, or everything from a given time with since",
	}, s.handlePoll)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "send_message",
		Description: "Send a message to a correspondent. Omit to (or pass !reply) to answer whoever wrote last",
	}, s.handleSendMessage)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "wait_for_message",
		Description: "Block until a new message arrives or timeout expires. Designed for background listener sub-agents.",
	}, s.handleWaitForMessage)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_buddies",
		Description: "List the correspondents the IM backend reports online",
	}, s.handleListBuddies)
}
