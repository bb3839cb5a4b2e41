// Package registry tracks the cursor and reply target of every client that
// has talked to the relay.
//
// Entries are created on first sight and never removed. The registry grows
// with the number of distinct client ids for the lifetime of the process.
package registry

// Client is the per-correspondent state the relay keeps between requests.
type Client struct {
	id          string
	cursor      uint64
	replyTarget string
}

// ID returns the id the client was created with.
func (c *Client) ID() string {
	return c.id
}

// Cursor returns the last sequence number delivered to the client. Zero means
// nothing has been delivered yet.
func (c *Client) Cursor() uint64 {
	return c.cursor
}

// SetCursor records n as the last sequence delivered to the client.
func (c *Client) SetCursor(n uint64) {
	c.cursor = n
}

// ReplyTarget returns the correspondent the reply shorthand resolves to, or
// "" if there is none yet.
func (c *Client) ReplyTarget() string {
	return c.replyTarget
}

// SetReplyTarget sets the correspondent the reply shorthand resolves to.
func (c *Client) SetReplyTarget(who string) {
	c.replyTarget = who
}

// Registry maps client ids to their state. It is not safe for concurrent
// use; the relay holds its lock around every call.
type Registry struct {
	clients map[string]*Client
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
	}
}

// FindOrCreate returns the client registered under id, creating it with a
// zero cursor and no reply target on first use. Repeated calls with the same
// id return the same *Client.
func (r *Registry) FindOrCreate(id string) *Client {
	if c, ok := r.clients[id]; ok {
		return c
	}
	c := &Client{id: id}
	r.clients[id] = c
	return c
}

// Len returns the number of known clients.
func (r *Registry) Len() int {
	return len(r.clients)
}
