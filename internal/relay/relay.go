// Package relay answers poll queries against the message log and keeps each
// client's cursor and reply target up to date.
//
// A single mutex guards both the log and the client registry, so assigning a
// sequence number and indexing the message happen as one step from the point
// of view of any poller, and a client's cursor moves in the same step as the
// read it follows.
package relay

import (
	"sync"
	"time"

	"github.com/leonletto/msgg/internal/msglog"
	"github.com/leonletto/msgg/internal/registry"
)

// Stats summarizes relay state.
type Stats struct {
	Log     msglog.Stats `json:"log"`
	Clients int          `json:"clients"`
}

// Relay is the query engine shared by every connection the daemon serves.
type Relay struct {
	mu      sync.Mutex
	log     *msglog.Log
	clients *registry.Registry
}

// New creates a relay whose log holds at most capacity messages.
func New(capacity int) *Relay {
	return &Relay{
		log:     msglog.New(capacity),
		clients: registry.New(),
	}
}

// Record appends a rendered message to the log and returns its sequence
// number. account and origin may be empty.
func (r *Relay) Record(ts time.Time, account, origin, text string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.log.Append(ts, account, origin, text).Sequence
}

// PollSince returns, in sequence order, every message the client has not
// been sent yet. Each message with an origin becomes the client's reply
// target in turn, so the last one wins. The client's cursor is then moved to
// the newest sequence number even if eviction widened the window.
func (r *Relay) PollSince(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.clients.FindOrCreate(id)
	msgs := r.log.SinceSequence(c.Cursor())

	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Text)
		if m.Origin != "" {
			c.SetReplyTarget(m.Origin)
		}
	}
	r.catchUp(c)
	return out
}

// PollSinceTime is PollSince driven by timestamp instead of cursor. Messages
// come back in time order. Only messages written by someone other than the
// receiving account update the reply target.
func (r *Relay) PollSinceTime(id string, t time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.clients.FindOrCreate(id)
	msgs := r.log.SinceTime(t)

	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Text)
		if m.Origin != "" && m.Account != "" && m.Origin != m.Account {
			c.SetReplyTarget(m.Origin)
		}
	}
	r.catchUp(c)
	return out
}

// catchUp marks the client as having seen everything. The cursor never moves
// backwards.
func (r *Relay) catchUp(c *registry.Client) {
	if seq := r.log.CurrentMaxSequence(); seq > c.Cursor() {
		c.SetCursor(seq)
	}
}

// Address resolves the correspondent a client's outgoing message goes to.
// With reply set the client's current reply target is returned as is, which
// is "" if the client has never heard from anyone. Otherwise target is
// returned and remembered as the client's new reply target.
func (r *Relay) Address(id, target string, reply bool) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.clients.FindOrCreate(id)
	if reply {
		return c.ReplyTarget()
	}
	c.SetReplyTarget(target)
	return target
}

// Cursor returns the client's cursor, creating the client if needed.
func (r *Relay) Cursor(id string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.clients.FindOrCreate(id).Cursor()
}

// ReplyTarget returns the client's reply target, creating the client if
// needed.
func (r *Relay) ReplyTarget(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.clients.FindOrCreate(id).ReplyTarget()
}

// CurrentMaxSequence returns the newest sequence number handed out.
func (r *Relay) CurrentMaxSequence() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.log.CurrentMaxSequence()
}

// Stats returns a snapshot of the log and registry sizes.
func (r *Relay) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Stats{
		Log:     r.log.Stats(),
		Clients: r.clients.Len(),
	}
}
