package daemon

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"

	"github.com/leonletto/msgg/internal/protocol"
	"github.com/leonletto/msgg/internal/relay"
)

// Deliverer sends an outgoing message to a correspondent through the IM
// backend.
type Deliverer interface {
	Deliver(ctx context.Context, target, body string) error
}

// Presence reports which correspondents are online.
type Presence interface {
	Buddies(ctx context.Context) ([]string, error)
}

// Dispatcher routes parsed requests to the relay and the backend. It
// implements RequestHandler.
type Dispatcher struct {
	relay     *relay.Relay
	deliverer Deliverer
	presence  Presence
	limiter   *DeliveryLimiter
}

// NewDispatcher creates a dispatcher. deliverer and presence may be nil, in
// which case message and buddies requests are logged and dropped.
func NewDispatcher(r *relay.Relay, deliverer Deliverer, presence Presence) *Dispatcher {
	return &Dispatcher{
		relay:     r,
		deliverer: deliverer,
		presence:  presence,
	}
}

// SetLimiter installs a per-client limit on outgoing messages.
func (d *Dispatcher) SetLimiter(l *DeliveryLimiter) {
	d.limiter = l
}

// Handle parses one request and serves it. Unknown or malformed requests are
// logged and get no response. The returned error only reports write
// failures.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte, w io.Writer) error {
	req, err := protocol.Parse(raw)
	if err != nil {
		log.Printf("dispatch: failed to read request: %v", err)
		return nil
	}

	switch req.Verb {
	case protocol.VerbPoll:
		return writeLines(w, d.relay.PollSince(req.Poll.ClientID))

	case protocol.VerbSince:
		return writeLines(w, d.relay.PollSinceTime(req.Since.ClientID, req.Since.Time))

	case protocol.VerbMessage:
		d.handleMessage(ctx, req.Message)
		return nil

	case protocol.VerbBuddies:
		if d.presence == nil {
			log.Printf("dispatch: buddies requested but no presence source is attached")
			return nil
		}
		names, err := d.presence.Buddies(ctx)
		if err != nil {
			log.Printf("dispatch: buddies: %v", err)
			return nil
		}
		return writeLines(w, names)
	}

	return nil
}

func (d *Dispatcher) handleMessage(ctx context.Context, m *protocol.Message) {
	target := d.relay.Address(m.Cookie, m.Target, m.Reply())
	if target == "" {
		log.Printf("dispatch: no reply target for client %q, message dropped", m.Cookie)
		return
	}

	if err := d.limiter.Allow(m.Cookie); err != nil {
		log.Printf("dispatch: %v", err)
		return
	}

	if d.deliverer == nil {
		log.Printf("dispatch: no backend attached, message to %q dropped", target)
		return
	}
	if err := d.deliverer.Deliver(ctx, target, m.Body); err != nil {
		log.Printf("dispatch: deliver to %q: %v", target, err)
	}
}

// writeLines writes each line followed by a newline.
func writeLines(w io.Writer, lines []string) error {
	if len(lines) == 0 {
		return nil
	}

	bw := bufio.NewWriter(w)
	for _, line := range lines {
		if _, err := bw.WriteString(line); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}
