package bridge

import (
	"fmt"
	"time"

	"github.com/leonletto/msgg/internal/relay"
)

// Frame types.
const (
	FrameEvent    = "event"
	FramePresence = "presence"
	FrameDeliver  = "deliver"
	FrameWelcome  = "welcome"
)

// Event kinds carried by an event frame.
const (
	KindConversation = "conversation"
	KindEmail        = "email"
	KindSignedOn     = "signed_on"
	KindRaw          = "raw"
)

// InboundFrame is anything the backend sends. Which fields are used depends
// on Type and, for events, Kind.
type InboundFrame struct {
	Type string `json:"type"`
	Kind string `json:"kind,omitempty"`

	// Unix seconds; zero means "now".
	Timestamp int64 `json:"timestamp,omitempty"`

	// Account the event arrived on and the correspondent it came from.
	Account string `json:"account,omitempty"`
	Origin  string `json:"origin,omitempty"`

	// conversation
	Conversation string `json:"conversation,omitempty"`
	Who          string `json:"who,omitempty"`
	Body         string `json:"body,omitempty"`

	// email
	From    string `json:"from,omitempty"`
	Subject string `json:"subject,omitempty"`

	// signed_on
	Username string `json:"username,omitempty"`
	Protocol string `json:"protocol,omitempty"`

	// raw
	Text string `json:"text,omitempty"`

	// presence
	Buddies []string `json:"buddies,omitempty"`
}

// DeliverFrame asks the backend to send Body to Target.
type DeliverFrame struct {
	Type   string `json:"type"`
	Target string `json:"target"`
	Body   string `json:"body"`
}

// WelcomeFrame is sent once when a backend session is accepted.
type WelcomeFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// render turns an event frame into the text stored in the log, along with
// its timestamp, account and origin.
func (f *InboundFrame) render(now time.Time) (ts time.Time, account, origin, text string, err error) {
	ts = now
	if f.Timestamp != 0 {
		ts = time.Unix(f.Timestamp, 0)
	}

	switch f.Kind {
	case KindConversation:
		origin = f.Origin
		if origin == "" {
			origin = f.Who
		}
		text = relay.FormatConversation(f.Conversation, ts, f.Who, f.Body)
		return ts, f.Account, origin, text, nil

	case KindEmail:
		return ts, f.Account, "", relay.FormatEmail(f.From, f.Subject), nil

	case KindSignedOn:
		return ts, f.Account, "", relay.FormatSignedOn(f.Username, f.Protocol), nil

	case KindRaw:
		if f.Text == "" {
			return ts, "", "", "", fmt.Errorf("raw event without text")
		}
		return ts, f.Account, f.Origin, f.Text, nil

	default:
		return ts, "", "", "", fmt.Errorf("unknown event kind %q", f.Kind)
	}
}
