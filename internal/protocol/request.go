// Package protocol parses the line-oriented requests clients send over the
// relay socket.
//
// A request is a verb line followed by newline-terminated fields:
//
//	poll\n<client-id>\n
//	since\n<client-id>\n<unix-seconds>\n
//	message\n<cookie>\n<target>\n<body>
//	buddies\n
//
// The message body runs to the end of the request and may contain newlines.
package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ReplyShorthand in the target field of a message addresses whoever the
// client last heard from.
const ReplyShorthand = "!reply"

// Verbs understood by Parse.
const (
	VerbPoll    = "poll"
	VerbSince   = "since"
	VerbMessage = "message"
	VerbBuddies = "buddies"
)

var (
	// ErrUnknownVerb means the first line is not a verb the relay knows.
	ErrUnknownVerb = errors.New("unknown verb")
	// ErrMalformed means the verb is known but its fields are missing or bad.
	ErrMalformed = errors.New("malformed request")
)

// Request is one parsed client request. Exactly one of the typed fields is
// set, matching Verb.
type Request struct {
	Verb    string
	Poll    *Poll
	Since   *Since
	Message *Message
	Buddies *Buddies
}

// Poll asks for every message the client has not seen yet.
type Poll struct {
	ClientID string
}

// Since asks for messages from a point in time onwards.
type Since struct {
	ClientID string
	Time     time.Time
}

// Message asks the relay to deliver Body to Target on the client's behalf.
// The cookie also identifies the client whose reply target is used.
type Message struct {
	Cookie string
	Target string
	Body   string
}

// Reply reports whether the target is the reply shorthand.
func (m *Message) Reply() bool {
	return m.Target == ReplyShorthand
}

// Buddies asks for the correspondents currently online.
type Buddies struct{}

// Parse parses a complete request held in buf.
func Parse(buf []byte) (*Request, error) {
	verb, rest, ok := nextLine(buf)
	if !ok {
		return nil, fmt.Errorf("%w: no verb line", ErrUnknownVerb)
	}

	switch verb {
	case VerbPoll:
		id, _, ok := nextField(rest)
		if !ok {
			return nil, fmt.Errorf("%w: poll needs a client id", ErrMalformed)
		}
		return &Request{Verb: verb, Poll: &Poll{ClientID: id}}, nil

	case VerbSince:
		id, rest, ok := nextField(rest)
		if !ok {
			return nil, fmt.Errorf("%w: since needs a client id", ErrMalformed)
		}
		raw, _, ok := nextField(rest)
		if !ok {
			return nil, fmt.Errorf("%w: since needs a timestamp", ErrMalformed)
		}
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad timestamp %q: %v", ErrMalformed, raw, err)
		}
		return &Request{Verb: verb, Since: &Since{ClientID: id, Time: time.Unix(secs, 0)}}, nil

	case VerbMessage:
		cookie, rest, ok := nextField(rest)
		if !ok {
			return nil, fmt.Errorf("%w: message needs a cookie", ErrMalformed)
		}
		target, rest, ok := nextField(rest)
		if !ok {
			return nil, fmt.Errorf("%w: message needs a target", ErrMalformed)
		}
		return &Request{Verb: verb, Message: &Message{
			Cookie: cookie,
			Target: target,
			Body:   string(rest),
		}}, nil

	case VerbBuddies:
		return &Request{Verb: verb, Buddies: &Buddies{}}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVerb, truncate(verb, 32))
	}
}

// nextLine splits off one newline-terminated line. The newline is required.
func nextLine(b []byte) (line string, rest []byte, ok bool) {
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		return "", nil, false
	}
	return string(b[:i]), b[i+1:], true
}

// nextField is nextLine that also rejects empty lines.
func nextField(b []byte) (string, []byte, bool) {
	line, rest, ok := nextLine(b)
	if !ok || line == "" {
		return "", nil, false
	}
	return line, rest, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// EncodePoll builds a poll request.
func EncodePoll(clientID string) []byte {
	return []byte(VerbPoll + "\n" + clientID + "\n")
}

// EncodeSince builds a time-based poll request.
func EncodeSince(clientID string, t time.Time) []byte {
	return []byte(VerbSince + "\n" + clientID + "\n" + strconv.FormatInt(t.Unix(), 10) + "\n")
}

// EncodeMessage builds a message request. An empty target selects the reply
// shorthand.
func EncodeMessage(cookie, target, body string) []byte {
	if target == "" {
		target = ReplyShorthand
	}
	return []byte(VerbMessage + "\n" + cookie + "\n" + target + "\n" + body)
}

// EncodeBuddies builds a buddies request.
func EncodeBuddies() []byte {
	return []byte(VerbBuddies + "\n")
}
