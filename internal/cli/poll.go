package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/leonletto/msgg/internal/daemon"
	"github.com/leonletto/msgg/internal/genie"
	"github.com/leonletto/msgg/internal/protocol"
)

// PollOptions selects what a poll asks for.
type PollOptions struct {
	Cookie string
	// Since switches to a time-based poll when non-zero.
	Since time.Time
}

// Poll fetches the messages the relay has not yet sent this client, or with
// Since set, the messages from that time on.
func Poll(ctx context.Context, client *daemon.Client, opts PollOptions) ([]string, error) {
	req := protocol.EncodePoll(opts.Cookie)
	if !opts.Since.IsZero() {
		req = protocol.EncodeSince(opts.Cookie, opts.Since)
	}
	return client.Do(ctx, req)
}

// GenieMessages is one relay's answer in a multi-relay poll.
type GenieMessages struct {
	Name     string   `json:"name"`
	ID       string   `json:"id,omitempty"`
	Socket   string   `json:"socket"`
	Messages []string `json:"messages,omitempty"`
	Error    string   `json:"error,omitempty"`
	Removed  bool     `json:"removed,omitempty"`
}

// PollAll polls every relay in entries in order. A relay that cannot be
// reached is reported in its result and does not stop the others. Scanned
// sockets (those with an ID) that refuse connections are stale and are
// removed.
func PollAll(ctx context.Context, entries []genie.Entry, opts PollOptions) []GenieMessages {
	results := make([]GenieMessages, 0, len(entries))
	for _, e := range entries {
		r := GenieMessages{Name: e.Name, ID: e.ID, Socket: e.Socket}

		lines, err := Poll(ctx, daemon.NewClient(e.Socket), opts)
		switch {
		case err == nil:
			r.Messages = lines
		case e.ID != "" && errors.Is(err, syscall.ECONNREFUSED):
			r.Error = err.Error()
			if rmErr := os.Remove(e.Socket); rmErr == nil {
				r.Removed = true
			}
		default:
			r.Error = err.Error()
		}
		results = append(results, r)
	}
	return results
}

// FormatPollAll renders multi-relay results: a header before the first
// message, then each line prefixed with the relay name. Nothing is printed
// when no relay had anything.
func FormatPollAll(results []GenieMessages, p Palette) string {
	var out strings.Builder
	header := false
	for _, r := range results {
		if len(r.Messages) == 0 {
			continue
		}
		if !header {
			header = true
			fmt.Fprintf(&out, "\n%s~~~%s\n\n", p.Header, p.Reset)
		}

		label := r.Name
		if r.ID != "" {
			label = fmt.Sprintf("%s%s(%s)", r.Name, p.Reset, r.ID)
		} else {
			label += p.Reset
		}
		for _, line := range r.Messages {
			fmt.Fprintf(&out, "%s%s: %s\n", p.Name, label, line)
		}
	}
	if header {
		out.WriteString("\n")
	}
	return out.String()
}

// FormatPollErrors renders one line per relay that could not be polled.
func FormatPollErrors(results []GenieMessages) string {
	var out strings.Builder
	for _, r := range results {
		if r.Error == "" {
			continue
		}
		fmt.Fprintf(&out, "%s: %s", r.Name, r.Error)
		if r.Removed {
			fmt.Fprintf(&out, " (removed stale socket %s)", r.Socket)
		}
		out.WriteString("\n")
	}
	return out.String()
}
