package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/leonletto/msgg/internal/cli"
	"github.com/leonletto/msgg/internal/protocol"
)

const (
	defaultWaitTimeout = 300
	maxWaitTimeout     = 600
)

// handlePoll returns this client's unseen messages, or with since set, the
// messages from that time on.
func (s *Server) handlePoll(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input PollInput,
) (*gomcp.CallToolResult, PollOutput, error) {
	if input.Since < 0 {
		return nil, PollOutput{}, fmt.Errorf("'since' must not be negative")
	}

	opts := cli.PollOptions{Cookie: s.cookie}
	if input.Since > 0 {
		opts.Since = time.Unix(input.Since, 0)
	}

	lines, err := cli.Poll(ctx, s.newRelayClient(), opts)
	if err != nil {
		return nil, PollOutput{}, fmt.Errorf("poll relay: %w", err)
	}
	return nil, pollOutput(lines), nil
}

func pollOutput(lines []string) PollOutput {
	if len(lines) == 0 {
		return PollOutput{Status: "empty", Messages: []string{}}
	}
	return PollOutput{Status: "messages", Messages: lines}
}

// handleSendMessage asks the relay to deliver a message.
func (s *Server) handleSendMessage(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input SendMessageInput,
) (*gomcp.CallToolResult, SendMessageOutput, error) {
	if input.Body == "" {
		return nil, SendMessageOutput{}, fmt.Errorf("'body' is required")
	}
	if len(input.Body) > cli.MaxMessageSize {
		return nil, SendMessageOutput{}, fmt.Errorf("'body' is %d bytes, limit is %d", len(input.Body), cli.MaxMessageSize)
	}
	if strings.ContainsAny(input.To, " \n") {
		return nil, SendMessageOutput{}, fmt.Errorf("'to' must be a single word")
	}

	to := input.To
	if to == protocol.ReplyShorthand {
		to = ""
	}

	err := cli.Send(ctx, s.newRelayClient(), cli.SendOptions{
		Cookie: s.cookie,
		To:     to,
		Body:   input.Body,
	})
	if err != nil {
		return nil, SendMessageOutput{}, err
	}

	shown := to
	if shown == "" {
		shown = protocol.ReplyShorthand
	}
	return nil, SendMessageOutput{Status: "sent", To: shown}, nil
}

// handleWaitForMessage blocks until the relay has something unseen for this
// client or the timeout expires.
func (s *Server) handleWaitForMessage(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input WaitForMessageInput,
) (*gomcp.CallToolResult, WaitForMessageOutput, error) {
	timeout := input.Timeout
	if timeout <= 0 {
		timeout = defaultWaitTimeout
	}
	if timeout > maxWaitTimeout {
		timeout = maxWaitTimeout
	}

	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	lines, err := s.waiter.Wait(waitCtx, func(ctx context.Context) ([]string, error) {
		return cli.Poll(ctx, s.newRelayClient(), cli.PollOptions{Cookie: s.cookie})
	})
	waited := int(time.Since(start).Seconds())

	switch {
	case err == nil:
		return nil, WaitForMessageOutput{
			Status:        "message_received",
			Messages:      lines,
			WaitedSeconds: waited,
		}, nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return nil, WaitForMessageOutput{Status: "timeout", WaitedSeconds: waited}, nil
	default:
		return nil, WaitForMessageOutput{}, fmt.Errorf("wait for message: %w", err)
	}
}

// handleListBuddies returns the correspondents reported online.
func (s *Server) handleListBuddies(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input ListBuddiesInput,
) (*gomcp.CallToolResult, ListBuddiesOutput, error) {
	names, err := cli.Buddies(ctx, s.newRelayClient())
	if err != nil {
		return nil, ListBuddiesOutput{}, fmt.Errorf("list buddies: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	return nil, ListBuddiesOutput{Buddies: names, Count: len(names)}, nil
}
