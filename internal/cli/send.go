package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/leonletto/msgg/internal/daemon"
	"github.com/leonletto/msgg/internal/protocol"
)

// MaxMessageSize bounds a message body read from arguments, stdin or the
// editor. The relay's default request buffer is not much larger.
const MaxMessageSize = 1023

// SendOptions contains options for sending a message.
type SendOptions struct {
	Cookie string
	// To is the correspondent; empty means whoever the client last heard
	// from.
	To   string
	Body string
}

// Send asks the relay to deliver a message. The relay never answers a
// message request, so success only means the request was written.
func Send(ctx context.Context, client *daemon.Client, opts SendOptions) error {
	if _, err := client.Do(ctx, protocol.EncodeMessage(opts.Cookie, opts.To, opts.Body)); err != nil {
		return fmt.Errorf("error sending message: %w", err)
	}
	return nil
}

// MessageBody builds the message from command-line words joined by single
// spaces. With no words the body is read from stdin.
func MessageBody(words []string, stdin io.Reader) (string, error) {
	if len(words) > 0 {
		body := strings.Join(words, " ")
		if len(body) > MaxMessageSize {
			return "", fmt.Errorf("message is %d bytes, limit is %d", len(body), MaxMessageSize)
		}
		return body, nil
	}

	data, err := io.ReadAll(io.LimitReader(stdin, MaxMessageSize))
	if err != nil {
		return "", fmt.Errorf("failed to read message: %w", err)
	}
	return string(data), nil
}

// EditBody opens editor on a temp file seeded with initial and returns the
// result. ok is false when the file was not modified, in which case nothing
// should be sent.
func EditBody(editor, initial string) (body string, ok bool, err error) {
	if editor == "" {
		return "", false, fmt.Errorf("EDITOR is not set")
	}

	f, err := os.CreateTemp("", "msg.")
	if err != nil {
		return "", false, fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	defer func() { _ = os.Remove(path) }()

	if _, err := f.WriteString(initial); err != nil {
		_ = f.Close()
		return "", false, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", false, fmt.Errorf("failed to write temp file: %w", err)
	}

	before, err := os.Stat(path)
	if err != nil {
		return "", false, err
	}

	args := append(strings.Fields(editor), path)
	cmd := exec.Command(args[0], args[1:]...) //nolint:gosec // G204 - editor comes from the user's own environment
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", false, fmt.Errorf("editor failed: %w", err)
	}

	after, err := os.Stat(path)
	if err != nil {
		return "", false, err
	}
	if after.ModTime().Equal(before.ModTime()) {
		return "", false, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304 - our own temp file
	if err != nil {
		return "", false, fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) > MaxMessageSize {
		data = data[:MaxMessageSize]
	}
	return string(data), true, nil
}
