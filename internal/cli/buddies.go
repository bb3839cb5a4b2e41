package cli

import (
	"context"
	"strings"

	"github.com/leonletto/msgg/internal/daemon"
	"github.com/leonletto/msgg/internal/protocol"
)

// Buddies lists the correspondents the relay's backend reports online.
func Buddies(ctx context.Context, client *daemon.Client) ([]string, error) {
	return client.Do(ctx, protocol.EncodeBuddies())
}

// FormatBuddies renders one name per line.
func FormatBuddies(names []string) string {
	if len(names) == 0 {
		return "No buddies online\n"
	}
	return strings.Join(names, "\n") + "\n"
}
