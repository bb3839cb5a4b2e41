package cli

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/leonletto/msgg/internal/genie"
	"github.com/leonletto/msgg/internal/identity"
)

// GenieInfo describes one known relay.
type GenieInfo struct {
	genie.Entry
	Source  string    `json:"source"` // "env" or "scan"
	Started time.Time `json:"started,omitzero"`
	Alive   bool      `json:"alive"`
}

// Discover lists relays from GENIES followed by those found by scanning
// dirs, and probes each socket.
func Discover(dirs []string) []GenieInfo {
	var infos []GenieInfo
	for _, e := range genie.FromEnv() {
		infos = append(infos, describe(e, "env"))
	}
	for _, e := range genie.Scan(dirs) {
		infos = append(infos, describe(e, "scan"))
	}
	return infos
}

// Entries returns the entries of infos in order.
func Entries(infos []GenieInfo) []genie.Entry {
	out := make([]genie.Entry, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.Entry)
	}
	return out
}

func describe(e genie.Entry, source string) GenieInfo {
	info := GenieInfo{Entry: e, Source: source}
	if e.ID != "" {
		if ts, err := identity.ULIDTimestamp(e.ID); err == nil {
			info.Started = ts
		}
	}
	conn, err := net.DialTimeout("unix", e.Socket, 500*time.Millisecond)
	if err == nil {
		_ = conn.Close()
		info.Alive = true
	}
	return info
}

// genieColumns is the width of everything left of the socket column.
const genieColumns = 12 + 1 + 6 + 1 + 6 + 1 + 20 + 1

// FormatGenies renders the relay list as a table. Socket paths that would
// run past width are shortened from the left; width <= 0 disables that.
func FormatGenies(infos []GenieInfo, width int) string {
	if len(infos) == 0 {
		return "No genies found\n"
	}

	var out strings.Builder
	fmt.Fprintf(&out, "%-12s %-6s %-6s %-20s %s\n", "NAME", "SOURCE", "STATE", "STARTED", "SOCKET")
	for _, info := range infos {
		state := "dead"
		if info.Alive {
			state = "alive"
		}
		started := "-"
		if !info.Started.IsZero() {
			started = info.Started.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(&out, "%-12s %-6s %-6s %-20s %s\n", info.Name, info.Source, state, started, shortenPath(info.Socket, width-genieColumns))
	}
	return out.String()
}

// shortenPath keeps the tail of path, which holds the socket name, within
// limit columns.
func shortenPath(path string, limit int) string {
	if limit <= 0 || len(path) <= limit {
		return path
	}
	if limit < 20 {
		limit = 20
	}
	if len(path) <= limit {
		return path
	}
	return "..." + path[len(path)-limit+3:]
}
