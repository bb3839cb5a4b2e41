package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// EnvSocketDir overrides where a relay creates its socket.
	EnvSocketDir = "GENIE_DIR"

	// EnvSearchPath lists directories scanned for relay sockets, separated
	// by ':'. Earlier directories win.
	EnvSearchPath = "GENIE_PATH"

	// socketDirName is the per-user socket directory under $HOME.
	socketDirName = ".genies"

	// configFileName is the config file kept in the socket directory.
	configFileName = "msgg.json"
)

// DefaultSocketDir returns $GENIE_DIR, or ~/.genies when unset.
func DefaultSocketDir() (string, error) {
	if dir := os.Getenv(EnvSocketDir); dir != "" {
		return ResolveDir(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, socketDirName), nil
}

// ResolveDir expands a leading "~/" and makes dir absolute.
func ResolveDir(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("empty directory")
	}
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}
	return abs, nil
}

// SearchPath returns the directories listed in $GENIE_PATH, or just the
// default socket directory when it is unset. Empty entries are skipped.
func SearchPath() ([]string, error) {
	raw := os.Getenv(EnvSearchPath)
	if raw == "" {
		dir, err := DefaultSocketDir()
		if err != nil {
			return nil, err
		}
		return []string{dir}, nil
	}

	var dirs []string
	for _, d := range strings.Split(raw, ":") {
		if d == "" {
			continue
		}
		dirs = append(dirs, d)
	}
	return dirs, nil
}

// DefaultConfigFile returns the config file inside the default socket
// directory.
func DefaultConfigFile() (string, error) {
	dir, err := DefaultSocketDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}
