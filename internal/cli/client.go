package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/leonletto/msgg/internal/daemon"
	"github.com/leonletto/msgg/internal/genie"
	"github.com/leonletto/msgg/internal/paths"
)

// ErrNoCookie means GENIE_COOKIE is unset, so requests cannot say who is
// asking.
var ErrNoCookie = errors.New(genie.EnvCookie + " is not set")

// ResolveSocket picks the relay socket to talk to. An explicit socket path
// wins; otherwise name is looked up in GENIES and then in the GENIE_PATH
// directories.
func ResolveSocket(name, socket string) (string, error) {
	if socket != "" {
		return socket, nil
	}

	if e, err := genie.Lookup(genie.FromEnv(), name); err == nil {
		return e.Socket, nil
	}

	dirs, err := paths.SearchPath()
	if err != nil {
		return "", err
	}
	e, _, err := genie.Find(dirs, name, "")
	if err != nil {
		return "", fmt.Errorf("unable to determine socket name: %w", err)
	}
	return e.Socket, nil
}

// Cookie returns the client id from GENIE_COOKIE.
func Cookie() (string, error) {
	cookie := os.Getenv(genie.EnvCookie)
	if cookie == "" {
		return "", ErrNoCookie
	}
	return cookie, nil
}

// NewClient resolves the relay and returns a client for it.
func NewClient(name, socket string) (*daemon.Client, error) {
	path, err := ResolveSocket(name, socket)
	if err != nil {
		return nil, err
	}
	return daemon.NewClient(path), nil
}
