// Package genie names relay sockets and finds them again.
//
// A relay listens on "<dir>/<name>.<id>.sock". Clients find relays either
// through the GENIES variable, a ':'-separated list of "name,socket-path"
// pairs, or by scanning the directories listed in GENIE_PATH.
package genie

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/leonletto/msgg/internal/identity"
)

const (
	// EnvGenies lists known relays as name,socket pairs separated by ':'.
	EnvGenies = "GENIES"

	// EnvCookie holds the client id sent with every request.
	EnvCookie = "GENIE_COOKIE"
)

// socketPattern matches socket file names produced by SocketName.
var socketPattern = regexp.MustCompile(`^([a-z0-9]+)\.([a-z0-9]+)\.sock$`)

var (
	// ErrNotFound means no relay matches the requested name.
	ErrNotFound = errors.New("genie not found")

	// ErrPathExhausted means a socket is already in the last search
	// directory and cannot be promoted further.
	ErrPathExhausted = errors.New("search path exhausted")
)

// Entry is one relay a client can talk to. ID is empty for entries that
// came from GENIES.
type Entry struct {
	Name   string `json:"name"`
	ID     string `json:"id,omitempty"`
	Socket string `json:"socket"`
}

// SocketName returns the socket file name for a relay.
func SocketName(name, id string) string {
	return name + "." + id + ".sock"
}

// NewSocketPath returns a fresh socket path for a relay called name in dir.
func NewSocketPath(dir, name string) (string, error) {
	if err := identity.ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(dir, SocketName(name, identity.GenerateInstanceID())), nil
}

// ParseSocketName splits a socket file name into relay name and id.
func ParseSocketName(file string) (name, id string, ok bool) {
	m := socketPattern.FindStringSubmatch(file)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// Parse reads a GENIES value. Empty fields are skipped and entries without a
// socket path are dropped.
func Parse(genies string) []Entry {
	var entries []Entry
	for _, pair := range strings.Split(genies, ":") {
		var fields []string
		for _, f := range strings.Split(pair, ",") {
			if f != "" {
				fields = append(fields, f)
			}
		}
		if len(fields) < 2 {
			continue
		}
		entries = append(entries, Entry{Name: fields[0], Socket: fields[1]})
	}
	return entries
}

// FromEnv parses $GENIES.
func FromEnv() []Entry {
	return Parse(os.Getenv(EnvGenies))
}

// Lookup returns the socket for name. When a name is listed more than once
// the last listing wins.
func Lookup(entries []Entry, name string) (Entry, error) {
	var found *Entry
	for i := range entries {
		if entries[i].Name == name {
			found = &entries[i]
		}
	}
	if found == nil {
		return Entry{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return *found, nil
}

// Scan lists relay sockets in dirs, in directory order. Unreadable
// directories are skipped.
func Scan(dirs []string) []Entry {
	var entries []Entry
	for _, dir := range dirs {
		found, _ := scanDir(dir)
		entries = append(entries, found...)
	}
	return entries
}

func scanDir(dir string) ([]Entry, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, de := range des {
		name, id, ok := ParseSocketName(de.Name())
		if !ok {
			continue
		}
		entries = append(entries, Entry{
			Name:   name,
			ID:     id,
			Socket: filepath.Join(dir, de.Name()),
		})
	}
	return entries, nil
}

// Find searches dirs for a relay called name, optionally with a specific id.
// It returns the entry and the index of the directory it was found in.
func Find(dirs []string, name, id string) (Entry, int, error) {
	for i, dir := range dirs {
		entries, err := scanDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.Name == name && (id == "" || e.ID == id) {
				return e, i, nil
			}
		}
	}
	return Entry{}, -1, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Promote moves the socket of the relay named by target ("name" or
// "name.id") into the next directory of dirs and returns its new path.
// Clients scanning dirs then find it earlier.
func Promote(dirs []string, target string) (string, error) {
	name, id, _ := strings.Cut(target, ".")

	e, i, err := Find(dirs, name, id)
	if err != nil {
		return "", err
	}
	if i+1 >= len(dirs) {
		return "", fmt.Errorf("%w: cannot promote %s", ErrPathExhausted, name)
	}

	dst := filepath.Join(dirs[i+1], filepath.Base(e.Socket))
	if err := os.Rename(e.Socket, dst); err != nil {
		return "", fmt.Errorf("failed to move socket: %w", err)
	}
	return dst, nil
}

// Announce prints the relay name and socket path, one per line, so a parent
// process can capture them.
func Announce(w io.Writer, name, socketPath string) error {
	_, err := fmt.Fprintf(w, "%s\n%s\n", name, socketPath)
	return err
}
