package mcp

import (
	"context"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/leonletto/msgg/internal/daemon"
	"github.com/leonletto/msgg/internal/relay"
)

// recordingBackend stands in for the IM backend.
type recordingBackend struct {
	mu      sync.Mutex
	sent    []string // "target: body"
	buddies []string
}

func (b *recordingBackend) Deliver(_ context.Context, target, body string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, target+": "+body)
	return nil
}

func (b *recordingBackend) Buddies(_ context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buddies, nil
}

func (b *recordingBackend) setBuddies(names ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buddies = names
}

func (b *recordingBackend) deliveries() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.sent...)
}

// startRelay runs a real relay on a temp socket and returns it with its
// backend and socket path.
func startRelay(t *testing.T) (*relay.Relay, *recordingBackend, string) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "msgg.sock")
	r := relay.New(100)
	backend := &recordingBackend{}

	server := daemon.NewServer(socketPath, daemon.NewDispatcher(r, backend, backend), daemon.ServerOptions{
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("start relay: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if conn, err := net.Dial("unix", socketPath); err == nil {
			_ = conn.Close()
			return r, backend, socketPath
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("relay socket %s never became ready", socketPath)
	return nil, nil, ""
}
