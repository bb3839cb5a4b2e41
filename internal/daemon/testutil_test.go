package daemon

import (
	"context"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/leonletto/msgg/internal/relay"
)

// fakeBackend records deliveries and serves a fixed buddy list.
type fakeBackend struct {
	mu         sync.Mutex
	deliveries []delivery
	buddies    []string
	err        error
}

type delivery struct {
	Target string
	Body   string
}

func (f *fakeBackend) Deliver(_ context.Context, target, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deliveries = append(f.deliveries, delivery{Target: target, Body: body})
	return nil
}

func (f *fakeBackend) Buddies(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buddies, f.err
}

func (f *fakeBackend) sent() []delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]delivery, len(f.deliveries))
	copy(out, f.deliveries)
	return out
}

// testRelay is a running server wired to a relay and a fake backend.
type testRelay struct {
	socketPath string
	relay      *relay.Relay
	backend    *fakeBackend
	dispatcher *Dispatcher
	client     *Client
}

// startTestRelay starts a server on a temp socket and stops it when the test
// ends.
func startTestRelay(t *testing.T, capacity int, opts ServerOptions) *testRelay {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "test.sock")
	r := relay.New(capacity)
	backend := &fakeBackend{}
	dispatcher := NewDispatcher(r, backend, backend)

	server := NewServer(socketPath, dispatcher, opts)
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })

	waitForSocketReady(t, socketPath)

	return &testRelay{
		socketPath: socketPath,
		relay:      r,
		backend:    backend,
		dispatcher: dispatcher,
		client:     NewClient(socketPath),
	}
}

// do sends a raw request and returns the response lines.
func (tr *testRelay) do(t *testing.T, req string) []string {
	t.Helper()
	lines, err := tr.client.Do(context.Background(), []byte(req))
	if err != nil {
		t.Fatalf("request %q failed: %v", req, err)
	}
	return lines
}

// waitForSocketReady polls until the socket accepts connections.
func waitForSocketReady(t *testing.T, socketPath string) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("unix", socketPath)
		if err == nil {
			_ = conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("socket %s never became ready", socketPath)
}

// eventually polls cond until it holds or the timeout passes.
func eventually(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
