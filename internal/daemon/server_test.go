package daemon

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/leonletto/msgg/internal/protocol"
)

// handlerFunc adapts a function to RequestHandler.
type handlerFunc func(ctx context.Context, req []byte, w io.Writer) error

func (f handlerFunc) Handle(ctx context.Context, req []byte, w io.Writer) error {
	return f(ctx, req, w)
}

func echoHandler() RequestHandler {
	return handlerFunc(func(_ context.Context, req []byte, w io.Writer) error {
		_, err := fmt.Fprintf(w, "%d\n", len(req))
		return err
	})
}

func TestServerStartStop(t *testing.T) {
	tmpDir := t.TempDir()
	socketPath := filepath.Join(tmpDir, "test.sock")

	server := NewServer(socketPath, echoHandler(), ServerOptions{})
	ctx := context.Background()

	if err := server.Start(ctx); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	info, err := os.Stat(socketPath)
	if os.IsNotExist(err) {
		t.Fatal("socket file was not created")
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket permissions = %o, want 600", perm)
	}

	if err := server.Stop(); err != nil {
		t.Fatalf("failed to stop server: %v", err)
	}

	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Fatal("socket file was not removed")
	}
}

func TestServerCreatesSocketDirectory(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "nested", "genies", "test.sock")

	server := NewServer(socketPath, echoHandler(), ServerOptions{})
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer func() { _ = server.Stop() }()

	if _, err := os.Stat(socketPath); err != nil {
		t.Fatalf("socket not created in nested directory: %v", err)
	}
}

func TestServerStaleSocketRemoval(t *testing.T) {
	tmpDir := t.TempDir()
	socketPath := filepath.Join(tmpDir, "test.sock")

	// Leave a socket file behind with nobody listening.
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("failed to create stale socket: %v", err)
	}
	if ul, ok := listener.(*net.UnixListener); ok {
		ul.SetUnlinkOnClose(false)
	}
	_ = listener.Close()

	if _, err := os.Stat(socketPath); err != nil {
		t.Fatalf("stale socket missing before start: %v", err)
	}

	server := NewServer(socketPath, echoHandler(), ServerOptions{})
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("failed to start server over stale socket: %v", err)
	}
	defer func() { _ = server.Stop() }()

	waitForSocketReady(t, socketPath)
}

func TestServerRefusesLiveSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "test.sock")

	first := NewServer(socketPath, echoHandler(), ServerOptions{})
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("failed to start first server: %v", err)
	}
	defer func() { _ = first.Stop() }()
	waitForSocketReady(t, socketPath)

	second := NewServer(socketPath, echoHandler(), ServerOptions{})
	err := second.Start(context.Background())
	if err == nil {
		_ = second.Stop()
		t.Fatal("expected second server to refuse a live socket")
	}
	if !strings.Contains(err.Error(), "in use") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestServerPollOverSocket(t *testing.T) {
	tr := startTestRelay(t, 100, ServerOptions{})

	tr.relay.Record(time.Unix(1_700_000_000, 0), "", "", "first")
	tr.relay.Record(time.Unix(1_700_000_001, 0), "", "", "second")

	got := tr.do(t, string(protocol.EncodePoll("alice")))
	if diff := cmp.Diff([]string{"first", "second"}, got); diff != "" {
		t.Errorf("first poll (-want +got):\n%s", diff)
	}

	if got := tr.do(t, string(protocol.EncodePoll("alice"))); len(got) != 0 {
		t.Errorf("second poll returned %v, want nothing", got)
	}
}

func TestServerEmptyRequestGetsNoResponse(t *testing.T) {
	tr := startTestRelay(t, 100, ServerOptions{})
	tr.relay.Record(time.Now(), "", "", "pending")

	if got := tr.do(t, ""); len(got) != 0 {
		t.Errorf("empty request returned %v", got)
	}
}

func TestServerTruncatesOversizedRequest(t *testing.T) {
	tr := startTestRelay(t, 100, ServerOptions{BufferSize: 64})

	header := "message\nc\nbob\n"
	body := strings.Repeat("x", 500)

	conn, err := net.Dial("unix", tr.socketPath)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	_, _ = conn.Write([]byte(header + body))
	// The relay discards the rest of the request; whatever happens on the
	// read side doesn't matter here.
	_, _ = io.Copy(io.Discard, conn)
	_ = conn.Close()

	if !eventually(t, 2*time.Second, func() bool { return len(tr.backend.sent()) == 1 }) {
		t.Fatalf("message was not delivered")
	}

	got := tr.backend.sent()[0]
	if got.Target != "bob" {
		t.Errorf("target = %q, want bob", got.Target)
	}
	if want := 64 - len(header); len(got.Body) != want {
		t.Errorf("body length = %d, want %d", len(got.Body), want)
	}
}

func TestServerAccumulateReads(t *testing.T) {
	tr := startTestRelay(t, 100, ServerOptions{
		AccumulateReads: true,
		ReadTimeout:     2 * time.Second,
	})
	tr.relay.Record(time.Unix(1_700_000_000, 0), "", "", "hello")

	conn, err := net.Dial("unix", tr.socketPath)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer func() { _ = conn.Close() }()

	// Split the request across two writes.
	if _, err := conn.Write([]byte("poll\n")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if _, err := conn.Write([]byte("alice\n")); err != nil {
		t.Fatalf("second write: %v", err)
	}
	_ = conn.(*net.UnixConn).CloseWrite()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	resp, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	if string(resp) != "hello\n" {
		t.Errorf("response = %q, want %q", resp, "hello\n")
	}
}

func TestServerAccumulateReadsWithoutHalfClose(t *testing.T) {
	tr := startTestRelay(t, 100, ServerOptions{
		AccumulateReads: true,
		ReadTimeout:     100 * time.Millisecond,
	})
	tr.relay.Record(time.Unix(1_700_000_000, 0), "", "", "hello")

	conn, err := net.Dial("unix", tr.socketPath)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer func() { _ = conn.Close() }()

	// No CloseWrite: the read deadline ends the request.
	if _, err := conn.Write(protocol.EncodePoll("alice")); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	resp, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	if string(resp) != "hello\n" {
		t.Errorf("response = %q, want %q", resp, "hello\n")
	}
}

func TestServerConcurrentClients(t *testing.T) {
	tr := startTestRelay(t, 1000, ServerOptions{})
	for i := 0; i < 10; i++ {
		tr.relay.Record(time.Unix(1_700_000_000+int64(i), 0), "", "", fmt.Sprintf("m%d", i))
	}

	const clients = 20
	var wg sync.WaitGroup
	errs := make(chan error, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lines, err := tr.client.Do(context.Background(), protocol.EncodePoll(fmt.Sprintf("c%d", i)))
			if err != nil {
				errs <- err
				return
			}
			if len(lines) != 10 {
				errs <- fmt.Errorf("client c%d got %d lines, want 10", i, len(lines))
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestServerHandlerErrorDoesNotStopServer(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "test.sock")

	calls := 0
	var mu sync.Mutex
	handler := handlerFunc(func(_ context.Context, _ []byte, w io.Writer) error {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			return fmt.Errorf("boom")
		}
		_, err := io.WriteString(w, "ok\n")
		return err
	})

	server := NewServer(socketPath, handler, ServerOptions{})
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer func() { _ = server.Stop() }()
	waitForSocketReady(t, socketPath)

	client := NewClient(socketPath)
	if _, err := client.Do(context.Background(), []byte("first")); err != nil {
		t.Fatalf("first request: %v", err)
	}
	lines, err := client.Do(context.Background(), []byte("second"))
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if diff := cmp.Diff([]string{"ok"}, lines); diff != "" {
		t.Errorf("second response (-want +got):\n%s", diff)
	}
}
