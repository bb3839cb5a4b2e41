package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Limiter maintenance intervals.
const (
	limiterSweepInterval = time.Minute
	limiterMaxIdle       = 10 * time.Minute
)

// BridgeServer is the backend bridge, kept as an interface to avoid an
// import cycle.
type BridgeServer interface {
	Start(ctx context.Context) error
	Stop() error
	Addr() string
}

// Lifecycle manages the relay lifecycle including signal handling and shutdown.
type Lifecycle struct {
	server       *Server
	bridge       BridgeServer
	limiter      *DeliveryLimiter
	onReady      func(socketPath string)
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// NewLifecycle creates a new lifecycle manager. bridge is optional.
func NewLifecycle(server *Server, bridge BridgeServer) *Lifecycle {
	return &Lifecycle{
		server:     server,
		bridge:     bridge,
		shutdownCh: make(chan struct{}),
	}
}

// SetLimiter registers a delivery limiter whose idle entries are swept while
// the relay runs. This should be called before Run().
func (l *Lifecycle) SetLimiter(limiter *DeliveryLimiter) {
	l.limiter = limiter
}

// SetOnReady registers a callback run once the socket is listening. This
// should be called before Run().
func (l *Lifecycle) SetOnReady(fn func(socketPath string)) {
	l.onReady = fn
}

// Run starts the server and handles signals until shutdown. A failure to
// bring up the socket is returned immediately.
func (l *Lifecycle) Run(ctx context.Context) error {
	// Safety net: remove the socket on any exit path shutdown() doesn't cover.
	var shutdownComplete atomic.Bool
	defer func() {
		if !shutdownComplete.Load() {
			_ = l.server.Stop()
			if l.bridge != nil {
				_ = l.bridge.Stop()
			}
		}
	}()

	if err := l.server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	if l.bridge != nil {
		if err := l.bridge.Start(ctx); err != nil {
			return fmt.Errorf("failed to start bridge: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Bridge listening on %s\n", l.bridge.Addr())
	}

	if l.onReady != nil {
		l.onReady(l.server.SocketPath())
	}

	go l.handleSignals(ctx)

	if l.limiter != nil {
		go l.sweepLimiter()
	}

	select {
	case <-l.shutdownCh:
	case <-ctx.Done():
	}

	shutdownComplete.Store(true)
	return l.shutdown()
}

// handleSignals listens for OS signals and triggers shutdown.
func (l *Lifecycle) handleSignals(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		fmt.Fprintf(os.Stderr, "Received signal %v, initiating graceful shutdown...\n", sig)
		l.Shutdown()
	case <-l.shutdownCh:
	case <-ctx.Done():
	}
}

func (l *Lifecycle) sweepLimiter() {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ticker.C:
			l.limiter.CleanupStale(limiterMaxIdle)
		}
	}
}

// shutdown performs graceful shutdown sequence.
func (l *Lifecycle) shutdown() error {
	fmt.Fprintln(os.Stderr, "Starting graceful shutdown...")
	l.Shutdown()

	var firstErr error
	if l.bridge != nil {
		if err := l.bridge.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error stopping bridge: %v\n", err)
			firstErr = err
		}
	}

	// Closes the listener, waits for in-flight requests, removes the socket.
	if err := l.server.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Error stopping server: %v\n", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	fmt.Fprintln(os.Stderr, "Graceful shutdown complete")
	return firstErr
}

// Shutdown triggers a graceful shutdown (can be called programmatically).
func (l *Lifecycle) Shutdown() {
	l.shutdownOnce.Do(func() {
		close(l.shutdownCh)
	})
}
