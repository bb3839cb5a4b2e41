package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/leonletto/msgg/internal/bridge"
	"github.com/leonletto/msgg/internal/config"
	"github.com/leonletto/msgg/internal/daemon"
	"github.com/leonletto/msgg/internal/genie"
	"github.com/leonletto/msgg/internal/relay"
)

func runCmd() *cobra.Command {
	var (
		socketDir       string
		logFile         string
		capacity        int
		bridgeAddr      string
		accumulateReads bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a relay in the foreground",
		Long: `Run a relay until interrupted. The relay prints its name and socket path
on stdout once it is listening, so a parent shell can add them to GENIES.

With --bridge (or bridge_addr in the config file) the relay also accepts an
IM backend over WebSocket at ws://ADDR/bridge.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides := config.Overrides{
				SocketDir:  socketDir,
				LogFile:    logFile,
				Capacity:   capacity,
				BridgeAddr: bridgeAddr,
			}
			if cmd.Flags().Changed("name") {
				overrides.Name = flagName
			}
			if cmd.Flags().Changed("accumulate-reads") {
				overrides.AccumulateReads = &accumulateReads
			}

			cfg, err := config.Load(flagConfig, overrides)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return runRelay(cmd.Context(), cfg, flagSocket)
		},
	}

	cmd.Flags().StringVar(&socketDir, "socket-dir", "", "Directory for the relay socket (or GENIE_DIR env var)")
	cmd.Flags().StringVar(&logFile, "log-file", "", "Write diagnostics here instead of stderr")
	cmd.Flags().IntVar(&capacity, "capacity", 0, "Messages kept before the oldest are evicted")
	cmd.Flags().StringVar(&bridgeAddr, "bridge", "", "Listen for the IM backend on this address (e.g. 127.0.0.1:7777)")
	cmd.Flags().BoolVar(&accumulateReads, "accumulate-reads", false, "Read requests until EOF instead of taking the first read")

	return cmd
}

// runRelay wires the relay, dispatcher, optional bridge and socket server,
// and blocks until shutdown. An empty socketPath picks a fresh one in the
// configured socket directory.
func runRelay(ctx context.Context, cfg *config.Config, socketPath string) error {
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600) //nolint:gosec // G304 - path from config
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer func() { _ = f.Close() }()
		log.SetOutput(f)
	}

	if socketPath == "" {
		var err error
		socketPath, err = genie.NewSocketPath(cfg.SocketDir, cfg.Name)
		if err != nil {
			return fmt.Errorf("invalid relay name: %w", err)
		}
	}

	r := relay.New(cfg.Capacity)

	// Only assign the interfaces when a bridge exists; a nil *bridge.Server
	// inside an interface is not nil.
	var (
		deliverer daemon.Deliverer
		presence  daemon.Presence
		backend   daemon.BridgeServer
	)
	if cfg.BridgeAddr != "" {
		b := bridge.NewServer(cfg.BridgeAddr, r)
		deliverer, presence, backend = b, b, b
	}

	dispatcher := daemon.NewDispatcher(r, deliverer, presence)

	var limiter *daemon.DeliveryLimiter
	if cfg.RateLimit.Enabled {
		limiter = daemon.NewDeliveryLimiter(daemon.RateLimitConfig{
			MaxMessagesPerSecond: cfg.RateLimit.MaxMessagesPerSecond,
			BurstSize:            cfg.RateLimit.BurstSize,
			Enabled:              true,
		})
		dispatcher.SetLimiter(limiter)
	}

	server := daemon.NewServer(socketPath, dispatcher, daemon.ServerOptions{
		BufferSize:      cfg.BufferSize,
		ReadTimeout:     cfg.ReadTimeoutDuration(),
		WriteTimeout:    cfg.WriteTimeoutDuration(),
		AccumulateReads: cfg.AccumulateReads,
	})

	lifecycle := daemon.NewLifecycle(server, backend)
	if limiter != nil {
		lifecycle.SetLimiter(limiter)
	}
	lifecycle.SetOnReady(func(path string) {
		if err := genie.Announce(os.Stdout, cfg.Name, path); err != nil {
			log.Printf("run: failed to announce socket: %v", err)
		}
		fmt.Fprintf(os.Stderr, "Relay %s listening on %s (capacity %d)\n", cfg.Name, path, cfg.Capacity)
	})

	err := lifecycle.Run(ctx)

	st := r.Stats()
	log.Printf("run: relay %s stopped: %d live, %d evicted, max sequence %d, %d clients",
		cfg.Name, st.Log.Live, st.Log.Evicted, st.Log.MaxSequence, st.Clients)
	return err
}
