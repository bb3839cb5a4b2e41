package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/leonletto/msgg/internal/cli"
	msggmcp "github.com/leonletto/msgg/internal/mcp"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "MCP server integration",
	}

	cmd.AddCommand(mcpServeCmd())
	return cmd
}

func mcpServeCmd() *cobra.Command {
	var pollInterval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start MCP stdio server for the relay",
		Long: `Starts an MCP server on stdin/stdout so agents can poll, send and wait for
messages through tools instead of shelling out.

The relay is resolved the same way as for the other commands (--socket,
then GENIES, then GENIE_PATH) and the client id comes from --cookie or
GENIE_COOKIE.

Configure in .mcp.json:
  {
    "mcpServers": {
      "msgg": {
        "type": "stdio",
        "command": "msgg",
        "args": ["mcp", "serve"]
      }
    }
  }`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCPServe(pollInterval)
		},
	}

	cmd.Flags().DurationVar(&pollInterval, "poll-interval", msggmcp.DefaultPollInterval, "How often wait_for_message polls the relay")
	return cmd
}

func runMCPServe(pollInterval time.Duration) error {
	cookie, err := resolveCookie()
	if err != nil {
		return err
	}

	socketPath, err := cli.ResolveSocket(flagName, flagSocket)
	if err != nil {
		return fmt.Errorf("msgg relay not found (start one with: msgg run): %w", err)
	}

	server := msggmcp.NewServer(socketPath, cookie,
		msggmcp.WithVersion(Version),
		msggmcp.WithPollInterval(pollInterval),
	)

	// Set up context with signal handling for clean shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	// Run MCP server (blocks on stdio until client disconnects)
	return server.Run(ctx)
}
