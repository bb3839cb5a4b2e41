package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	goruntime "runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/leonletto/msgg/internal/cli"
	"github.com/leonletto/msgg/internal/config"
	"github.com/leonletto/msgg/internal/genie"
	"github.com/leonletto/msgg/internal/paths"
)

var (
	// Build info (set via ldflags).
	Version = "dev"
	Build   = "unknown"
)

var (
	// Global flags.
	flagConfig string
	flagName   string
	flagSocket string
	flagCookie string
	flagJSON   bool
	flagQuiet  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "msgg",
		Short: "Instant message relay for the shell",
		Long: `msgg relays instant messages between an IM backend and any number of
shell clients over a Unix socket.

Run a relay with 'msgg run', then poll for new messages and send replies
from any shell that has GENIES and GENIE_COOKIE set.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags available to all commands
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default $GENIE_DIR/msgg.json)")
	rootCmd.PersistentFlags().StringVarP(&flagName, "name", "n", config.DefaultName, "Relay name, resolved through GENIES and GENIE_PATH")
	rootCmd.PersistentFlags().StringVarP(&flagSocket, "socket", "s", "", "Relay socket path (overrides --name)")
	rootCmd.PersistentFlags().StringVar(&flagCookie, "cookie", "", "Client id (or GENIE_COOKIE env var)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "JSON output for scripting")
	rootCmd.PersistentFlags().BoolVar(&flagQuiet, "quiet", false, "Suppress non-essential output")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("msgg v{{.Version}} (build: " + Build + ", " + goruntime.Version() + ")\n")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(pollCmd())
	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(buddiesCmd())
	rootCmd.AddCommand(geniesCmd())
	rootCmd.AddCommand(mcpCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// resolveCookie returns --cookie, falling back to GENIE_COOKIE.
func resolveCookie() (string, error) {
	if flagCookie != "" {
		return flagCookie, nil
	}
	return cli.Cookie()
}

func printJSON(v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}

func pollCmd() *cobra.Command {
	var (
		since int64
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Print messages not yet seen by this client",
		Long: `Print every message the relay has received since this client last polled,
one per line.

With --since, print the messages from that unix time on instead. With --all,
poll every relay listed in GENIES or found in GENIE_PATH and prefix each
line with the relay it came from.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cookie, err := resolveCookie()
			if err != nil {
				return err
			}

			opts := cli.PollOptions{Cookie: cookie}
			if since > 0 {
				opts.Since = time.Unix(since, 0)
			}

			if all {
				return pollAll(cmd.Context(), opts)
			}

			client, err := cli.NewClient(flagName, flagSocket)
			if err != nil {
				return err
			}
			lines, err := cli.Poll(cmd.Context(), client, opts)
			if err != nil {
				return err
			}

			if flagJSON {
				if lines == nil {
					lines = []string{}
				}
				return printJSON(lines)
			}
			for _, line := range lines {
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&since, "since", 0, "Print messages from this unix time on")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Poll every known relay")

	return cmd
}

func pollAll(ctx context.Context, opts cli.PollOptions) error {
	dirs, err := paths.SearchPath()
	if err != nil {
		return err
	}

	results := cli.PollAll(ctx, cli.Entries(cli.Discover(dirs)), opts)

	if flagJSON {
		return printJSON(results)
	}
	fmt.Print(cli.FormatPollAll(results, cli.ColorPalette(os.Stdout)))
	if !flagQuiet {
		fmt.Fprint(os.Stderr, cli.FormatPollErrors(results))
	}
	return nil
}

func sendCmd() *cobra.Command {
	var (
		user string
		edit bool
	)

	cmd := &cobra.Command{
		Use:   "send [WORDS...]",
		Short: "Send a message",
		Long: `Send a message through the relay. The words are joined with single
spaces; with no words the message is read from stdin.

Without --user the message goes to whoever this client last heard from or
wrote to. --edit opens $EDITOR on the message first and sends only if the
file was saved.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cookie, err := resolveCookie()
			if err != nil {
				return err
			}

			var body string
			if edit {
				initial := ""
				if len(args) > 0 {
					initial, err = cli.MessageBody(args, nil)
					if err != nil {
						return err
					}
				}
				var ok bool
				body, ok, err = cli.EditBody(os.Getenv("EDITOR"), initial)
				if err != nil {
					return err
				}
				if !ok {
					if !flagQuiet {
						fmt.Fprintln(os.Stderr, "Message not modified, not sent")
					}
					return nil
				}
			} else {
				body, err = cli.MessageBody(args, os.Stdin)
				if err != nil {
					return err
				}
			}

			client, err := cli.NewClient(flagName, flagSocket)
			if err != nil {
				return err
			}

			if err := cli.Send(cmd.Context(), client, cli.SendOptions{
				Cookie: cookie,
				To:     user,
				Body:   body,
			}); err != nil {
				return err
			}

			if flagJSON {
				to := user
				if to == "" {
					to = "!reply"
				}
				return printJSON(map[string]string{"status": "sent", "to": to})
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "Correspondent to send to (default: reply)")
	cmd.Flags().BoolVarP(&edit, "edit", "e", false, "Compose the message in $EDITOR")

	return cmd
}

func buddiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "buddies",
		Short: "List correspondents who are online",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cli.NewClient(flagName, flagSocket)
			if err != nil {
				return err
			}
			names, err := cli.Buddies(cmd.Context(), client)
			if err != nil {
				return err
			}

			if flagJSON {
				if names == nil {
					names = []string{}
				}
				return printJSON(names)
			}
			if len(names) == 0 && flagQuiet {
				return nil
			}
			fmt.Print(cli.FormatBuddies(names))
			return nil
		},
	}
}

func geniesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "genies",
		Short: "List known relays",
		Long: `List the relays named in GENIES followed by those found in the GENIE_PATH
directories, and whether each one is accepting connections.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dirs, err := paths.SearchPath()
			if err != nil {
				return err
			}
			infos := cli.Discover(dirs)

			if flagJSON {
				if infos == nil {
					infos = []cli.GenieInfo{}
				}
				return printJSON(infos)
			}
			fmt.Print(cli.FormatGenies(infos, cli.GetTerminalWidth()))
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "promote NAME[.ID]",
		Short: "Move a relay's socket to the next GENIE_PATH directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dirs, err := paths.SearchPath()
			if err != nil {
				return err
			}
			dst, err := genie.Promote(dirs, args[0])
			if err != nil {
				return err
			}

			if flagJSON {
				return printJSON(map[string]string{"socket": dst})
			}
			if !flagQuiet {
				fmt.Printf("Moved %s to %s\n", args[0], dst)
			}
			return nil
		},
	})

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show msgg version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagJSON {
				return printJSON(map[string]string{
					"version":    Version,
					"build":      Build,
					"go_version": goruntime.Version(),
				})
			}
			fmt.Printf("msgg v%s (build: %s, %s)\n", Version, Build, goruntime.Version())
			return nil
		},
	}
}
