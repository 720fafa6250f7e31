package commands

import (
	"fmt"

	"github.com/reeflective/console"
	"github.com/spf13/cobra"

	"github.com/dantte-lp/gogap/internal/ctlproto"
)

// shellCommands lists the available commands for the interactive shell help output.
var shellCommands = []struct {
	name string
	desc string
}{
	{"peer list", "List all known peers"},
	{"peer show <id>", "Show details of a peer"},
	{"connect <bd-addr>", "Open an ACL connection to a peer"},
	{"disconnect <id>", "Close the ACL connection to a peer"},
	{"pair <id>", "Initiate pairing with a connected peer"},
	{"discover start|stop", "Control BR/EDR inquiry"},
	{"scan start|stop", "Control LE scanning"},
	{"adapter connectable on|off", "Enable or disable inbound ACL connections"},
	{"monitor", "Stream Peer Cache events"},
	{"version", "Print build information"},
}

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive gapctl console",
		Long:  "Launches a readline-backed console that accepts gapctl subcommands against the live daemon.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			c, err := ctlproto.Dial(socketPath)
			if err != nil {
				return fmt.Errorf("dial control socket: %w", err)
			}
			client = c
			defer client.Close()

			app := console.New("gapctl")

			menu := app.ActiveMenu()
			menu.SetCommands(func() *cobra.Command {
				return shellRootCommand()
			})

			if err := app.Start(); err != nil {
				return fmt.Errorf("console: %w", err)
			}
			return nil
		},
	}
}

// shellRootCommand returns a fresh copy of the command tree, minus the
// shell command itself, for the console to dispatch each typed line
// against (cobra commands are not safe to re-execute concurrently
// across console invocations once they carry parsed flag state).
func shellRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "gapctl",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(peerCmd())
	root.AddCommand(connectCmd())
	root.AddCommand(disconnectCmd())
	root.AddCommand(pairCmd())
	root.AddCommand(discoverCmd())
	root.AddCommand(scanCmd())
	root.AddCommand(adapterCmd())
	root.AddCommand(monitorCmd())
	root.AddCommand(versionCmd())
	root.AddCommand(&cobra.Command{
		Use:   "help",
		Short: "Show available commands",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Println("Available commands:")
			fmt.Println()
			for _, c := range shellCommands {
				fmt.Printf("  %-28s %s\n", c.name, c.desc)
			}
			fmt.Println()
		},
	})

	return root
}
