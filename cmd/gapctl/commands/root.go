// Package commands implements the gapctl CLI commands.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/gogap/internal/ctlproto"
)

var (
	// client is the control-socket connection, dialed in PersistentPreRunE.
	client *ctlproto.Client

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// socketPath is the gapd control socket path.
	socketPath string
)

// rootCmd is the top-level cobra command for gapctl.
var rootCmd = &cobra.Command{
	Use:   "gapctl",
	Short: "CLI client for the gapd daemon",
	Long:  "gapctl communicates with the gapd daemon over its control socket to manage Bluetooth peers, connections, and discovery.",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// shell and version never need a live connection.
		if cmd.Name() == "shell" || cmd.Name() == "version" {
			return nil
		}
		c, err := ctlproto.Dial(socketPath)
		if err != nil {
			return fmt.Errorf("dial control socket: %w", err)
		}
		client = c
		return nil
	},
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		if client != nil {
			return client.Close()
		}
		return nil
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "/run/gapd/control.sock",
		"gapd control socket path")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(peerCmd())
	rootCmd.AddCommand(connectCmd())
	rootCmd.AddCommand(disconnectCmd())
	rootCmd.AddCommand(pairCmd())
	rootCmd.AddCommand(discoverCmd())
	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(adapterCmd())
	rootCmd.AddCommand(monitorCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
