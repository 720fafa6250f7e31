package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/gogap/internal/ctlproto"
)

// --- connect ---

func connectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <bd-addr>",
		Short: "Open an ACL connection to a peer by address",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			params := ctlproto.ConnectParams{Address: args[0]}
			if err := client.Call(context.Background(), ctlproto.MethodConnect, params, nil); err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			fmt.Printf("Connection to %s requested.\n", args[0])
			return nil
		},
	}
}

// --- disconnect ---

func disconnectCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "disconnect <peer-id>",
		Short: "Close the ACL connection to a peer by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("parse peer id %q: %w", args[0], err)
			}

			params := ctlproto.DisconnectParams{ID: id, Reason: reason}
			if err := client.Call(context.Background(), ctlproto.MethodDisconnect, params, nil); err != nil {
				return fmt.Errorf("disconnect: %w", err)
			}
			fmt.Printf("Peer %d disconnected.\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "disconnect reason annotation (informational)")

	return cmd
}

// --- pair ---

func pairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pair <peer-id>",
		Short: "Initiate pairing with a connected peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("parse peer id %q: %w", args[0], err)
			}

			params := ctlproto.PairParams{ID: id}
			if err := client.Call(context.Background(), ctlproto.MethodPair, params, nil); err != nil {
				return fmt.Errorf("pair: %w", err)
			}
			fmt.Printf("Peer %d bonded.\n", id)
			return nil
		},
	}
}
