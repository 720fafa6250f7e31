package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/gogap/internal/ctlproto"
)

func peerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Inspect known peers",
	}

	cmd.AddCommand(peerListCmd())
	cmd.AddCommand(peerShowCmd())

	return cmd
}

// --- peer list ---

func peerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all known peers",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var resp ctlproto.ListPeersResult
			if err := client.Call(context.Background(), ctlproto.MethodListPeers, nil, &resp); err != nil {
				return fmt.Errorf("list peers: %w", err)
			}

			out, err := formatPeers(resp.Peers, outputFormat)
			if err != nil {
				return fmt.Errorf("format peers: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}
}

// --- peer show ---

func peerShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <peer-id>",
		Short: "Show details of a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("parse peer id %q: %w", args[0], err)
			}

			var resp ctlproto.GetPeerResult
			params := ctlproto.GetPeerParams{ID: id}
			if err := client.Call(context.Background(), ctlproto.MethodGetPeer, params, &resp); err != nil {
				return fmt.Errorf("get peer: %w", err)
			}

			out, err := formatPeer(resp.Peer, outputFormat)
			if err != nil {
				return fmt.Errorf("format peer: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}
}
