package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/gogap/internal/ctlproto"
)

var errConnectableArg = errors.New("expected \"on\" or \"off\"")

func adapterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adapter",
		Short: "Control adapter-wide state",
	}

	cmd.AddCommand(adapterConnectableCmd())

	return cmd
}

func adapterConnectableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connectable <on|off>",
		Short: "Enable or disable inbound ACL connections",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var enable bool
			switch args[0] {
			case "on":
				enable = true
			case "off":
				enable = false
			default:
				return fmt.Errorf("%w: %q", errConnectableArg, args[0])
			}

			params := ctlproto.AdapterConnectableParams{Connectable: enable}
			if err := client.Call(context.Background(), ctlproto.MethodAdapterConnectable, params, nil); err != nil {
				return fmt.Errorf("adapter connectable: %w", err)
			}
			fmt.Printf("Adapter connectable: %s\n", args[0])
			return nil
		},
	}
}
