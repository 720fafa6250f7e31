package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/gogap/internal/ctlproto"
)

func monitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Stream Peer Cache events",
		Long:  "Connects to the gapd daemon and streams peer-updated/peer-bonded events until interrupted (Ctrl+C).",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := client.Call(ctx, ctlproto.MethodWatchEvents, nil, nil); err != nil {
				return fmt.Errorf("watch events: %w", err)
			}

			for {
				select {
				case ev, ok := <-client.Events():
					if !ok {
						return nil
					}
					out, err := formatEvent(ev, outputFormat)
					if err != nil {
						return fmt.Errorf("format event: %w", err)
					}
					fmt.Println(out)
				case <-ctx.Done():
					if errors.Is(ctx.Err(), context.Canceled) {
						return nil
					}
					return ctx.Err()
				}
			}
		},
	}
}
