package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/gogap/internal/ctlproto"
)

// --- discover (BR/EDR inquiry) ---

func discoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Control BR/EDR inquiry",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start BR/EDR inquiry",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := client.Call(context.Background(), ctlproto.MethodDiscoverStart, nil, nil); err != nil {
				return fmt.Errorf("discover start: %w", err)
			}
			fmt.Println("BR/EDR inquiry started.")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop BR/EDR inquiry",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := client.Call(context.Background(), ctlproto.MethodDiscoverStop, nil, nil); err != nil {
				return fmt.Errorf("discover stop: %w", err)
			}
			fmt.Println("BR/EDR inquiry stopped.")
			return nil
		},
	})

	return cmd
}

// --- scan (LE discovery) ---

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Control LE scanning",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start LE scanning",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := client.Call(context.Background(), ctlproto.MethodScanStart, nil, nil); err != nil {
				return fmt.Errorf("scan start: %w", err)
			}
			fmt.Println("LE scanning started.")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop LE scanning",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := client.Call(context.Background(), ctlproto.MethodScanStop, nil, nil); err != nil {
				return fmt.Errorf("scan stop: %w", err)
			}
			fmt.Println("LE scanning stopped.")
			return nil
		},
	})

	return cmd
}
