package main

import (
	"context"

	"github.com/spf13/cobra"
)

// Execute builds the command tree and runs it under ctx.
func Execute(ctx context.Context) error {
	var configPath string

	root := &cobra.Command{
		Use:           "marketpulse",
		Short:         "Market-strength decision pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/marketpulse.yaml", "path to config file")

	root.AddCommand(refreshCmd(&configPath))
	root.AddCommand(backfillCmd(&configPath))
	root.AddCommand(ledgerCmd(&configPath))
	root.AddCommand(serveCmd(&configPath))

	return root.ExecuteContext(ctx)
}
