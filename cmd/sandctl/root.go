package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "sandctl",
		Short:         "Inspect and repair sand sample submissions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (defaults to $CONFIG_PATH or ./config.yaml)")

	rootCmd.AddCommand(newStaleCommand(ctx))
	rootCmd.AddCommand(newRedispatchCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))

	return rootCmd
}
