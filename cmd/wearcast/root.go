package main

import (
	"github.com/spf13/cobra"
)

// newRootCmd creates the root wearcast command. With no subcommand it serves.
func newRootCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:           "wearcast",
		Short:         "Weather-driven outfit engine",
		Long:          "wearcast keeps weather from a companion device and shows what to wear.\nRun without a subcommand to start the engine and its HTTP surface.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), watch)
		},
	}
	bindServeFlags(cmd, &watch)
	cmd.AddCommand(
		newServeCmd(),
		newResolveCmd(),
		newDecodeCmd(),
		newEncodeCmd(),
	)
	return cmd
}
