package main

import (
	"github.com/spf13/cobra"
)

var flagConfig string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "postsched",
		Short:        "Scheduled social post dispatcher",
		Long:         "postsched stores scheduled social media posts and publishes them when they fall due.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "./config.yaml", "path to config file (json or yaml); empty uses defaults")

	root.AddCommand(
		newServeCmd(),
		newTickCmd(),
		newMigrateCmd(),
		newTokenCmd(),
	)
	return root
}
