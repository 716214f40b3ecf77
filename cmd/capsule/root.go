package main

import (
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for capsule.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capsule",
		Short: "Offline-first browser for Gemini, Gopher, Finger and Spartan",
		Long: heredoc.Doc(`
			capsule browses Gemini, Gopher, Finger and Spartan resources and keeps
			everything it fetches in a local cache, so pages stay readable offline.

			URLs read while offline can be queued with fetch-later. The sync
			command fetches them together with every bookmarked or subscribed
			page, and adds new links found in subscriptions to the tour.`),
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: capsule.yaml in current directory or XDG config directory)")
	cmd.PersistentFlags().Bool("json-log", false, "Write logs as JSON")

	cmd.AddCommand(NewGoCmd())
	cmd.AddCommand(NewFetchLaterCmd())
	cmd.AddCommand(NewSyncCmd())
	cmd.AddCommand(NewListCmd())
	cmd.AddCommand(NewCertCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
