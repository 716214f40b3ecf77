package main

import (
	"context"
	"fmt"

	"github.com/MakeNowJust/heredoc"
	"github.com/nao1215/capsule/internal/session"
	"github.com/spf13/cobra"
)

// NewFetchLaterCmd creates the fetch-later command.
func NewFetchLaterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch-later <url>...",
		Short: "Queue resources for the next sync",
		Long: heredoc.Doc(`
			Fetch-later adds each URL to the to_fetch list. The next sync fetches
			them, removes them from to_fetch and adds them to the tour.

			URLs that are already cached go straight to the tour.`),
		Example: heredoc.Doc(`
			capsule fetch-later gemini://example.org/long-read.gmi gopher://sdf.org/1/`),
		Args: cobra.MinimumNArgs(1),
		RunE: runFetchLaterCmd,
	}
}

// runFetchLaterCmd executes the fetch-later command.
func runFetchLaterCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	return withSession(cmd, cfg, nil, func(_ context.Context, s *session.Session) error {
		for _, raw := range args {
			loc, err := s.Parse(raw)
			if err != nil {
				return err
			}
			list, err := s.FetchLater(loc)
			if err != nil {
				return fmt.Errorf("failed to queue %s: %w", raw, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is in %s\n", loc.URL(), list)
		}
		return nil
	})
}
