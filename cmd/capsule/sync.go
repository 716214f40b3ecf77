package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/nao1215/capsule/internal/config"
	"github.com/nao1215/capsule/internal/model"
	"github.com/nao1215/capsule/internal/pipeline"
	"github.com/nao1215/capsule/internal/prompt"
	"github.com/nao1215/capsule/internal/report"
	"github.com/nao1215/capsule/internal/session"
	"github.com/spf13/cobra"
)

// NewSyncCmd creates the sync command.
func NewSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch every list for offline reading",
		Long: heredoc.Doc(`
			Sync refreshes the cache without asking anything. Lists are processed
			in this order:

			  1. subscribed lists: new links found in their pages join the tour
			  2. to_fetch: queued resources are fetched and moved to the tour
			  3. other lists, history and archives excluded
			  4. frozen lists, only where nothing is cached yet
			  5. the tour itself

			Links are followed --depth levels below every list member. Questions
			raised by redirects or certificate requests are answered "no" unless
			--assume-yes is given.`),
		Example: heredoc.Doc(`
			# Refresh pages older than a day, one level of links deep
			capsule sync --cache-validity 86400

			# Only fetch what is not cached yet, and keep a Markdown report
			capsule sync --depth 0 --report sync.md

			# Machine-readable summary
			capsule sync --json`),
		Args: cobra.NoArgs,
		RunE: runSyncCmd,
	}

	cmd.Flags().IntP("depth", "d", config.DefaultSyncDepth,
		"How many levels of links below each list member are fetched")
	cmd.Flags().Int("cache-validity", 0,
		"Refetch cached resources older than this many seconds (0: uncached only)")
	cmd.Flags().BoolP("assume-yes", "y", false,
		"Answer yes to every question raised during sync")
	cmd.Flags().StringP("report", "r", "",
		"Write a Markdown report to the specified file path")
	cmd.Flags().BoolP("json", "j", false,
		"Print the summary as JSON")

	return cmd
}

// applySyncFlags copies explicitly set flags over the configuration file
// values.
func applySyncFlags(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("depth") {
		depth, err := cmd.Flags().GetInt("depth")
		if err != nil {
			return err
		}
		cfg.SyncDepth = depth
	}
	if cmd.Flags().Changed("cache-validity") {
		validity, err := cmd.Flags().GetInt("cache-validity")
		if err != nil {
			return err
		}
		if validity < 0 {
			return fmt.Errorf("invalid --cache-validity %d: must be non-negative", validity)
		}
		cfg.CacheValidity = time.Duration(validity) * time.Second
	}
	if cmd.Flags().Changed("assume-yes") {
		yes, err := cmd.Flags().GetBool("assume-yes")
		if err != nil {
			return err
		}
		cfg.AssumeYes = yes
	}
	return nil
}

// runSyncCmd executes the sync command.
func runSyncCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := applySyncFlags(cmd, cfg); err != nil {
		return err
	}
	reportFile, err := cmd.Flags().GetString("report")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	opts := []session.Option{session.WithPrompter(prompt.NewFixed(cfg.AssumeYes))}
	return withSession(cmd, cfg, opts, func(ctx context.Context, s *session.Session) error {
		result, syncErr := s.Sync(ctx, pipeline.Settings{
			Depth:         cfg.SyncDepth,
			CacheValidity: cfg.CacheValidity,
		})

		var summary report.Writer = report.NewSimpleWriter(cmd.OutOrStdout(), report.WithVerbose(cfg.Verbose))
		if jsonOutput {
			summary = report.NewJSONWriter(cmd.OutOrStdout(), report.WithPrettyPrint(), report.WithVersion(getVersion()))
		}
		if _, err := summary.Write(result); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}

		if reportFile != "" {
			if err := writeMarkdownReport(reportFile, result); err != nil {
				return err
			}
			if !jsonOutput {
				fmt.Fprintf(cmd.OutOrStdout(), "Report written to: %s\n", reportFile)
			}
		}
		return syncErr
	})
}

// writeMarkdownReport writes the report to path, creating parent
// directories as needed.
func writeMarkdownReport(path string, result *model.SyncReport) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	f, err := os.Create(path) //nolint:gosec // User-provided report path is intentional
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if _, err := report.NewMarkdownWriter(f).Write(result); err != nil {
		_ = f.Close() //nolint:errcheck // reporting the write error
		return fmt.Errorf("failed to write report: %w", err)
	}
	return f.Close()
}
