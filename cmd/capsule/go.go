package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/nao1215/capsule/internal/prompt"
	"github.com/nao1215/capsule/internal/render"
	"github.com/nao1215/capsule/internal/session"
	"github.com/spf13/cobra"
)

// NewGoCmd creates the go command.
func NewGoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "go <url>",
		Short: "Fetch a resource and display it",
		Long: heredoc.Doc(`
			Go fetches a resource, stores it in the cache and prints it.

			When the network fails and a cached copy exists, the cached copy is
			shown instead. In offline mode only the cache is read; with --queue,
			uncached resources are added to the to_fetch list for the next sync.

			A URL without a scheme is taken as a Gemini host. list:///name shows a
			list, and plain paths show local files.`),
		Example: heredoc.Doc(`
			capsule go geminiprotocol.net
			capsule go gopher://gopher.floodgap.com/1/
			capsule go --offline --queue gemini://example.org/later.gmi
			capsule go --max-age 3600 gemini://example.org/
			capsule go list:///bookmarks`),
		Args: cobra.ExactArgs(1),
		RunE: runGoCmd,
	}

	cmd.Flags().BoolP("offline", "O", false, "Only read the cache")
	cmd.Flags().BoolP("queue", "q", false, "In offline mode, queue uncached resources for the next sync")
	cmd.Flags().Int("max-age", 0, "Serve cached copies younger than this many seconds")
	cmd.Flags().StringP("mode", "m", string(render.ModeReadable), "Display mode: readable, full or links_only")
	cmd.Flags().Bool("raw", false, "Print the resource without rendering it")
	cmd.Flags().Bool("no-history", false, "Do not record the visit in history")
	cmd.Flags().String("cert", "", "Activate the named persistent client certificate first")

	return cmd
}

// goFlags holds the parsed flags of the go command.
type goFlags struct {
	opts session.GoOptions
	mode render.Mode
	raw  bool
	cert string
}

func parseGoFlags(cmd *cobra.Command) (goFlags, error) {
	var f goFlags
	var err error
	if f.opts.Offline, err = cmd.Flags().GetBool("offline"); err != nil {
		return f, err
	}
	if f.opts.Queue, err = cmd.Flags().GetBool("queue"); err != nil {
		return f, err
	}
	if f.opts.NoHistory, err = cmd.Flags().GetBool("no-history"); err != nil {
		return f, err
	}
	maxAge, err := cmd.Flags().GetInt("max-age")
	if err != nil {
		return f, err
	}
	if maxAge < 0 {
		return f, fmt.Errorf("invalid --max-age %d: must be non-negative", maxAge)
	}
	f.opts.MaxAge = time.Duration(maxAge) * time.Second

	mode, err := cmd.Flags().GetString("mode")
	if err != nil {
		return f, err
	}
	switch render.Mode(mode) {
	case render.ModeReadable, render.ModeFull, render.ModeLinksOnly:
		f.mode = render.Mode(mode)
	default:
		return f, fmt.Errorf("invalid --mode %q", mode)
	}

	if f.raw, err = cmd.Flags().GetBool("raw"); err != nil {
		return f, err
	}
	f.cert, err = cmd.Flags().GetString("cert")
	return f, err
}

// runGoCmd executes the go command.
func runGoCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	flags, err := parseGoFlags(cmd)
	if err != nil {
		return err
	}

	opts := []session.Option{session.WithPrompter(prompt.NewTerminal())}
	return withSession(cmd, cfg, opts, func(ctx context.Context, s *session.Session) error {
		if flags.cert != "" {
			if err := s.Certificates().ActivatePersistent(flags.cert); err != nil {
				return err
			}
		}

		loc, err := s.Parse(args[0])
		if err != nil {
			return err
		}
		if loc.Mode != "" && !cmd.Flags().Changed("mode") {
			flags.mode = render.Mode(loc.Mode)
		}

		page, err := s.Go(ctx, loc, flags.opts)
		if errors.Is(err, session.ErrQueued) {
			fmt.Fprintln(cmd.OutOrStdout(), err)
			return nil
		}
		if err != nil {
			return err
		}
		if page.FetchErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "showing cached copy from %s: %v\n",
				page.CachedAt.Format(time.DateTime), page.FetchErr)
		}
		if err := printPage(cmd.OutOrStdout(), page, flags); err != nil {
			return err
		}
		if !page.Locator.Local {
			fmt.Fprintf(cmd.ErrOrStderr(), "cached at %s\n", page.Locator.CachePath())
		}
		return nil
	})
}

// printPage writes the page followed by its numbered link targets.
func printPage(w io.Writer, page *session.Page, flags goFlags) error {
	if flags.raw {
		_, err := w.Write(page.Body)
		return err
	}
	r := page.Renderer()
	if r == nil {
		_, err := fmt.Fprintf(w, "Binary content (%s) cached at %s\n", page.Locator.Mime(), page.Locator.CachePath())
		return err
	}

	text, links := r.Body(flags.mode)
	if _, err := fmt.Fprintln(w, page.Title()); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, strings.Repeat("=", len([]rune(page.Title())))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, text); err != nil {
		return err
	}
	if len(links) > 0 {
		fmt.Fprintln(w)
		for i, link := range links {
			target, _, _ := strings.Cut(link, " ")
			if _, err := fmt.Fprintf(w, "[%d] %s\n", i+1, absolute(page, target)); err != nil {
				return err
			}
		}
	}
	return printFeeds(w, page, r)
}

// printFeeds lists the RSS and Atom feeds an HTML page advertises, so
// they can be added to a subscribed list.
func printFeeds(w io.Writer, page *session.Page, r render.Renderer) error {
	h, ok := r.(*render.HTML)
	if !ok {
		return nil
	}
	subs := h.Subscriptions()
	if len(subs) == 0 {
		return nil
	}
	fmt.Fprintln(w, "\nFeeds:")
	for _, sub := range subs {
		line := "  " + absolute(page, sub.URL)
		if sub.Title != "" {
			line += " " + sub.Title
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// absolute resolves target against remote pages.
func absolute(page *session.Page, target string) string {
	if page.Locator.Local {
		return target
	}
	return page.Locator.Absolutise(target)
}
