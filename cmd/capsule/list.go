package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"github.com/nao1215/capsule/internal/config"
	"github.com/nao1215/capsule/internal/lists"
	"github.com/nao1215/capsule/internal/locator"
	"github.com/spf13/cobra"
)

// listEnv is what every list subcommand works with. Lists are plain
// files, so no session is opened.
type listEnv struct {
	cfg    *config.Config
	store  *lists.Store
	parser *locator.Parser
	out    io.Writer
	close  func()
}

func openLists(cmd *cobra.Command) (*listEnv, error) {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	logger, closer := setupLogger(cmd, cfg)
	return &listEnv{
		cfg:    cfg,
		store:  lists.NewStore(cfg.ListsDir(), lists.WithLogger(logger)),
		parser: locator.NewParser(cfg.CacheDir, cfg.ListsDir()),
		out:    cmd.OutOrStdout(),
		close:  func() { _ = closer.Close() }, //nolint:errcheck // nothing left to report to
	}, nil
}

// listAction adapts a function taking a listEnv into a cobra RunE.
func listAction(fn func(env *listEnv, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		env, err := openLists(cmd)
		if err != nil {
			return err
		}
		defer env.close()
		return fn(env, args)
	}
}

// NewListCmd creates the list command and its subcommands.
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Manage lists of URLs",
		Long: heredoc.Doc(`
			Lists are gemtext files holding one link per line. Without a
			subcommand, every list is printed with its sync status.

			Subscribed lists add new links found in their pages to the tour during
			sync. Frozen lists are only fetched when nothing is cached yet.
			history, archives, to_fetch and tour are system lists.`),
		Example: heredoc.Doc(`
			capsule list
			capsule list create reading "Things to read"
			capsule list add reading gemini://example.org/essay.gmi
			capsule list subscribe reading
			capsule list move gemini://example.org/essay.gmi archives`),
		Args: cobra.NoArgs,
		RunE: listAction(runListCmd),
	}

	cmd.AddCommand(newListShowCmd())
	cmd.AddCommand(newListCreateCmd())
	cmd.AddCommand(newListDeleteCmd())
	cmd.AddCommand(newListAddCmd())
	cmd.AddCommand(newListRemoveCmd())
	cmd.AddCommand(newListMoveCmd())
	cmd.AddCommand(newListStatusCmd("subscribe", lists.StatusSubscribed,
		"Add new links found in the list's pages to the tour during sync"))
	cmd.AddCommand(newListStatusCmd("freeze", lists.StatusFrozen,
		"Only fetch the list's pages when nothing is cached"))
	cmd.AddCommand(newListStatusCmd("normal", lists.StatusNormal,
		"Refresh the list's pages like any other list"))

	return cmd
}

func runListCmd(env *listEnv, _ []string) error {
	names, err := env.store.Names()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(env.out, "No lists yet.")
		return nil
	}
	for _, name := range names {
		entries, err := env.store.Entries(name)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("%s (%d)", name, len(entries))
		switch {
		case lists.IsSystem(name):
			line += " [system]"
		default:
			status, err := env.store.Status(name)
			if err != nil {
				return err
			}
			if status != lists.StatusNormal {
				line += " [" + status.String() + "]"
			}
		}
		fmt.Fprintln(env.out, line)
	}
	return nil
}

func newListShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print a list",
		Args:  cobra.ExactArgs(1),
		RunE: listAction(func(env *listEnv, args []string) error {
			return env.store.Show(env.out, args[0])
		}),
	}
}

func newListCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name> [title]",
		Short: "Create an empty list",
		Args:  cobra.RangeArgs(1, 2),
		RunE: listAction(func(env *listEnv, args []string) error {
			title := ""
			if len(args) == 2 {
				title = args[1]
			}
			if err := env.store.Create(args[0], title); err != nil {
				return err
			}
			fmt.Fprintf(env.out, "Created list %s\n", args[0])
			return nil
		}),
	}
}

func newListDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a list",
		Args:  cobra.ExactArgs(1),
		RunE: listAction(func(env *listEnv, args []string) error {
			if err := env.store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(env.out, "Deleted list %s\n", args[0])
			return nil
		}),
	}
}

func newListAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <name> <url>",
		Short: "Append a URL to a list",
		Long: heredoc.Doc(`
			Add appends a URL to a list unless it is already there. bookmarks and
			subscribed are created on first use; other lists must exist.`),
		Args: cobra.ExactArgs(2),
	}
	cmd.Flags().StringP("title", "t", "", "Title of the entry (default: the capsule name)")
	cmd.RunE = listAction(func(env *listEnv, args []string) error {
		title, err := cmd.Flags().GetString("title")
		if err != nil {
			return err
		}
		loc, err := env.parser.Parse(args[1])
		if err != nil {
			return err
		}
		added, err := env.store.Add(args[0], lists.EntryFor(loc, title))
		if err != nil {
			return err
		}
		if !added {
			fmt.Fprintf(env.out, "%s is already in %s\n", loc.URL(), args[0])
			return nil
		}
		fmt.Fprintf(env.out, "Added %s to %s\n", loc.URL(), args[0])
		return nil
	})
	return cmd
}

func newListRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name> <url>",
		Short: "Remove a URL from a list",
		Args:  cobra.ExactArgs(2),
		RunE: listAction(func(env *listEnv, args []string) error {
			loc, err := env.parser.Parse(args[1])
			if err != nil {
				return err
			}
			removed, err := env.store.RemoveURL(args[0], loc.URL())
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("%s is not in %s", loc.URL(), args[0])
			}
			fmt.Fprintf(env.out, "Removed %s from %s\n", loc.URL(), args[0])
			return nil
		}),
	}
}

func newListMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <url> <list>",
		Short: "Move a URL to a list, removing it from every other list",
		Long: heredoc.Doc(`
			Move adds the URL to the target list and removes it from every other
			list except history and archives. Moving to archives stamps the entry
			with the current date.`),
		Args: cobra.ExactArgs(2),
		RunE: listAction(func(env *listEnv, args []string) error {
			loc, err := env.parser.Parse(args[0])
			if err != nil {
				return err
			}
			from, err := env.store.Move(args[1], lists.EntryFor(loc, ""), env.cfg.ArchivesSize)
			if err != nil {
				return err
			}
			if len(from) > 0 {
				fmt.Fprintf(env.out, "Removed from %s\n", strings.Join(from, ", "))
			}
			fmt.Fprintf(env.out, "Moved %s to %s\n", loc.URL(), args[1])
			return nil
		}),
	}
}

func newListStatusCmd(use string, status lists.Status, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: listAction(func(env *listEnv, args []string) error {
			if err := env.store.SetStatus(args[0], status); err != nil {
				return err
			}
			fmt.Fprintf(env.out, "%s is now %s\n", args[0], status)
			return nil
		}),
	}
}
