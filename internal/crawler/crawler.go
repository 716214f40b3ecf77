package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/nao1215/capsule/internal/lists"
	"github.com/nao1215/capsule/internal/locator"
	"github.com/nao1215/capsule/internal/model"
	"github.com/nao1215/capsule/internal/protocol"
	"github.com/nao1215/capsule/internal/render"
)

// Navigator fetches resources and gives access to their cache.
type Navigator interface {
	// Fetch downloads loc unattended and stores it in the cache. limit
	// caps the download size. It returns the locator the body was
	// cached under, which differs from loc after a redirect.
	Fetch(ctx context.Context, loc *locator.Locator, limit bool) (*locator.Locator, error)

	// IsFresh reports whether loc is cached and younger than maxAge.
	// A zero maxAge accepts any cache.
	IsFresh(loc *locator.Locator, maxAge time.Duration) bool

	// Read returns the cached body of loc.
	Read(loc *locator.Locator) ([]byte, error)
}

// ListPolicy describes how the members of one list are crawled.
type ListPolicy struct {
	// Validity is the cache age that triggers a refresh. Zero means only
	// uncached members are fetched.
	Validity time.Duration
	// Depth is how many levels of links are followed below each member.
	Depth int
	// TourAndRemove moves every successfully cached member to the tour.
	TourAndRemove bool
	// TourChildren appends every newly cached resource to the tour.
	TourChildren bool
}

// Plan is the partition of user lists by status.
type Plan struct {
	Subscriptions []string
	Normal        []string
	Frozen        []string
}

// Crawler fetches lists and follows links.
type Crawler struct {
	nav    Navigator
	lists  *lists.Store
	parser *locator.Parser
	logger *slog.Logger

	// ignorePatterns are path.Match patterns matched against full URLs.
	ignorePatterns []string
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithLogger sets the logger used for progress output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		c.logger = logger
	}
}

// WithIgnorePatterns skips URLs matching any of the patterns, for example
// "gemini://*.example.org/*".
func WithIgnorePatterns(patterns []string) Option {
	return func(c *Crawler) {
		c.ignorePatterns = patterns
	}
}

// New returns a Crawler fetching through nav and reading lists from store.
// parser turns list entries into locators.
func New(nav Navigator, store *lists.Store, parser *locator.Parser, opts ...Option) *Crawler {
	c := &Crawler{
		nav:    nav,
		lists:  store,
		parser: parser,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Plan partitions the non-system lists by their status.
func (c *Crawler) Plan() (Plan, error) {
	names, err := c.lists.Names()
	if err != nil {
		return Plan{}, err
	}
	var p Plan
	for _, name := range names {
		if lists.IsSystem(name) {
			continue
		}
		status, err := c.lists.Status(name)
		if err != nil {
			return Plan{}, err
		}
		switch status {
		case lists.StatusSubscribed:
			p.Subscriptions = append(p.Subscriptions, name)
		case lists.StatusFrozen:
			p.Frozen = append(p.Frozen, name)
		default:
			p.Normal = append(p.Normal, name)
		}
	}
	return p, nil
}

// FetchList crawls every member of the list name. Per-resource failures
// are recorded in report; only context cancellation stops the crawl.
func (c *Crawler) FetchList(ctx context.Context, name string, policy ListPolicy, report *model.SyncReport) error {
	urls, err := c.lists.URLs(name)
	if errors.Is(err, lists.ErrListNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	c.logger.Info("fetching list", "list", name, "count", len(urls))

	for i, raw := range urls {
		loc, err := c.parser.Parse(raw)
		if err != nil {
			report.RecordFailure(raw, err)
			continue
		}
		c.logger.Debug("list member", "list", name, "index", i+1, "of", len(urls), "url", loc.URL())

		final, err := c.FetchResource(ctx, loc, policy.Depth, policy.Validity, policy.TourChildren, report)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !policy.TourAndRemove || err != nil || final == nil {
			continue
		}
		if c.addToTour(final, report) {
			if _, err := c.lists.RemoveURL(name, raw); err != nil {
				return fmt.Errorf("failed to remove %s from %s: %w", raw, name, err)
			}
		}
	}
	return nil
}

// FetchResource refreshes loc when its cache is older than validity and
// then follows its links depth levels down. Links are followed even when
// loc itself was fresh so that pages queued for later get their children
// too. Children are always fetched with validity 0.
//
// The returned locator is where loc's body is cached. The error is the
// fetch failure of loc itself, already recorded in report.
func (c *Crawler) FetchResource(ctx context.Context, loc *locator.Locator, depth int, validity time.Duration,
	saveToTour bool, report *model.SyncReport) (*locator.Locator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if loc.Scheme == "mailto" || c.ignored(loc) {
		report.RecordSkip()
		return nil, nil
	}

	final := loc
	var fetchErr error
	if !c.nav.IsFresh(loc, validity) {
		isNew := !c.nav.IsFresh(loc, 0)
		c.logger.Info("fetch", "url", loc.URL(), "depth", depth)

		// Only fetches that end up on the tour may exceed the size cap.
		got, err := c.nav.Fetch(ctx, loc, !saveToTour)
		switch {
		case errors.Is(err, protocol.ErrUnsupportedScheme):
			report.RecordSkip()
			return nil, nil
		case err != nil:
			c.logger.Debug("fetch failed", "url", loc.URL(), "error", err)
			report.RecordFailure(loc.URL(), err)
			fetchErr = err
		default:
			final = got
			report.RecordFetch(isNew)
			if saveToTour && isNew {
				c.addToTour(final, report)
			}
		}
	}

	if depth > 0 {
		for _, child := range c.links(final) {
			if ctx.Err() != nil {
				return final, ctx.Err()
			}
			// Child failures are recorded in the report and do not
			// affect the parent.
			_, _ = c.FetchResource(ctx, child, depth-1, 0, saveToTour, report)
		}
	}
	return final, fetchErr
}

// FetchLater queues loc for the next sync. Resources that are already
// cached go straight to the tour. It returns the list loc was added to.
func (c *Crawler) FetchLater(loc *locator.Locator) (string, error) {
	target := lists.ToFetch
	if c.nav.IsFresh(loc, 0) {
		target = lists.Tour
	}
	if _, err := c.lists.Add(target, lists.EntryFor(loc, c.title(loc))); err != nil {
		return "", err
	}
	return target, nil
}

// addToTour appends loc to the tour when it is cached.
func (c *Crawler) addToTour(loc *locator.Locator, report *model.SyncReport) bool {
	if !c.nav.IsFresh(loc, 0) {
		return false
	}
	added, err := c.lists.Add(lists.Tour, lists.EntryFor(loc, c.title(loc)))
	if err != nil {
		c.logger.Warn("failed to add to tour", "url", loc.URL(), "error", err)
		return false
	}
	c.logger.Info("adding to tour", "url", loc.URL())
	if added {
		report.RecordTour(loc.URL())
	}
	return true
}

// links returns the targets of the cached body of loc.
func (c *Crawler) links(loc *locator.Locator) []*locator.Locator {
	body, err := c.nav.Read(loc)
	if err != nil {
		return nil
	}
	r := render.For(loc, body)
	if r == nil {
		return nil
	}
	return render.Targets(loc, r, render.ModeLinksOnly)
}

// title returns the rendered title of loc, falling back to its capsule name.
func (c *Crawler) title(loc *locator.Locator) string {
	if body, err := c.nav.Read(loc); err == nil {
		if r := render.For(loc, body); r != nil {
			if t := r.Title(); t != "" {
				return t
			}
		}
	}
	return loc.CapsuleTitle()
}

func (c *Crawler) ignored(loc *locator.Locator) bool {
	for _, pattern := range c.ignorePatterns {
		if ok, _ := path.Match(pattern, loc.URL()); ok {
			return true
		}
	}
	return false
}
