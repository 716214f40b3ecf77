package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nao1215/capsule/internal/lists"
	"github.com/nao1215/capsule/internal/locator"
	"github.com/nao1215/capsule/internal/protocol"
	"github.com/nao1215/capsule/internal/render"
)

// GoOptions tunes one interactive navigation.
type GoOptions struct {
	// Offline never touches the network. Uncached resources are queued
	// on to_fetch when Queue is set.
	Offline bool
	// Queue adds uncached resources to to_fetch in offline mode.
	Queue bool
	// MaxAge serves the cache instead of fetching when it is younger.
	// Zero always fetches while online.
	MaxAge time.Duration
	// NoHistory keeps the navigation out of the history list.
	NoHistory bool
}

// Page is the result of a navigation.
type Page struct {
	// Locator is the resource that was displayed, after redirects.
	Locator *locator.Locator
	// Body is the raw resource.
	Body []byte
	// FromCache is set when the body was not fetched by this navigation.
	FromCache bool
	// FetchErr is the network error hidden behind a stale cache.
	FetchErr error
	// CachedAt is the modification time of the cache that was read. It is
	// zero when the body was fetched by this navigation.
	CachedAt time.Time
}

// Renderer returns the renderer for the page, or nil for binary content.
func (p *Page) Renderer() render.Renderer {
	return render.For(p.Locator, p.Body)
}

// Title returns the rendered title, falling back to the capsule name.
func (p *Page) Title() string {
	if r := p.Renderer(); r != nil {
		if t := r.Title(); t != "" {
			return t
		}
	}
	return p.Locator.CapsuleTitle()
}

// Go navigates to loc. Online navigations fetch the resource and fall
// back to the cache when the network fails. Successful navigations are
// recorded in the history.
func (s *Session) Go(ctx context.Context, loc *locator.Locator, opts GoOptions) (*Page, error) {
	if loc.Scheme == "mailto" {
		return nil, fmt.Errorf("%w: %s", protocol.ErrUnsupportedScheme, loc.URL())
	}

	var (
		page *Page
		err  error
	)
	switch {
	case loc.Local:
		page, err = s.readLocal(loc)
	case opts.Offline:
		page, err = s.readOffline(loc, opts.Queue)
	case opts.MaxAge > 0 && s.IsFresh(loc, opts.MaxAge):
		page, err = s.readCached(s.follow(loc))
	default:
		page, err = s.readOnline(ctx, loc)
	}
	if err != nil {
		return nil, err
	}

	if !opts.NoHistory && !page.Locator.Local {
		entry := lists.EntryFor(page.Locator, page.Title())
		if err := s.lists.AddTop(lists.History, entry, s.cfg.HistorySize, 0); err != nil {
			s.logger.Warn("failed to update history", "error", err)
		}
	}
	return page, nil
}

func (s *Session) readOnline(ctx context.Context, loc *locator.Locator) (*Page, error) {
	// A failed fetch writes an error document, so check for a cache first.
	cached := s.IsFresh(loc, 0)
	final, body, err := s.fetch(ctx, loc, protocol.FetchOptions{Timeout: s.cfg.RequestTimeout(false)})
	if err == nil {
		return &Page{Locator: final, Body: body}, nil
	}
	if !transient(err) || !cached {
		return nil, err
	}
	s.logger.Warn("serving cached copy", "url", loc.URL(), "error", err)
	page, cacheErr := s.readCached(s.follow(loc))
	if cacheErr != nil {
		return nil, err
	}
	page.FetchErr = err
	return page, nil
}

func (s *Session) readOffline(loc *locator.Locator, queue bool) (*Page, error) {
	if s.IsFresh(loc, 0) {
		return s.readCached(s.follow(loc))
	}
	if !queue {
		return nil, fmt.Errorf("%w: %s", ErrNotCached, loc.URL())
	}
	list, err := s.FetchLater(loc)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s added to %s", ErrQueued, loc.URL(), list)
}

func (s *Session) readCached(loc *locator.Locator) (*Page, error) {
	body, err := s.cache.Read(loc)
	if err != nil {
		return nil, err
	}
	return &Page{Locator: loc, Body: body, FromCache: true, CachedAt: s.cache.LastModified(loc)}, nil
}

// readLocal reads a file, a list or a directory listing.
func (s *Session) readLocal(loc *locator.Locator) (*Page, error) {
	fi, err := os.Stat(loc.Path)
	if err != nil {
		if loc.Scheme == "list" && errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", lists.ErrListNotFound, loc.Name)
		}
		return nil, fmt.Errorf("failed to open %s: %w", loc.Path, err)
	}
	if !fi.IsDir() {
		body, err := os.ReadFile(loc.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", loc.Path, err)
		}
		return &Page{Locator: loc, Body: body, FromCache: true}, nil
	}

	var b strings.Builder
	if loc.Scheme == "list" {
		names, err := s.lists.Names()
		if err != nil {
			return nil, err
		}
		b.WriteString("# " + loc.Name + "\n\n")
		for _, name := range names {
			fmt.Fprintf(&b, "=> list:///%s %s\n", name, name)
		}
	} else {
		entries, err := os.ReadDir(loc.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", loc.Path, err)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		b.WriteString("# " + loc.Path + "\n\n")
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".") {
				continue
			}
			abs, err := filepath.Abs(filepath.Join(loc.Path, e.Name()))
			if err != nil {
				continue
			}
			fmt.Fprintf(&b, "=> file://%s %s\n", abs, e.Name())
		}
	}
	loc.SetMime("text/gemini")
	return &Page{Locator: loc, Body: []byte(b.String()), FromCache: true}, nil
}

// transient reports whether err is a network failure worth hiding behind
// a cached copy.
func transient(err error) bool {
	switch protocol.KindOf(err) {
	case protocol.KindDNS, protocol.KindConnectionRefused, protocol.KindConnectionReset, protocol.KindTimeout:
		return true
	}
	return false
}
