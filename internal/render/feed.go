package render

import (
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

// Feed renders RSS 0.9x/1.0/2.0 and Atom feeds. A feed without entries is
// not valid, which lets For fall back to HTML for mislabelled XHTML.
type Feed struct {
	feed *gofeed.Feed
}

// NewFeed parses body with gofeed, which detects the feed flavour itself.
func NewFeed(body string) *Feed {
	parsed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return &Feed{}
	}
	return &Feed{feed: parsed}
}

// IsValid reports whether the body is a feed with at least one entry.
func (f *Feed) IsValid() bool {
	return f.feed != nil && len(f.feed.Items) > 0
}

// Title returns the feed title.
func (f *Feed) Title() string {
	if f.feed == nil || strings.TrimSpace(f.feed.Title) == "" {
		return "RSS/Atom feed"
	}
	return strings.TrimSpace(f.feed.Title)
}

// entries returns the items that carry a link.
func (f *Feed) entries() []*gofeed.Item {
	if f.feed == nil {
		return nil
	}
	items := make([]*gofeed.Item, 0, len(f.feed.Items))
	for _, it := range f.feed.Items {
		if itemLink(it) != "" {
			items = append(items, it)
		}
	}
	return items
}

// itemLink is the item's main link, or its first alternate one.
func itemLink(it *gofeed.Item) string {
	link := strings.TrimSpace(it.Link)
	if link == "" && len(it.Links) > 0 {
		link = strings.TrimSpace(it.Links[0])
	}
	return strings.ReplaceAll(link, " ", "%20")
}

// Links returns one line per entry that has a link.
func (f *Feed) Links(_ Mode) []string {
	items := f.entries()
	links := make([]string, len(items))
	for i, it := range items {
		links[i] = itemLink(it)
	}
	return links
}

// Body lists the entries with numbered links. Full mode adds the
// publication date.
func (f *Feed) Body(mode Mode) (string, []string) {
	var out strings.Builder
	out.WriteString(f.Title() + "\n\n")
	for i, it := range f.entries() {
		title := strings.TrimSpace(it.Title)
		if title == "" {
			title = itemLink(it)
		}
		if mode == ModeFull && it.PublishedParsed != nil {
			title = it.PublishedParsed.Format("2006-01-02") + " " + title
		}
		fmt.Fprintf(&out, "[%d] %s\n", i+1, title)
	}
	return out.String(), f.Links(mode)
}
