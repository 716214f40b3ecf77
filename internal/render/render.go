package render

import (
	"path"
	"strings"

	"github.com/nao1215/capsule/internal/locator"
)

// Mode selects how much of a document is rendered.
type Mode string

const (
	// ModeReadable is the default display mode.
	ModeReadable Mode = "readable"
	// ModeFull renders everything, images included.
	ModeFull Mode = "full"
	// ModeLinksOnly skips formatting and only extracts links.
	ModeLinksOnly Mode = "links_only"
)

// Renderer exposes a fetched document to its consumers. Links are raw
// link lines: a possibly relative URL optionally followed by a space and
// a label.
type Renderer interface {
	IsValid() bool
	Title() string
	Links(mode Mode) []string
	Body(mode Mode) (string, []string)
}

// constructors are tried in order. Patterns follow path.Match syntax.
var constructors = []struct {
	pattern string
	build   func(body string) Renderer
}{
	{"text/gemini", func(b string) Renderer { return NewGemtext(b) }},
	{"text/html", func(b string) Renderer { return NewHTML(b) }},
	{"text/xml", func(b string) Renderer { return NewFeed(b) }},
	{"application/xml", func(b string) Renderer { return NewFeed(b) }},
	{"application/rss+xml", func(b string) Renderer { return NewFeed(b) }},
	{"application/atom+xml", func(b string) Renderer { return NewFeed(b) }},
	{"text/gopher", func(b string) Renderer { return NewGopher(b) }},
	{"text/plain", func(b string) Renderer { return NewPlain(b) }},
}

// For picks a renderer for body based on the mime type of loc. Other text
// types are read as gemtext. Documents that claim to be feeds but are not
// fall back to HTML. Binary content has no renderer and yields nil.
func For(loc *locator.Locator, body []byte) Renderer {
	mime, _, _ := strings.Cut(loc.Mime(), ";")
	mime = strings.TrimSpace(mime)
	if mime == "" {
		return nil
	}

	text := string(body)
	for _, c := range constructors {
		if ok, _ := path.Match(c.pattern, mime); !ok {
			continue
		}
		r := c.build(text)
		if !r.IsValid() {
			r = NewHTML(text)
		}
		return r
	}
	if strings.HasPrefix(mime, "text/") {
		return NewGemtext(text)
	}
	return nil
}

// Targets turns the link lines of r into locators relative to loc. Lines
// that do not look like URLs are dropped. Gopher links keep their label
// as the locator name.
func Targets(loc *locator.Locator, r Renderer, mode Mode) []*locator.Locator {
	lines := r.Links(mode)
	targets := make([]*locator.Locator, 0, len(lines))
	for _, line := range lines {
		raw, label, _ := strings.Cut(strings.TrimSpace(line), " ")
		if raw == "" {
			continue
		}
		abs := raw
		if !loc.Local && !strings.Contains(raw, "://") {
			abs = loc.Absolutise(raw)
		}
		if !locator.LooksLikeURL(abs) {
			continue
		}
		target, err := loc.Resolve(abs)
		if err != nil {
			continue
		}
		if target.Scheme == "gopher" {
			target.Name = strings.TrimSpace(label)
		}
		targets = append(targets, target)
	}
	return targets
}

// firstLineTitle returns line shortened to 50 characters.
func firstLineTitle(line string) string {
	line = strings.TrimSpace(line)
	if r := []rune(line); len(r) > 50 {
		return string(r[:49]) + "…"
	}
	return line
}

// bareURLs returns the words of line that carry a scheme separator.
func bareURLs(line string) []string {
	if !strings.Contains(line, "://") {
		return nil
	}
	var urls []string
	for _, w := range strings.Fields(line) {
		if strings.Contains(w, "://") {
			urls = append(urls, w)
		}
	}
	return urls
}
