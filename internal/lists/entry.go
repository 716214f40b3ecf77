package lists

import (
	"strings"

	"github.com/nao1215/capsule/internal/locator"
)

// Entry is one link line of a list.
type Entry struct {
	// URL is the target, including a "##mode=" suffix when one was set.
	URL string
	// Title is everything after the URL, action stamp included.
	Title string
}

// EntryFor builds an entry pointing at loc.
func EntryFor(loc *locator.Locator, title string) Entry {
	if title == "" {
		title = loc.CapsuleTitle()
	}
	return Entry{URL: loc.URLWithMode(), Title: title}
}

// Line returns the entry as a gemtext link line without trailing newline.
func (e Entry) Line() string {
	if e.Title == "" {
		return "=> " + e.URL
	}
	return "=> " + e.URL + " " + e.Title
}

// parseEntry parses a "=>" line. ok is false for any other line.
func parseEntry(line string) (Entry, bool) {
	rest, found := strings.CutPrefix(strings.TrimSpace(line), "=>")
	if !found {
		return Entry{}, false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return Entry{}, false
	}
	e := Entry{URL: fields[0]}
	if len(fields) > 1 {
		e.Title = strings.Join(fields[1:], " ")
	}
	return e, true
}

// sameURL reports whether the link on line refers to url. Display modes
// and a trailing slash on either side are ignored.
func sameURL(line, url string) bool {
	e, ok := parseEntry(line)
	if !ok {
		return false
	}
	return comparableURL(e.URL) == comparableURL(url)
}

// comparableURL strips the display mode and a trailing slash.
func comparableURL(url string) string {
	url, _, _ = strings.Cut(url, locator.ModeSeparator)
	return strings.TrimSuffix(url, "/")
}
