package render

import (
	"fmt"
	"strings"
)

// Gopher renders gopher menus.
type Gopher struct {
	body  string
	links []string
	text  string
	done  bool
}

// NewGopher returns a renderer for a gopher menu body.
func NewGopher(body string) *Gopher {
	return &Gopher{body: body}
}

// IsValid always reports true.
func (g *Gopher) IsValid() bool {
	return true
}

// Title returns the display string of the first menu line.
func (g *Gopher) Title() string {
	first, _, _ := strings.Cut(g.body, "\n")
	first, _, _ = strings.Cut(first, "\t")
	return strings.TrimPrefix(strings.TrimSpace(first), "i")
}

// Links returns one "url label" line per menu item.
func (g *Gopher) Links(_ Mode) []string {
	g.render()
	return g.links
}

// Body renders info lines as text and items as numbered links.
func (g *Gopher) Body(_ Mode) (string, []string) {
	g.render()
	return g.text, g.links
}

func (g *Gopher) render() {
	if g.done {
		return
	}
	g.done = true

	var out strings.Builder
	for _, line := range strings.Split(g.body, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, "i") {
			info, _, _ := strings.Cut(line[1:], "\t")
			out.WriteString(info)
			out.WriteByte('\n')
			continue
		}
		if t := strings.TrimSpace(line); t == "." || t == "" {
			continue
		}
		link, name, ok := menuLink(line)
		if !ok {
			out.WriteString(line)
			out.WriteByte('\n')
			continue
		}
		g.links = append(g.links, link+" "+name)
		fmt.Fprintf(&out, "[%d] %s\n", len(g.links), name)
	}
	g.text = out.String()
}

// menuLink converts a "Tname\tselector\thost\tport" menu line into a URL.
// A trailing gopher+ "+" field is ignored. Type h items whose selector
// starts with "URL:" point outside gopherspace.
func menuLink(line string) (link, name string, ok bool) {
	parts := strings.Split(line, "\t")
	parts[len(parts)-1] = strings.TrimSpace(parts[len(parts)-1])
	if parts[len(parts)-1] == "+" {
		parts = parts[:len(parts)-1]
	}
	if len(parts) != 4 || parts[0] == "" {
		return "", "", false
	}
	display, selector, host, port := parts[0], parts[1], parts[2], parts[3]
	itemType, name := display[:1], display[1:]

	if port == "70" {
		port = ""
	} else {
		port = ":" + port
	}
	if target, found := strings.CutPrefix(selector, "URL:"); itemType == "h" && found {
		link = target
	} else {
		if !strings.HasPrefix(selector, "/") {
			selector = "/" + selector
		}
		link = "gopher://" + host + port + "/" + itemType + selector
	}
	return strings.ReplaceAll(link, " ", "%20"), name, true
}
