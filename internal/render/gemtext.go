package render

import (
	"fmt"
	"strings"
)

// Gemtext renders text/gemini documents.
type Gemtext struct {
	body  string
	title string
	links []string
	text  string
	done  bool
}

// NewGemtext returns a renderer for a gemtext body.
func NewGemtext(body string) *Gemtext {
	return &Gemtext{body: body}
}

// IsValid always reports true: any text is valid gemtext.
func (g *Gemtext) IsValid() bool {
	return true
}

// Title returns the first heading, or the first line when the document
// has no heading.
func (g *Gemtext) Title() string {
	if g.title != "" {
		return g.title
	}
	lines := strings.Split(g.body, "\n")
	for _, l := range lines {
		if strings.HasPrefix(l, "#") {
			g.title = strings.TrimSpace(strings.TrimLeft(l, "#"))
			return g.title
		}
	}
	if strings.TrimSpace(g.body) == "" {
		return "Empty Page"
	}
	g.title = firstLineTitle(lines[0])
	return g.title
}

// Links returns the "=>" targets followed by bare URLs found in text
// lines. The mode does not change gemtext links.
func (g *Gemtext) Links(_ Mode) []string {
	g.render()
	return g.links
}

// Body renders the document as plain text with numbered links.
func (g *Gemtext) Body(_ Mode) (string, []string) {
	g.render()
	return g.text, g.links
}

func (g *Gemtext) render() {
	if g.done {
		return
	}
	g.done = true

	var (
		out          strings.Builder
		hidden       []string
		preformatted bool
	)
	for _, line := range strings.Split(strings.ReplaceAll(g.body, "\r\n", "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "```"):
			preformatted = !preformatted
			continue
		case preformatted:
			out.WriteString(line)
		case strings.HasPrefix(line, "=>"):
			link := strings.TrimSpace(line[2:])
			if link == "" {
				continue
			}
			g.links = append(g.links, link)
			target, name, _ := strings.Cut(link, " ")
			name = strings.TrimSpace(name)
			if name == "" {
				name = target
			}
			fmt.Fprintf(&out, "[%d] %s", len(g.links), name)
		case strings.HasPrefix(line, "* "):
			out.WriteString("• " + strings.TrimLeft(line[1:], "\t "))
		case strings.HasPrefix(line, ">"):
			out.WriteString("> " + strings.TrimLeft(line[1:], "\t "))
		case strings.HasPrefix(line, "#"):
			out.WriteString(strings.TrimSpace(strings.TrimLeft(line, "#")))
		default:
			hidden = append(hidden, bareURLs(line)...)
			out.WriteString(strings.TrimRight(line, " \t"))
		}
		out.WriteByte('\n')
	}
	g.links = append(g.links, hidden...)
	g.text = out.String()
}
