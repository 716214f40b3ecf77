package render

import "strings"

// Plain renders text/plain, typically finger responses.
type Plain struct {
	body string
}

// NewPlain returns a renderer for a plain text body.
func NewPlain(body string) *Plain {
	return &Plain{body: body}
}

// IsValid always reports true.
func (p *Plain) IsValid() bool {
	return true
}

// Title returns the first line.
func (p *Plain) Title() string {
	first, _, _ := strings.Cut(strings.TrimLeft(p.body, "\r\n"), "\n")
	return firstLineTitle(first)
}

// Links returns every word that looks like an absolute URL.
func (p *Plain) Links(_ Mode) []string {
	var links []string
	for _, line := range strings.Split(p.body, "\n") {
		links = append(links, bareURLs(line)...)
	}
	return links
}

// Body returns the text unchanged.
func (p *Plain) Body(mode Mode) (string, []string) {
	return p.body, p.Links(mode)
}
