package render

import (
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// HTML renders text/html documents. Only anchors are followed, which is
// enough to crawl a site; the body is converted to markdown for reading.
type HTML struct {
	body   string
	doc    *html.Node
	err    error
	parsed bool
	title  string
}

// NewHTML returns a renderer for an HTML body.
func NewHTML(body string) *HTML {
	return &HTML{body: body}
}

func (h *HTML) parse() (*html.Node, error) {
	if !h.parsed {
		h.parsed = true
		h.doc, h.err = html.Parse(strings.NewReader(h.body))
	}
	return h.doc, h.err
}

// IsValid reports whether the body could be parsed.
func (h *HTML) IsValid() bool {
	_, err := h.parse()
	return err == nil
}

// Title returns the content of the <title> element.
func (h *HTML) Title() string {
	if h.title != "" {
		return h.title
	}
	doc, err := h.parse()
	if err != nil {
		return ""
	}
	h.title = strings.TrimSpace(goquery.NewDocumentFromNode(doc).Find("title").First().Text())
	return h.title
}

// Links returns anchor targets in document order. Full mode also returns
// image sources.
func (h *HTML) Links(mode Mode) []string {
	doc, err := h.parse()
	if err != nil {
		return nil
	}
	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a":
				if href := followable(getAttr(n, "href")); href != "" {
					links = append(links, href)
				}
			case "img":
				if mode == ModeFull {
					if src := followable(getAttr(n, "src")); src != "" {
						links = append(links, src)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links
}

// Body converts the document to markdown. When conversion fails the
// concatenated text nodes are returned instead.
func (h *HTML) Body(mode Mode) (string, []string) {
	links := h.Links(mode)
	converter := md.NewConverter("", true, nil)
	text, err := converter.ConvertString(h.body)
	if err == nil {
		return text, links
	}

	doc, perr := h.parse()
	if perr != nil {
		return h.body, links
	}
	return goquery.NewDocumentFromNode(doc).Text(), links
}

// Subscription is a feed advertised by a page.
type Subscription struct {
	URL   string
	Mime  string
	Title string
}

// Subscriptions returns the feeds the page links to with
// <link rel="alternate">.
func (h *HTML) Subscriptions() []Subscription {
	doc, err := h.parse()
	if err != nil {
		return nil
	}
	var subs []Subscription
	goquery.NewDocumentFromNode(doc).Find(`link[rel="alternate"]`).Each(func(_ int, s *goquery.Selection) {
		typ := s.AttrOr("type", "")
		href := s.AttrOr("href", "")
		if href == "" || !(strings.Contains(typ, "rss") || strings.Contains(typ, "atom") || strings.Contains(typ, "feed")) {
			return
		}
		subs = append(subs, Subscription{URL: href, Mime: typ, Title: s.AttrOr("title", "")})
	})
	return subs
}

// followable filters out references that cannot be fetched.
func followable(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	for _, prefix := range []string{"javascript:", "tel:", "data:"} {
		if strings.HasPrefix(href, prefix) {
			return ""
		}
	}
	return strings.ReplaceAll(href, " ", "%20")
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
