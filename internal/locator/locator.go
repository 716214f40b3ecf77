package locator

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// StandardPorts maps every supported remote scheme to its default port.
// It doubles as the list of schemes capsule knows how to fetch.
var StandardPorts = map[string]int{
	"gemini":  1965,
	"gopher":  70,
	"finger":  79,
	"http":    80,
	"https":   443,
	"spartan": 300,
}

// localSchemes never touch the network.
var localSchemes = map[string]bool{
	"file":   true,
	"mailto": true,
	"list":   true,
}

// ModeSeparator splits a display mode from the URL it is attached to.
const ModeSeparator = "##mode="

// maxQueryPathLength is the length under which a query is folded into the
// cache path.
const maxQueryPathLength = 258

// Parser creates Locators rooted at a cache directory.
type Parser struct {
	cacheRoot string
	listsDir  string
}

// NewParser returns a Parser whose remote locators are cached below
// cacheRoot and whose list:// locators resolve below listsDir.
func NewParser(cacheRoot, listsDir string) *Parser {
	return &Parser{cacheRoot: cacheRoot, listsDir: listsDir}
}

// Locator identifies a single resource.
type Locator struct {
	// Scheme is the lower-cased URL scheme ("file" for plain paths).
	Scheme string
	// Host is the lower-cased hostname without brackets. Empty when local.
	Host string
	// Port is the explicit port or the scheme's standard port.
	Port int
	// Path is the cache-relevant path: the URL path, the gopher selector,
	// or the filesystem path of a local resource, with a short query folded in.
	Path string
	// Query is the raw URL query.
	Query string
	// ItemType is the gopher item type, "1" when the URL does not carry one.
	ItemType string
	// Selector is the gopher selector sent on the wire.
	Selector string
	// Local is true for file, mailto and list resources.
	Local bool
	// Mode is the display mode carried by a list entry, if any.
	Mode string
	// Name is a human label: a list name or a gopher menu entry.
	Name string

	url       string
	urlPath   string
	parser    *Parser
	cachePath string
	mime      string
}

// Parse parses raw into a Locator.
//
// Strings without a scheme are taken as Gemini hosts unless they look like
// filesystem paths or mailto addresses. Unbracketed IPv6 literals are
// bracketed and a "##mode=" suffix is split off into Mode.
func (p *Parser) Parse(raw string) (*Locator, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmptyURL
	}
	if !strings.Contains(raw, "://") && !strings.Contains(raw, "./") &&
		!strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "mailto:") {
		raw = "gemini://" + raw
	}

	loc := &Locator{parser: p, ItemType: "1"}
	if base, mode, found := strings.Cut(raw, ModeSeparator); found {
		raw = base
		loc.Mode = mode
	}
	loc.url = strings.TrimSpace(FixIPv6URL(raw))

	if strings.HasPrefix(loc.url, "/") || strings.HasPrefix(loc.url, "./") {
		loc.Scheme = "file"
		loc.Local = true
		loc.Path = loc.url
		return loc, nil
	}

	u, err := url.Parse(loc.url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidURL, loc.url, err)
	}
	loc.Scheme = strings.ToLower(u.Scheme)

	if localSchemes[loc.Scheme] {
		loc.Local = true
		switch loc.Scheme {
		case "file":
			loc.Path = strings.TrimPrefix(loc.url, "file://")
		case "mailto":
			loc.Path = u.Opaque
		case "list":
			name := strings.TrimLeft(strings.TrimPrefix(loc.url, "list://"), "/")
			if name == "" {
				loc.Name = "My Lists"
				loc.Path = p.listsDir
			} else {
				loc.Name = name
				loc.Path = filepath.Join(p.listsDir, name+".gmi")
			}
		}
		return loc, nil
	}

	loc.Host = strings.ToLower(u.Hostname())
	if loc.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %s", ErrInvalidURL, loc.url)
	}
	loc.Port = StandardPorts[loc.Scheme]
	if portStr := u.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("%w: bad port in %s", ErrInvalidURL, loc.url)
		}
		loc.Port = port
	}

	loc.urlPath = u.Path
	loc.Path = u.Path
	if loc.Scheme == "gopher" {
		loc.ItemType, loc.Selector = splitGopherPath(u.Path)
		loc.Path = loc.Selector
		loc.mime = gopherMime(loc.ItemType)
	}
	loc.Query = u.RawQuery
	if loc.Query != "" && len(loc.Path+loc.Query) < maxQueryPathLength {
		loc.Path += "/" + loc.Query
	}
	return loc, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// constant URLs.
func (p *Parser) MustParse(raw string) *Locator {
	loc, err := p.Parse(raw)
	if err != nil {
		panic(err)
	}
	return loc
}

// splitGopherPath extracts the item type and selector from a gopher URL
// path. A one-character first segment is the item type.
func splitGopherPath(p string) (itemType, selector string) {
	if len(p) > 1 && p[0] == '/' {
		first, _, _ := strings.Cut(p[1:], "/")
		if len(first) == 1 {
			return p[1:2], p[2:]
		}
	}
	return "1", p
}

// gopherMime maps a gopher item type to a mime label.
func gopherMime(itemType string) string {
	switch itemType {
	case "0":
		return "text/gemini"
	case "1":
		return "text/gopher"
	case "h":
		return "text/html"
	case "9", "g", "I", "s":
		return "binary"
	default:
		return "text/gopher"
	}
}

// IsTextItem reports whether a gopher item type carries text.
func IsTextItem(itemType string) bool {
	switch itemType {
	case "9", "g", "I", "s":
		return false
	}
	return true
}

// URL returns the normalized URL without the mode suffix.
func (l *Locator) URL() string {
	return l.url
}

// URLWithMode returns the URL with its display mode appended, the form
// stored in list files.
func (l *Locator) URLWithMode() string {
	if l.Mode != "" && l.Mode != "readable" {
		return l.url + ModeSeparator + l.Mode
	}
	return l.url
}

// String implements fmt.Stringer.
func (l *Locator) String() string {
	return l.url
}

// RequestPath returns the URL path as it appears on the wire.
func (l *Locator) RequestPath() string {
	return l.urlPath
}

// ASCIIHost returns the host converted to its IDNA ASCII form.
func (l *Locator) ASCIIHost() string {
	ascii, err := idna.Lookup.ToASCII(l.Host)
	if err != nil {
		return l.Host
	}
	return ascii
}

// Address returns the "host:port" dial address.
func (l *Locator) Address() string {
	return net.JoinHostPort(l.ASCIIHost(), strconv.Itoa(l.Port))
}

// Absolutise resolves ref against the locator's URL.
func (l *Locator) Absolutise(ref string) string {
	base, err := url.Parse(l.url)
	if err != nil {
		return ref
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return base.ResolveReference(r).String()
}

// Root returns the URL of the root of the locator's host.
func (l *Locator) Root() string {
	return l.derive("/", "")
}

// Parent returns the URL one path segment up. Local locators return their
// own URL.
func (l *Locator) Parent() string {
	if l.Local {
		return l.url
	}
	p := strings.TrimRight(l.Path, "/")
	dir := path.Dir(p)
	if dir == "." {
		dir = "/"
	}
	if l.Scheme == "gopher" {
		dir = "/1" + dir
	}
	return l.derive(dir, "")
}

// WithQuery returns the URL with query replaced by the escaped input.
func (l *Locator) WithQuery(input string) string {
	return l.derive(l.urlPath, url.PathEscape(input))
}

// derive rebuilds the URL, omitting the standard port.
func (l *Locator) derive(p, query string) string {
	host := l.Host
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if l.Port != 0 && l.Port != StandardPorts[l.Scheme] {
		host += ":" + strconv.Itoa(l.Port)
	}
	u := url.URL{Scheme: l.Scheme, Host: host, Path: p, RawQuery: query}
	return u.String()
}

// CapsuleTitle guesses a short title for the capsule: a "~user" or
// "/users/name" path segment when present, otherwise the host.
func (l *Locator) CapsuleTitle() string {
	if l.Local {
		if l.Name != "" {
			return l.Name
		}
		return l.Path
	}
	title := l.Host
	segments := strings.Split(l.Path, "/")
	for i := 0; i < len(segments)-1; i++ {
		if strings.HasPrefix(segments[i], "user") {
			title = segments[i+1]
		}
	}
	for _, s := range segments {
		if strings.HasPrefix(s, "~") {
			title = s[1:]
		}
	}
	return title
}

// SetMime records the mime type returned by a fetch.
func (l *Locator) SetMime(mime string) {
	l.mime = mime
}

// Resolve parses raw with the parser that produced l, so the result shares
// its cache root. Relative references are resolved against l first.
func (l *Locator) Resolve(raw string) (*Locator, error) {
	if l.parser == nil {
		return nil, fmt.Errorf("%w: %s has no parser", ErrInvalidURL, l.url)
	}
	if !l.Local && !strings.Contains(raw, "://") {
		raw = l.Absolutise(raw)
	}
	return l.parser.Parse(raw)
}
