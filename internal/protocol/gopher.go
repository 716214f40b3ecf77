package protocol

import (
	"context"
	"log/slog"

	"github.com/nao1215/capsule/internal/locator"
	"github.com/nao1215/capsule/internal/transport"
)

// Gopher fetches gopher:// resources.
type Gopher struct {
	dialer transport.Dialer
	logger *slog.Logger
}

// GopherOption configures a Gopher fetcher.
type GopherOption func(*Gopher)

// WithGopherLogger sets the logger.
func WithGopherLogger(logger *slog.Logger) GopherOption {
	return func(g *Gopher) {
		g.logger = logger
	}
}

// NewGopher returns a Gopher fetcher dialing through d.
func NewGopher(d transport.Dialer, opts ...GopherOption) *Gopher {
	g := &Gopher{dialer: d, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Scheme implements Fetcher.
func (g *Gopher) Scheme() string { return "gopher" }

// DefaultPort implements Fetcher.
func (g *Gopher) DefaultPort() int { return locator.StandardPorts["gopher"] }

// Fetch sends the selector, with the query as search terms, and reads the
// reply until the server closes the connection.
func (g *Gopher) Fetch(ctx context.Context, loc *locator.Locator, opts FetchOptions) (*Response, error) {
	ctx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	conn, err := dialTCP(ctx, g.dialer, loc)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	req := loc.Selector
	if loc.Query != "" {
		req += "\t" + loc.Query
	}
	g.logger.Debug("gopher request", "url", loc.URL(), "type", loc.ItemType)
	if err := sendRequest(conn, req+"\r\n"); err != nil {
		return nil, err
	}

	body, err := readBody(conn, -1, opts.MaxSize)
	if err != nil {
		return nil, err
	}
	if locator.IsTextItem(loc.ItemType) {
		body = decodeUTF8OrLatin1(body)
	}
	return &Response{Locator: loc, Body: body, Mime: loc.Mime()}, nil
}
