package protocol

import (
	"context"
	"strings"

	"github.com/nao1215/capsule/internal/locator"
	"github.com/nao1215/capsule/internal/transport"
)

// Finger fetches finger:// resources. The URL path, without its leading
// slash, is the finger query.
type Finger struct {
	dialer transport.Dialer
}

// NewFinger returns a Finger fetcher dialing through d.
func NewFinger(d transport.Dialer) *Finger {
	return &Finger{dialer: d}
}

// Scheme implements Fetcher.
func (f *Finger) Scheme() string { return "finger" }

// DefaultPort implements Fetcher.
func (f *Finger) DefaultPort() int { return locator.StandardPorts["finger"] }

// Fetch implements Fetcher.
func (f *Finger) Fetch(ctx context.Context, loc *locator.Locator, opts FetchOptions) (*Response, error) {
	ctx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	conn, err := dialTCP(ctx, f.dialer, loc)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := sendRequest(conn, strings.TrimLeft(loc.RequestPath(), "/")+"\r\n"); err != nil {
		return nil, err
	}
	body, err := readBody(conn, -1, opts.MaxSize)
	if err != nil {
		return nil, err
	}
	return &Response{Locator: loc, Body: decodeUTF8OrLatin1(body), Mime: "text/plain"}, nil
}
