package protocol

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/nao1215/capsule/internal/locator"
	"github.com/nao1215/capsule/internal/transport"
)

// maxSpartanHeader bounds the status line of a Spartan reply.
const maxSpartanHeader = 4096

// Spartan fetches spartan:// resources.
type Spartan struct {
	dialer transport.Dialer
}

// NewSpartan returns a Spartan fetcher dialing through d.
func NewSpartan(d transport.Dialer) *Spartan {
	return &Spartan{dialer: d}
}

// Scheme implements Fetcher.
func (s *Spartan) Scheme() string { return "spartan" }

// DefaultPort implements Fetcher.
func (s *Spartan) DefaultPort() int { return locator.StandardPorts["spartan"] }

// Fetch implements Fetcher. A redirect (code 3) is followed once.
func (s *Spartan) Fetch(ctx context.Context, loc *locator.Locator, opts FetchOptions) (*Response, error) {
	resp, target, err := s.roundTrip(ctx, loc, opts)
	if err != nil || target == nil {
		return resp, err
	}
	resp, next, err := s.roundTrip(ctx, target, opts)
	if err != nil {
		return nil, err
	}
	if next != nil {
		return nil, &ProtocolError{Scheme: "spartan", Status: "3", Meta: "too many redirects"}
	}
	return resp, nil
}

// roundTrip performs one request. It returns either a response or the
// redirect target.
func (s *Spartan) roundTrip(ctx context.Context, loc *locator.Locator, opts FetchOptions) (*Response, *locator.Locator, error) {
	ctx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	conn, err := dialTCP(ctx, s.dialer, loc)
	if err != nil {
		return nil, nil, err
	}
	defer conn.Close()

	p := loc.RequestPath()
	if p == "" {
		p = "/"
	}
	data, err := url.PathUnescape(loc.Query)
	if err != nil {
		data = loc.Query
	}
	escaped := (&url.URL{Path: p}).EscapedPath()
	req := fmt.Sprintf("%s %s %d\r\n%s", loc.ASCIIHost(), escaped, len(data), data)
	if err := sendRequest(conn, req); err != nil {
		return nil, nil, err
	}

	br := bufio.NewReader(conn)
	line, err := readLine(br, maxSpartanHeader)
	if err != nil {
		return nil, nil, err
	}
	code, meta, _ := strings.Cut(line, " ")

	switch code {
	case "2":
		body, err := readBody(br, -1, opts.MaxSize)
		if err != nil {
			return nil, nil, err
		}
		mediaType, params := parseMime(meta)
		if isText(mediaType) {
			if body, err = decodeCharset(body, params["charset"]); err != nil {
				return nil, nil, &ProtocolError{Scheme: "spartan", Status: code, Meta: err.Error()}
			}
		}
		return &Response{Locator: loc, Body: body, Mime: meta}, nil, nil
	case "3":
		target, err := loc.Resolve(meta)
		if err != nil {
			return nil, nil, &ProtocolError{Scheme: "spartan", Status: code, Meta: meta}
		}
		return nil, target, nil
	default:
		return nil, nil, &ProtocolError{Scheme: "spartan", Status: code, Meta: meta}
	}
}

// readLine reads a CRLF or LF terminated line of at most maxLen bytes.
func readLine(br *bufio.Reader, maxLen int) (string, error) {
	line := make([]byte, 0, 64)
	for len(line) < maxLen {
		b, err := br.ReadByte()
		if err != nil {
			if len(line) == 0 {
				return "", fmt.Errorf("%w: %w", ErrInvalidHeader, ClassifyNetError(err))
			}
			return "", fmt.Errorf("%w: unterminated header", ErrInvalidHeader)
		}
		line = append(line, b)
		if b == '\n' {
			return strings.TrimRight(string(line), "\r\n"), nil
		}
	}
	return "", fmt.Errorf("%w: header longer than %d bytes", ErrInvalidHeader, maxLen)
}
