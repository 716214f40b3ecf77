package protocol

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/nao1215/capsule/internal/locator"
	"github.com/nao1215/capsule/internal/prompt"
	"github.com/nao1215/capsule/internal/redirect"
	"github.com/nao1215/capsule/internal/transport"
)

// Gemini header limits: a two digit status, a space, at most 1024 bytes
// of meta and CRLF.
const (
	maxGeminiHeader = 1027
	maxGeminiMeta   = 1024
)

// DefaultGeminiMime is assumed when a success response has no meta.
const DefaultGeminiMime = "text/gemini; charset=utf-8"

// TrustValidator decides whether a server certificate is trusted.
type TrustValidator interface {
	Validate(ctx context.Context, address, hostname string, der []byte) error
}

// ClientCertificates supplies the client certificate presented to servers.
type ClientCertificates interface {
	// Certificate returns the active certificate, if any.
	Certificate() (*tls.Certificate, bool)
	// RecordHandshake remembers that the active certificate was shown to host.
	RecordHandshake(ctx context.Context, host string) error
	// HandleRequest reacts to a 6x status, typically by activating a
	// certificate. An error aborts the request.
	HandleRequest(ctx context.Context, host, status, meta string) error
}

// Gemini fetches gemini:// resources.
type Gemini struct {
	dialer    transport.Dialer
	trust     TrustValidator
	certs     ClientCertificates
	redirects *redirect.Resolver
	prompter  prompt.Prompter
	rootCAs   *x509.CertPool
	verifyCA  bool
	logger    *slog.Logger
}

// GeminiOption configures a Gemini fetcher.
type GeminiOption func(*Gemini)

// WithTrust sets the validator used in TOFU mode.
func WithTrust(v TrustValidator) GeminiOption {
	return func(g *Gemini) {
		g.trust = v
	}
}

// WithClientCertificates sets the client certificate manager.
func WithClientCertificates(c ClientCertificates) GeminiOption {
	return func(g *Gemini) {
		g.certs = c
	}
}

// WithRedirects sets the redirect resolver.
func WithRedirects(r *redirect.Resolver) GeminiOption {
	return func(g *Gemini) {
		g.redirects = r
	}
}

// WithPrompter sets the prompter used for input requests.
func WithPrompter(p prompt.Prompter) GeminiOption {
	return func(g *Gemini) {
		g.prompter = p
	}
}

// WithCAVerification verifies certificates against certificate authorities
// instead of the trust store. A nil pool means the system roots.
func WithCAVerification(pool *x509.CertPool) GeminiOption {
	return func(g *Gemini) {
		g.verifyCA = true
		g.rootCAs = pool
	}
}

// WithGeminiLogger sets the logger.
func WithGeminiLogger(logger *slog.Logger) GeminiOption {
	return func(g *Gemini) {
		g.logger = logger
	}
}

// NewGemini returns a Gemini fetcher dialing through d. Without WithTrust
// every certificate is accepted.
func NewGemini(d transport.Dialer, opts ...GeminiOption) *Gemini {
	g := &Gemini{
		dialer:   d,
		prompter: prompt.NewFixed(false),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.redirects == nil {
		g.redirects = redirect.NewResolver(g.prompter, redirect.WithLogger(g.logger))
	}
	return g
}

// Scheme implements Fetcher.
func (g *Gemini) Scheme() string { return "gemini" }

// DefaultPort implements Fetcher.
func (g *Gemini) DefaultPort() int { return locator.StandardPorts["gemini"] }

// reply is a raw Gemini response.
type reply struct {
	status string
	meta   string
	body   []byte
}

// Fetch implements Fetcher. Input requests, redirects and certificate
// requests are resolved here, so the returned response is always a
// success. An accepted redirect to another scheme is returned as a
// *RedirectError for the Registry to follow.
func (g *Gemini) Fetch(ctx context.Context, loc *locator.Locator, opts FetchOptions) (*Response, error) {
	chain := opts.Redirects
	if chain == nil {
		chain = g.redirects.Begin()
	}
	certRetried := false
	masked := false

	for {
		rep, err := g.roundTrip(ctx, loc, opts, masked)
		if err != nil {
			return nil, err
		}
		if rep.status[0] != '2' && rep.status[0] != '3' {
			chain.Reset()
		}

		switch rep.status[0] {
		case '1':
			if opts.SyncOnly || !g.prompter.Interactive() {
				return nil, fmt.Errorf("%w: %s asks for input", ErrUserAbort, loc.URL())
			}
			masked = rep.status == "11"
			input, err := g.prompter.Input(rep.meta, masked)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrUserAbort, err)
			}
			next, err := loc.Resolve(loc.WithQuery(input))
			if err != nil {
				return nil, err
			}
			loc = next

		case '2':
			g.logger.Debug("gemini response", "url", loc.URL(), "redirects", chain.Hops())
			return g.success(loc, rep)

		case '3':
			target, err := loc.Resolve(rep.meta)
			if err != nil {
				return nil, &ProtocolError{Scheme: "gemini", Status: rep.status, Meta: rep.meta}
			}
			code, _ := strconv.Atoi(rep.status) //nolint:errcheck // validated by readHeader
			if err := chain.Next(loc, target, code); err != nil {
				if errors.Is(err, redirect.ErrDeclined) {
					return nil, fmt.Errorf("%w: %w", ErrUserAbort, err)
				}
				return nil, err
			}
			if target.Scheme != g.Scheme() {
				return nil, &RedirectError{From: loc, Target: target, Chain: chain}
			}
			loc = target

		case '4', '5':
			return nil, &ProtocolError{Scheme: "gemini", Status: rep.status, Meta: rep.meta}

		case '6':
			if g.certs == nil || certRetried {
				return nil, &ProtocolError{Scheme: "gemini", Status: rep.status, Meta: rep.meta}
			}
			if opts.SyncOnly {
				return nil, fmt.Errorf("%w: %s requires a client certificate", ErrUserAbort, loc.URL())
			}
			if err := g.certs.HandleRequest(ctx, loc.Host, rep.status, rep.meta); err != nil {
				return nil, err
			}
			certRetried = true

		default:
			return nil, &ProtocolError{Scheme: "gemini", Status: rep.status, Meta: "undefined status code"}
		}
	}
}

// success decodes a 2x reply.
func (g *Gemini) success(loc *locator.Locator, rep *reply) (*Response, error) {
	meta := rep.meta
	if meta == "" {
		meta = DefaultGeminiMime
	}
	mediaType, params := parseMime(meta)
	body := rep.body
	if isText(mediaType) {
		var err error
		if body, err = decodeCharset(body, params["charset"]); err != nil {
			return nil, &ProtocolError{Scheme: "gemini", Status: rep.status, Meta: err.Error()}
		}
	} else if cs := params["charset"]; cs != "" {
		if _, err := decodeCharset(nil, cs); err != nil {
			return nil, &ProtocolError{Scheme: "gemini", Status: rep.status, Meta: err.Error()}
		}
	}
	return &Response{Locator: loc, Body: body, Mime: meta}, nil
}

// roundTrip sends one request and reads the reply. The body is read only
// for success statuses.
func (g *Gemini) roundTrip(ctx context.Context, loc *locator.Locator, opts FetchOptions, masked bool) (*reply, error) {
	ctx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	conn, err := g.connect(ctx, loc)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	g.logger.Debug("gemini request", "url", loc.URL(), "masked", masked)
	if err := sendRequest(conn, loc.URL()+"\r\n"); err != nil {
		return nil, err
	}

	br := bufio.NewReader(conn)
	status, meta, err := readGeminiHeader(br)
	if err != nil {
		return nil, err
	}
	rep := &reply{status: status, meta: meta}
	if status[0] == '2' {
		if rep.body, err = readBody(br, -1, opts.MaxSize); err != nil {
			return nil, err
		}
	}
	return rep, nil
}

// readGeminiHeader reads and validates the response header line.
func readGeminiHeader(br *bufio.Reader) (status, meta string, err error) {
	line, err := readLine(br, maxGeminiHeader)
	if err != nil {
		return "", "", err
	}
	status, meta, _ = strings.Cut(strings.TrimSpace(line), " ")
	meta = strings.TrimSpace(meta)
	if len(status) != 2 || status[0] < '0' || status[0] > '9' || status[1] < '0' || status[1] > '9' {
		return "", "", fmt.Errorf("%w: bad status %q", ErrInvalidHeader, status)
	}
	if len(meta) > maxGeminiMeta {
		return "", "", fmt.Errorf("%w: meta longer than %d bytes", ErrInvalidHeader, maxGeminiMeta)
	}
	return status, meta, nil
}

// connect opens a TLS connection to loc, trying IPv6 addresses first.
func (g *Gemini) connect(ctx context.Context, loc *locator.Locator) (*tls.Conn, error) {
	host := loc.ASCIIHost()
	port := strconv.Itoa(loc.Port)

	addresses := []string{host}
	if r, ok := g.dialer.(transport.Resolver); ok && net.ParseIP(host) == nil {
		resolved, err := r.LookupHost(ctx, host)
		if err != nil {
			return nil, ClassifyNetError(err)
		}
		addresses = sortIPv6First(resolved)
	}

	var lastErr error
	for _, address := range addresses {
		raw, err := g.dialer.DialContext(ctx, "tcp", net.JoinHostPort(address, port))
		if err != nil {
			lastErr = err
			g.logger.Debug("gemini connect failed", "address", address, "error", err)
			continue
		}
		if deadline, ok := ctx.Deadline(); ok {
			_ = raw.SetDeadline(deadline) //nolint:errcheck // the handshake reports a dead connection
		}

		conn := tls.Client(raw, g.tlsConfig(ctx, host, address))
		if err := conn.HandshakeContext(ctx); err != nil {
			_ = raw.Close() //nolint:errcheck // already failing
			if errors.Is(err, ErrTrust) {
				return nil, err
			}
			var certErr *tls.CertificateVerificationError
			if errors.As(err, &certErr) {
				return nil, fmt.Errorf("%w: %w", ErrTrust, err)
			}
			if err = ClassifyNetError(err); KindOf(err) == KindOther {
				err = fmt.Errorf("%w: TLS handshake with %s: %w", ErrConnectionReset, address, err)
			}
			return nil, err
		}
		g.logger.Debug("gemini connection established", "address", address,
			"tls", tls.VersionName(conn.ConnectionState().Version))

		if g.certs != nil {
			if _, active := g.certs.Certificate(); active {
				if err := g.certs.RecordHandshake(ctx, host); err != nil {
					g.logger.Warn("failed to record client certificate use", "host", host, "error", err)
				}
			}
		}
		return conn, nil
	}
	return nil, ClassifyNetError(lastErr)
}

// tlsConfig builds the client configuration for one connection.
func (g *Gemini) tlsConfig(ctx context.Context, host, address string) *tls.Config {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: host,
	}
	if g.verifyCA {
		cfg.RootCAs = g.rootCAs
	} else {
		cfg.InsecureSkipVerify = true //nolint:gosec // verified by VerifyConnection against the trust store
		cfg.VerifyConnection = func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return fmt.Errorf("%w: no certificate presented", ErrTrust)
			}
			if g.trust == nil {
				return nil
			}
			if err := g.trust.Validate(ctx, address, host, cs.PeerCertificates[0].Raw); err != nil {
				return fmt.Errorf("%w: %w", ErrTrust, err)
			}
			return nil
		}
	}
	if g.certs != nil {
		if cert, ok := g.certs.Certificate(); ok {
			cfg.Certificates = []tls.Certificate{*cert}
		}
	}
	return cfg
}

// sortIPv6First orders addresses with IPv6 ones first, keeping the
// resolver order otherwise.
func sortIPv6First(addresses []string) []string {
	out := append([]string(nil), addresses...)
	sort.SliceStable(out, func(i, j int) bool {
		return isIPv6(out[i]) && !isIPv6(out[j])
	})
	return out
}

func isIPv6(address string) bool {
	ip := net.ParseIP(address)
	return ip != nil && ip.To4() == nil
}
