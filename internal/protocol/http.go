package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nao1215/capsule/internal/locator"
)

// HTTP fetches http:// and https:// resources with net/http.
type HTTP struct {
	scheme    string
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// HTTPOption configures an HTTP fetcher.
type HTTPOption func(*HTTP)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(h *HTTP) {
		h.userAgent = ua
	}
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(logger *slog.Logger) HTTPOption {
	return func(h *HTTP) {
		h.logger = logger
	}
}

// NewHTTP returns a fetcher for scheme ("http" or "https") using client.
// The client should dial through the configured transport, see
// transport.NewHTTPClient.
func NewHTTP(scheme string, client *http.Client, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		scheme: scheme,
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Scheme implements Fetcher.
func (h *HTTP) Scheme() string { return h.scheme }

// DefaultPort implements Fetcher.
func (h *HTTP) DefaultPort() int { return locator.StandardPorts[h.scheme] }

// Fetch implements Fetcher. Redirects are followed by the client; the
// response carries the final locator.
func (h *HTTP) Fetch(ctx context.Context, loc *locator.Locator, opts FetchOptions) (*Response, error) {
	ctx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc.URL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}

	h.logger.Debug("http request", "url", loc.URL())
	resp, err := h.client.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, ClassifyNetError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &ProtocolError{
			Scheme: h.scheme,
			Status: strconv.Itoa(resp.StatusCode),
			Meta:   http.StatusText(resp.StatusCode),
		}
	}

	body, err := readBody(resp.Body, resp.ContentLength, opts.MaxSize)
	if err != nil {
		return nil, err
	}

	mime := resp.Header.Get("Content-Type")
	mediaType, params := parseMime(mime)
	if isText(mediaType) {
		if decoded, err := decodeCharset(body, params["charset"]); err == nil {
			body = decoded
		}
	}

	final := loc
	if resp.Request != nil && resp.Request.URL.String() != loc.URL() {
		if next, err := loc.Resolve(resp.Request.URL.String()); err == nil {
			final = next
		}
	}
	return &Response{Locator: final, Body: body, Mime: mime}, nil
}
