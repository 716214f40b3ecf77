package protocol

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nao1215/capsule/internal/locator"
	"github.com/nao1215/capsule/internal/redirect"
)

// FetchOptions tunes a single fetch.
type FetchOptions struct {
	// SyncOnly marks an unattended fetch: questions are never asked.
	SyncOnly bool
	// Timeout bounds the whole request. Zero means no timeout.
	Timeout time.Duration
	// MaxSize caps the body in bytes. Zero disables the cap.
	MaxSize int64
	// Redirects continues a redirect chain started by another fetcher.
	// Nil starts a new chain.
	Redirects *redirect.Chain
}

// Response is a fetched resource.
type Response struct {
	// Locator is the resource that was finally fetched. It differs from the
	// requested one after a redirect or an input prompt.
	Locator *locator.Locator
	// Body is the response body, decoded to UTF-8 for text types.
	Body []byte
	// Mime is the media type declared by the server, with parameters.
	Mime string
}

// Fetcher retrieves resources for one scheme.
type Fetcher interface {
	// Scheme returns the URL scheme handled by the fetcher.
	Scheme() string
	// DefaultPort returns the scheme's standard port.
	DefaultPort() int
	// Fetch retrieves loc.
	Fetch(ctx context.Context, loc *locator.Locator, opts FetchOptions) (*Response, error)
}

// Registry maps schemes to fetchers.
type Registry struct {
	fetchers map[string]Fetcher
}

// NewRegistry returns a registry holding fetchers.
func NewRegistry(fetchers ...Fetcher) *Registry {
	r := &Registry{fetchers: make(map[string]Fetcher, len(fetchers))}
	for _, f := range fetchers {
		r.Register(f)
	}
	return r
}

// Register adds f, replacing any fetcher for the same scheme.
func (r *Registry) Register(f Fetcher) {
	r.fetchers[f.Scheme()] = f
}

// Lookup returns the fetcher for scheme.
func (r *Registry) Lookup(scheme string) (Fetcher, bool) {
	f, ok := r.fetchers[scheme]
	return f, ok
}

// Supports reports whether scheme can be fetched.
func (r *Registry) Supports(scheme string) bool {
	_, ok := r.fetchers[scheme]
	return ok
}

// Schemes returns the registered schemes in alphabetical order.
func (r *Registry) Schemes() []string {
	out := make([]string, 0, len(r.fetchers))
	for s := range r.fetchers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Fetch retrieves loc with the fetcher registered for its scheme. A
// redirect to another scheme is handed to that scheme's fetcher, sharing
// the redirect chain so loops across schemes are still caught.
func (r *Registry) Fetch(ctx context.Context, loc *locator.Locator, opts FetchOptions) (*Response, error) {
	for {
		f, ok := r.fetchers[loc.Scheme]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, loc.Scheme)
		}
		resp, err := f.Fetch(ctx, loc, opts)
		var redir *RedirectError
		if !errors.As(err, &redir) {
			return resp, err
		}
		loc = redir.Target
		opts.Redirects = redir.Chain
	}
}

// withTimeout derives a context bounded by timeout, if any.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
