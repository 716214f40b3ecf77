package redirect

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/nao1215/capsule/internal/locator"
	"github.com/nao1215/capsule/internal/prompt"
)

// PermanentStatus is the Gemini status of a permanent redirect.
const PermanentStatus = 31

// Resolver applies the redirect policy.
type Resolver struct {
	prompter   prompt.Prompter
	autoFollow bool
	logger     *slog.Logger

	mu        sync.Mutex
	permanent map[string]string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithAutoFollow sets whether same-host redirects are followed silently.
func WithAutoFollow(follow bool) Option {
	return func(r *Resolver) {
		r.autoFollow = follow
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver returns a resolver asking p when a redirect needs approval.
// Auto-follow is on by default.
func NewResolver(p prompt.Prompter, opts ...Option) *Resolver {
	r := &Resolver{
		prompter:   p,
		autoFollow: true,
		logger:     slog.Default(),
		permanent:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lookup returns the remembered permanent target of src.
func (r *Resolver) Lookup(src string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dst, ok := r.permanent[src]
	return dst, ok
}

// Begin starts a redirect chain for one navigation.
func (r *Resolver) Begin() *Chain {
	return &Chain{resolver: r, visited: make(map[string]bool)}
}

// Chain tracks the redirects followed during one navigation.
type Chain struct {
	resolver *Resolver
	visited  map[string]bool
	hops     int
}

// Hops returns the number of redirects followed so far.
func (c *Chain) Hops() int {
	return c.hops
}

// Reset clears the visited set. It is called once a non-redirect response
// is reached.
func (c *Chain) Reset() {
	c.visited = make(map[string]bool)
	c.hops = 0
}

// Next validates the redirect from -> to with the given Gemini status and
// records it on success.
func (c *Chain) Next(from, to *locator.Locator, status int) error {
	switch {
	case to.URL() == from.URL():
		return fmt.Errorf("%w: %s", ErrSelfRedirect, to.URL())
	case c.visited[to.URL()]:
		return fmt.Errorf("%w: %s", ErrLoop, to.URL())
	case c.hops >= MaxRedirects:
		return ErrTooManyRedirects
	}

	r := c.resolver
	follow := true
	var err error
	switch {
	case !r.prompter.Interactive():
		follow, err = r.prompter.Confirm("Follow redirect to "+to.URL()+"?", false)
	case to.Host != from.Host:
		follow, err = r.prompter.Confirm("Follow cross-domain redirect to "+to.URL()+"?", false)
	case to.Scheme != from.Scheme:
		follow, err = r.prompter.Confirm("Follow cross-protocol redirect to "+to.URL()+"?", false)
	case !r.autoFollow:
		follow, err = r.prompter.Confirm("Follow redirect to "+to.URL()+"?", false)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeclined, err)
	}
	if !follow {
		return fmt.Errorf("%w: %s", ErrDeclined, to.URL())
	}

	c.visited[from.URL()] = true
	c.hops++
	r.logger.Debug("following redirect", "from", from.URL(), "to", to.URL(), "hop", c.hops)

	if status == PermanentStatus {
		r.mu.Lock()
		r.permanent[from.URL()] = to.URL()
		r.mu.Unlock()
	}
	return nil
}
