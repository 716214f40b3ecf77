package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/nao1215/capsule/internal/cache"
	"github.com/nao1215/capsule/internal/clientcert"
	"github.com/nao1215/capsule/internal/config"
	"github.com/nao1215/capsule/internal/crawler"
	"github.com/nao1215/capsule/internal/database"
	"github.com/nao1215/capsule/internal/lists"
	"github.com/nao1215/capsule/internal/locator"
	"github.com/nao1215/capsule/internal/model"
	"github.com/nao1215/capsule/internal/pipeline"
	"github.com/nao1215/capsule/internal/prompt"
	"github.com/nao1215/capsule/internal/protocol"
	"github.com/nao1215/capsule/internal/redirect"
	"github.com/nao1215/capsule/internal/transport"
)

// Session owns everything a navigation needs.
type Session struct {
	cfg       *config.Config
	parser    *locator.Parser
	cache     *cache.Store
	lists     *lists.Store
	registry  *protocol.Registry
	redirects *redirect.Resolver
	trust     *database.TrustStore
	certs     *clientcert.Manager
	crawler   *crawler.Crawler
	prompter  prompt.Prompter
	logger    *slog.Logger
	now       func() time.Time

	db        *database.DB
	closers   []io.Closer
	overrides []protocol.Fetcher
}

// Option configures a Session.
type Option func(*Session)

// WithPrompter sets how questions are answered. Defaults to declining
// every question.
func WithPrompter(p prompt.Prompter) Option {
	return func(s *Session) {
		s.prompter = p
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// WithFetcher registers f in place of the built-in fetcher for its scheme.
func WithFetcher(f protocol.Fetcher) Option {
	return func(s *Session) {
		s.overrides = append(s.overrides, f)
	}
}

// Open validates cfg and builds a Session. Network setup happens here: a
// configured proxy is checked and an embedded Tor daemon is started.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		cfg:      cfg,
		prompter: prompt.NewFixed(false),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.parser = locator.NewParser(cfg.CacheDir, cfg.ListsDir())
	s.cache = cache.NewStore(cache.WithClock(s.now), cache.WithLogger(s.logger))
	s.lists = lists.NewStore(cfg.ListsDir(), lists.WithClock(s.now), lists.WithLogger(s.logger))

	dialer, closer, err := transport.Open(ctx, transport.Settings{
		ProxyAddress:      cfg.ProxyAddress,
		EmbeddedTor:       cfg.EmbeddedTor,
		TorStartupTimeout: cfg.TorStartupTimeout,
	}, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to set up network: %w", err)
	}
	s.closers = append(s.closers, closer)

	s.db, err = database.Open(cfg.TOFUDatabasePath(), database.DefaultOptions())
	if err != nil {
		_ = s.closeAll() //nolint:errcheck // reporting the open error
		return nil, err
	}
	s.closers = append(s.closers, s.db)

	s.trust = database.NewTrustStore(s.db, filepath.Join(cfg.ConfigDir, "cert_cache"), s.prompter,
		database.WithClock(s.now), database.WithLogger(s.logger))
	s.certs = clientcert.NewManager(cfg.ConfigDir, s.db, s.prompter,
		clientcert.WithClock(s.now), clientcert.WithLogger(s.logger))
	s.redirects = redirect.NewResolver(s.prompter,
		redirect.WithAutoFollow(cfg.AutoFollowRedirects), redirect.WithLogger(s.logger))

	s.registry = s.buildRegistry(dialer)
	s.crawler = crawler.New(s, s.lists, s.parser,
		crawler.WithLogger(s.logger), crawler.WithIgnorePatterns(cfg.SyncIgnore))
	return s, nil
}

func (s *Session) buildRegistry(d transport.Dialer) *protocol.Registry {
	geminiOpts := []protocol.GeminiOption{
		protocol.WithClientCertificates(s.certs),
		protocol.WithRedirects(s.redirects),
		protocol.WithPrompter(s.prompter),
		protocol.WithGeminiLogger(s.logger),
	}
	if s.cfg.TLSMode == config.TLSModeCA {
		geminiOpts = append(geminiOpts, protocol.WithCAVerification(nil))
	} else {
		geminiOpts = append(geminiOpts, protocol.WithTrust(s.trust))
	}

	registry := protocol.NewRegistry(
		protocol.NewGemini(d, geminiOpts...),
		protocol.NewGopher(d, protocol.WithGopherLogger(s.logger)),
		protocol.NewFinger(d),
		protocol.NewSpartan(d),
	)
	if !s.cfg.DisableHTTP {
		client := transport.NewHTTPClient(d, s.cfg.Timeout)
		for _, scheme := range []string{"http", "https"} {
			registry.Register(protocol.NewHTTP(scheme, client,
				protocol.WithUserAgent(s.cfg.UserAgent), protocol.WithHTTPLogger(s.logger)))
		}
	}
	for _, f := range s.overrides {
		registry.Register(f)
	}
	return registry
}

// Close deletes transient certificates, then releases the database and
// the network.
func (s *Session) Close(ctx context.Context) error {
	var errs []error
	if s.certs != nil {
		if id, ok := s.certs.Active(); ok {
			s.logger.Info("deactivating client certificate", "name", id.Name, "domains", s.certs.Domains())
		}
		errs = append(errs, s.certs.Close(ctx))
	}
	errs = append(errs, s.closeAll())
	return errors.Join(errs...)
}

func (s *Session) closeAll() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Lists returns the list store.
func (s *Session) Lists() *lists.Store { return s.lists }

// Certificates returns the client certificate manager.
func (s *Session) Certificates() *clientcert.Manager { return s.certs }

// Parse parses raw into a locator rooted at the session cache.
func (s *Session) Parse(raw string) (*locator.Locator, error) {
	return s.parser.Parse(raw)
}

// Fetch downloads loc unattended and caches it. limit caps the download
// at max_size_download.
func (s *Session) Fetch(ctx context.Context, loc *locator.Locator, limit bool) (*locator.Locator, error) {
	opts := protocol.FetchOptions{SyncOnly: true, Timeout: s.cfg.RequestTimeout(true)}
	if limit {
		opts.MaxSize = s.cfg.MaxSizeDownload
	}
	final, _, err := s.fetch(ctx, loc, opts)
	return final, err
}

// IsFresh reports whether loc is cached and younger than maxAge.
func (s *Session) IsFresh(loc *locator.Locator, maxAge time.Duration) bool {
	return s.cache.IsFresh(s.follow(loc), maxAge)
}

// Read returns the cached body of loc.
func (s *Session) Read(loc *locator.Locator) ([]byte, error) {
	return s.cache.Read(s.follow(loc))
}

// FetchLater queues loc for the next sync and returns the list it was
// added to. Resources no fetcher handles are refused.
func (s *Session) FetchLater(loc *locator.Locator) (string, error) {
	if !loc.Local && !s.registry.Supports(loc.Scheme) {
		return "", fmt.Errorf("%w: %s (supported: %s)", protocol.ErrUnsupportedScheme,
			loc.Scheme, strings.Join(s.registry.Schemes(), ", "))
	}
	return s.crawler.FetchLater(loc)
}

// Sync runs a full unattended sync. The report is returned even when the
// sync was interrupted.
func (s *Session) Sync(ctx context.Context, settings pipeline.Settings) (*model.SyncReport, error) {
	report := model.NewSyncReport(s.now(), settings.Depth, settings.CacheValidity)
	err := pipeline.NewSyncPipeline(s.crawler, settings, s.logger).Execute(ctx, report)
	report.Finish(s.now())
	return report, err
}

// follow applies a remembered permanent redirect to loc.
func (s *Session) follow(loc *locator.Locator) *locator.Locator {
	target, ok := s.redirects.Lookup(loc.URL())
	if !ok {
		return loc
	}
	next, err := s.parser.Parse(target)
	if err != nil {
		return loc
	}
	next.Mode = loc.Mode
	return next
}

// fetch retrieves loc and writes it through the cache. Failures are
// recorded in the cache unless they are the user's decision or cannot
// be cached at all.
func (s *Session) fetch(ctx context.Context, loc *locator.Locator, opts protocol.FetchOptions) (*locator.Locator, []byte, error) {
	loc = s.follow(loc)
	if loc.Scheme == "gemini" && !opts.SyncOnly {
		if err := s.certs.CheckDomain(ctx, loc.Host); err != nil {
			return nil, nil, err
		}
		if err := s.certs.Suggest(ctx, loc.Host); err != nil {
			s.logger.Warn("failed to reactivate client certificate", "host", loc.Host, "error", err)
		}
	}

	resp, err := s.registry.Fetch(ctx, loc, opts)
	if err != nil {
		if recordable(err) {
			if rerr := s.cache.RecordError(loc, err); rerr != nil {
				s.logger.Warn("failed to record fetch error", "url", loc.URL(), "error", rerr)
			}
		}
		return nil, nil, err
	}

	final := resp.Locator
	if final == nil {
		final = loc
	}
	if err := s.cache.Write(final, resp.Body, resp.Mime); err != nil {
		return nil, nil, err
	}
	return final, resp.Body, nil
}

func recordable(err error) bool {
	switch {
	case errors.Is(err, protocol.ErrUserAbort),
		errors.Is(err, protocol.ErrUnsupportedScheme),
		errors.Is(err, protocol.ErrPathTooLong),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}
