package cache

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nao1215/capsule/internal/locator"
)

// Permissions of cache files and directories.
const (
	dirPerm  = 0o750
	filePerm = 0o600
)

// Store reads and writes cached bodies.
type Store struct {
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger used for cache maintenance messages.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a Store.
func NewStore(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Write stores body as the cache of loc and records mime on the locator.
// Local resources are left untouched. A file standing where a parent
// directory is needed is removed first.
func (s *Store) Write(loc *locator.Locator, body []byte, mime string) error {
	if mime != "" {
		base, _, _ := strings.Cut(mime, ";")
		loc.SetMime(strings.TrimSpace(base))
	}
	if loc.Local {
		return nil
	}
	path := loc.CachePath()
	if len(path) > locator.MaxPathLength {
		return fmt.Errorf("%w: %s", ErrPathTooLong, loc.URL())
	}
	if err := s.prepareDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := os.WriteFile(path, body, filePerm); err != nil {
		return fmt.Errorf("failed to write cache for %s: %w", loc.URL(), err)
	}
	return nil
}

// prepareDir creates dir, deleting a regular file that occupies the
// closest existing ancestor. This happens when "a/b" was cached as a page
// before "a/b/c" was visited.
func (s *Store) prepareDir(dir string) error {
	ancestor := dir
	for {
		if _, err := os.Stat(ancestor); err == nil {
			break
		}
		parent := filepath.Dir(ancestor)
		if parent == ancestor {
			break
		}
		ancestor = parent
	}
	if fi, err := os.Stat(ancestor); err == nil && fi.Mode().IsRegular() {
		s.logger.Debug("replacing cached file with directory", "path", ancestor)
		if err := os.Remove(ancestor); err != nil {
			return fmt.Errorf("failed to remove %s: %w", ancestor, err)
		}
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	return nil
}

// IsFresh reports whether loc has a usable cache no older than maxAge.
// A zero maxAge accepts any existing cache. Local resources are fresh
// when they exist.
func (s *Store) IsFresh(loc *locator.Locator, maxAge time.Duration) bool {
	path := loc.CachePath()
	if loc.Local {
		_, err := os.Stat(path)
		return err == nil
	}
	if path == "" || len(path) > locator.MaxPathLength {
		return false
	}
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return false
	}
	if maxAge > 0 {
		return s.now().Sub(fi.ModTime()) < maxAge
	}
	return true
}

// LastModified returns the modification time of the cache, or the zero
// time when nothing is cached.
func (s *Store) LastModified(loc *locator.Locator) time.Time {
	fi, err := os.Stat(loc.CachePath())
	if err != nil {
		return time.Time{}
	}
	return fi.ModTime()
}

// Read returns the cached body of loc.
func (s *Store) Read(loc *locator.Locator) ([]byte, error) {
	if !s.IsFresh(loc, 0) {
		return nil, fmt.Errorf("%w: %s", ErrNotCached, loc.URL())
	}
	path := loc.CachePath()
	if len(path) > locator.MaxPathLength {
		return nil, fmt.Errorf("%w: %s", ErrPathTooLong, loc.URL())
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is derived from the cache root
	if err != nil {
		return nil, fmt.Errorf("failed to read cache for %s: %w", loc.URL(), err)
	}
	return data, nil
}

// RecordError keeps an existing cache and refreshes its timestamp, or
// writes a sentinel document describing fetchErr when there is none.
func (s *Store) RecordError(loc *locator.Locator, fetchErr error) error {
	if loc.Local {
		return nil
	}
	path := loc.CachePath()
	now := s.now()
	if s.IsFresh(loc, 0) {
		return os.Chtimes(path, now, now)
	}
	if len(path) > locator.MaxPathLength {
		return fmt.Errorf("%w: %s", ErrPathTooLong, loc.URL())
	}
	if err := s.prepareDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := os.WriteFile(path, sentinel(now, loc.URL(), fetchErr), filePerm); err != nil {
		return fmt.Errorf("failed to write error document for %s: %w", loc.URL(), err)
	}
	if err := os.Chtimes(path, now, now); err != nil {
		return err
	}
	return nil
}

// sentinel renders the document stored in place of a resource that could
// not be fetched.
func sentinel(now time.Time, url string, fetchErr error) []byte {
	var b bytes.Buffer
	fmt.Fprintln(&b, now.Format(time.DateTime))
	fmt.Fprintf(&b, "ERROR while caching %s\n\n", url)
	fmt.Fprint(&b, "*****\n\n")
	fmt.Fprintf(&b, "%T = %v", fetchErr, fetchErr)
	fmt.Fprint(&b, "\n*****\n\n")
	fmt.Fprintln(&b, "If you believe this error was temporary, reload the page.")
	fmt.Fprintln(&b, "The resource will be tentatively fetched during next sync.")
	return b.Bytes()
}
