package lists

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// System list names.
const (
	History    = "history"
	ToFetch    = "to_fetch"
	Archives   = "archives"
	Tour       = "tour"
	Bookmarks  = "bookmarks"
	Subscribed = "subscribed"
)

var systemLists = []string{History, ToFetch, Archives, Tour}

var reservedNames = []string{"create", "edit", "delete", "help"}

// defaultTitles are used when a list is created implicitly.
var defaultTitles = map[string]string{
	Subscribed: "Subscriptions #subscribed (new links in those pages will be added to tour)",
	ToFetch:    "Links requested and to be fetched during the next --sync",
}

// IsSystem reports whether name is a system list.
func IsSystem(name string) bool {
	return slices.Contains(systemLists, name)
}

// Status is the sync behavior tagged on a list header.
type Status int

const (
	// StatusNormal lists are refreshed during sync.
	StatusNormal Status = iota
	// StatusSubscribed lists add new links found in their pages to tour.
	StatusSubscribed
	// StatusFrozen lists are only fetched when nothing is cached.
	StatusFrozen
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSubscribed:
		return "subscribed"
	case StatusFrozen:
		return "frozen"
	default:
		return "normal"
	}
}

func (s Status) tag() string {
	switch s {
	case StatusSubscribed:
		return "#subscribed"
	case StatusFrozen:
		return "#frozen"
	default:
		return ""
	}
}

// Store manages the list files of one directory.
type Store struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for action stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore returns a Store keeping its lists in dir.
func NewStore(dir string, opts ...Option) *Store {
	s := &Store{
		dir:    dir,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the list directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file backing name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+".gmi")
}

// Exists reports whether name exists.
func (s *Store) Exists(name string) bool {
	fi, err := os.Stat(s.Path(name))
	return err == nil && fi.Mode().IsRegular()
}

// Names returns all list names in lexical order.
func (s *Store) Names() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read list directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".gmi"); ok && !e.IsDir() {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// Create creates an empty list. title defaults to name.
func (s *Store) Create(name, title string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if s.Exists(name) {
		return fmt.Errorf("%w: %s", ErrListExists, name)
	}
	if title == "" {
		title = name
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("failed to create list directory: %w", err)
	}
	if err := os.WriteFile(s.Path(name), []byte("# "+title+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to create list %s: %w", name, err)
	}
	s.logger.Debug("list created", "list", name)
	return nil
}

// Delete removes a list. System lists are refused.
func (s *Store) Delete(name string) error {
	if IsSystem(name) {
		return fmt.Errorf("%w: %s", ErrSystemList, name)
	}
	if !s.Exists(name) {
		return fmt.Errorf("%w: %s", ErrListNotFound, name)
	}
	if err := os.Remove(s.Path(name)); err != nil {
		return fmt.Errorf("failed to delete list %s: %w", name, err)
	}
	return nil
}

// ensure returns the lines of name. System lists, subscribed and
// bookmarks are created when missing.
func (s *Store) ensure(name string) ([]string, error) {
	lines, err := s.read(name)
	if !errors.Is(err, ErrListNotFound) {
		return lines, err
	}
	if !IsSystem(name) && name != Subscribed && name != Bookmarks {
		return nil, err
	}
	if err := s.Create(name, defaultTitles[name]); err != nil {
		return nil, err
	}
	return s.read(name)
}

func (s *Store) read(name string) ([]string, error) {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrListNotFound, name)
		}
		return nil, fmt.Errorf("failed to read list %s: %w", name, err)
	}
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}

func (s *Store) write(name string, lines []string) error {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	tmp := s.Path(name) + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write list %s: %w", name, err)
	}
	return os.Rename(tmp, s.Path(name))
}

// Entries returns the links of name in file order.
func (s *Store) Entries(name string) ([]Entry, error) {
	lines, err := s.read(name)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, l := range lines {
		if e, ok := parseEntry(l); ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// URLs returns the URLs of name, display modes included.
func (s *Store) URLs(name string) ([]string, error) {
	entries, err := s.Entries(name)
	if err != nil {
		return nil, err
	}
	urls := make([]string, len(entries))
	for i, e := range entries {
		urls[i] = e.URL
	}
	return urls, nil
}

// HasURL reports whether url is in name. A missing list contains nothing.
func (s *Store) HasURL(name, url string) (bool, error) {
	lines, err := s.read(name)
	if errors.Is(err, ErrListNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, l := range lines {
		if sameURL(l, url) {
			return true, nil
		}
	}
	return false, nil
}

// Add appends e to name unless its URL is already present. It reports
// whether the entry was added.
func (s *Store) Add(name string, e Entry) (bool, error) {
	lines, err := s.ensure(name)
	if err != nil {
		return false, err
	}
	for _, l := range lines {
		if sameURL(l, e.URL) {
			return false, nil
		}
	}
	return true, s.write(name, append(lines, e.Line()))
}

// RemoveURL deletes every line referring to url and reports whether any
// was found.
func (s *Store) RemoveURL(name, url string) (bool, error) {
	lines, err := s.read(name)
	if errors.Is(err, ErrListNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	kept := make([]string, 0, len(lines))
	removed := false
	for _, l := range lines {
		if sameURL(l, url) {
			removed = true
			continue
		}
		kept = append(kept, l)
	}
	if !removed {
		return false, nil
	}
	return true, s.write(name, kept)
}

// AddTop inserts e at the top of name with an action stamp. The first
// truncate entries below it are dropped, then at most limit are kept
// (0 means unlimited).
func (s *Store) AddTop(name string, e Entry, limit, truncate int) error {
	lines, err := s.ensure(name)
	if err != nil {
		return err
	}

	var action string
	switch name {
	case Archives:
		action = "archived"
	case History:
		action = "visited"
	default:
		action = "added to " + name
	}
	top := fmt.Sprintf("%s, %s on %s", e.Line(), action, s.now().Format(time.ANSIC))

	header := "# " + name
	out := []string{header, top}
	kept := 0
	for i, l := range lines {
		if strings.HasPrefix(l, "#") {
			if i == 0 {
				out[0] = l
			}
			continue
		}
		if strings.TrimSpace(l) == "" {
			continue
		}
		if truncate > 0 {
			truncate--
			continue
		}
		if limit > 0 && kept >= limit {
			break
		}
		out = append(out, l)
		kept++
	}
	return s.write(name, out)
}

// Status returns the status tag of name.
func (s *Store) Status(name string) (Status, error) {
	lines, err := s.read(name)
	if err != nil {
		return StatusNormal, err
	}
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "#") {
		return StatusNormal, nil
	}
	switch {
	case strings.Contains(lines[0], "#subscribed"):
		return StatusSubscribed, nil
	case strings.Contains(lines[0], "#frozen"):
		return StatusFrozen, nil
	}
	return StatusNormal, nil
}

// SetStatus rewrites the header of name with status.
func (s *Store) SetStatus(name string, status Status) error {
	if IsSystem(name) {
		return fmt.Errorf("%w: %s", ErrSystemList, name)
	}
	lines, err := s.read(name)
	if err != nil {
		return err
	}

	header := "# " + name
	if len(lines) > 0 && strings.HasPrefix(lines[0], "#") {
		header, lines = lines[0], lines[1:]
	}
	header = strings.NewReplacer("#subscribed", "", "#frozen", "").Replace(header)
	header = strings.TrimRight(header, " ")
	if tag := status.tag(); tag != "" {
		header += " " + tag
	}
	s.logger.Debug("list status changed", "list", name, "status", status.String())
	return s.write(name, append([]string{header}, lines...))
}

// Move adds e to the list to and removes its URL from every other list
// except history and archives. It returns the lists the URL left.
// Moving to archives stamps the entry instead.
func (s *Store) Move(to string, e Entry, archivesLimit int) ([]string, error) {
	if to != Archives && !s.Exists(to) {
		return nil, fmt.Errorf("%w: %s", ErrListNotFound, to)
	}
	names, err := s.Names()
	if err != nil {
		return nil, err
	}
	var removedFrom []string
	for _, name := range names {
		if name == to || name == History || name == Archives {
			continue
		}
		removed, err := s.RemoveURL(name, e.URL)
		if err != nil {
			return removedFrom, err
		}
		if removed {
			removedFrom = append(removedFrom, name)
		}
	}
	if to == Archives {
		return removedFrom, s.AddTop(Archives, e, archivesLimit, 0)
	}
	_, err = s.Add(to, e)
	return removedFrom, err
}

// Show writes the raw list file to w.
func (s *Store) Show(w io.Writer, name string) error {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrListNotFound, name)
		}
		return err
	}
	_, err = w.Write(data)
	return err
}

func validateName(name string) error {
	if slices.Contains(reservedNames, name) {
		return fmt.Errorf("%w: %s", ErrReservedName, name)
	}
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
