package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "capsule"

	// DefaultTimeout bounds a single interactive network request.
	DefaultTimeout = 600 * time.Second

	// DefaultShortTimeout bounds a single request during unattended sync.
	// Sync visits many capsules, so a dead host must not stall it for long.
	DefaultShortTimeout = 5 * time.Second

	// DefaultMaxSizeDownload is the max-download threshold in bytes.
	DefaultMaxSizeDownload = 10 * 1024 * 1024

	// DefaultListSize is the retained length of history and archives.
	DefaultListSize = 200

	// DefaultSyncDepth is how many links deep a sync follows from list members.
	DefaultSyncDepth = 1

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultUserAgent identifies capsule in delegated HTTP requests.
	DefaultUserAgent = "capsule/1.0 (+https://github.com/nao1215/capsule)"
)

// TLS verification modes for Gemini connections.
const (
	// TLSModeTOFU pins server certificates on first use.
	TLSModeTOFU = "tofu"
	// TLSModeCA verifies server certificates against the system roots.
	TLSModeCA = "ca"
)

// Config holds all runtime options. It is created once at startup and
// passed to the session; nothing reads options from global state.
type Config struct {
	// Timeout is the per-request timeout for interactive navigation.
	Timeout time.Duration

	// ShortTimeout is the per-request timeout used while syncing.
	ShortTimeout time.Duration

	// TLSMode is TLSModeTOFU or TLSModeCA.
	TLSMode string

	// AutoFollowRedirects follows same-host, same-scheme redirects without asking.
	AutoFollowRedirects bool

	// MaxSizeDownload caps recursive sync fetches, in bytes. Zero disables the cap.
	MaxSizeDownload int64

	// HistorySize is the number of entries kept in the history list.
	HistorySize int

	// ArchivesSize is the number of entries kept in the archives list.
	ArchivesSize int

	// DisableHTTP refuses http and https resources entirely.
	DisableHTTP bool

	// UserAgent is sent with delegated HTTP requests.
	UserAgent string

	// ProxyAddress routes every TCP connection through a SOCKS5 proxy when set.
	ProxyAddress string

	// EmbeddedTor starts a private Tor daemon and routes connections through it.
	EmbeddedTor bool

	// TorStartupTimeout bounds the embedded Tor bootstrap.
	TorStartupTimeout time.Duration

	// SyncDepth is the recursion depth of sync.
	SyncDepth int

	// CacheValidity is the age after which a cached resource is refetched by
	// sync. Zero only fetches resources that have no cache at all.
	CacheValidity time.Duration

	// SyncIgnore holds URL patterns that sync never fetches.
	SyncIgnore []string

	// AssumeYes answers "yes" to every prompt raised during sync.
	// The default unattended answer is "no".
	AssumeYes bool

	// Verbose enables debug logging.
	Verbose bool

	// LogFile, when set, receives a rotated copy of the log output.
	LogFile string

	// CacheDir is the root of the offline cache.
	CacheDir string

	// DataDir holds the lists.
	DataDir string

	// ConfigDir holds the TOFU database and certificates.
	ConfigDir string

	// ConfigFilePath is the explicit configuration file given by the user.
	ConfigFilePath string
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Timeout:             DefaultTimeout,
		ShortTimeout:        DefaultShortTimeout,
		TLSMode:             TLSModeTOFU,
		AutoFollowRedirects: true,
		MaxSizeDownload:     DefaultMaxSizeDownload,
		HistorySize:         DefaultListSize,
		ArchivesSize:        DefaultListSize,
		UserAgent:           DefaultUserAgent,
		TorStartupTimeout:   DefaultTorStartupTimeout,
		SyncDepth:           DefaultSyncDepth,
		CacheDir:            XDGCacheDir(),
		DataDir:             XDGDataDir(),
		ConfigDir:           XDGConfigDir(),
	}
}

// XDGDataDir returns the XDG data directory for capsule.
// On Linux: ~/.local/share/capsule
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for capsule.
// On Linux: ~/.config/capsule
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for capsule.
// On Linux: ~/.cache/capsule
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// ListsDir returns the directory holding list files.
func (c *Config) ListsDir() string {
	return filepath.Join(c.DataDir, "lists")
}

// TOFUDatabasePath returns the path of the certificate ledger.
func (c *Config) TOFUDatabasePath() string {
	return filepath.Join(c.ConfigDir, "tofu.db")
}

// RequestTimeout returns the timeout matching the current mode.
func (c *Config) RequestTimeout(syncOnly bool) time.Duration {
	if syncOnly {
		return c.ShortTimeout
	}
	return c.Timeout
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.ShortTimeout <= 0 {
		return ErrInvalidShortTimeout
	}
	if c.TLSMode != TLSModeTOFU && c.TLSMode != TLSModeCA {
		return ErrInvalidTLSMode
	}
	if c.MaxSizeDownload < 0 {
		return ErrInvalidMaxSize
	}
	if c.SyncDepth < 0 {
		return ErrInvalidDepth
	}
	if c.HistorySize <= 0 || c.ArchivesSize <= 0 {
		return ErrInvalidListSize
	}
	if c.ProxyAddress != "" && c.EmbeddedTor {
		return ErrConflictingProxy
	}
	return nil
}
