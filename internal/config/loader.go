package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the configuration file name searched in the current
// directory.
const DefaultConfigFile = "capsule.yaml"

// File represents the structure of the YAML configuration file.
// Zero values mean "not set" and keep the default.
type File struct {
	// Timeout is the interactive request timeout in seconds.
	Timeout int `yaml:"timeout,omitempty"`
	// ShortTimeout is the sync request timeout in seconds.
	ShortTimeout int `yaml:"short_timeout,omitempty"`
	// TLSMode is "tofu" or "ca".
	TLSMode string `yaml:"tls_mode,omitempty"`
	// AutoFollowRedirects is a pointer so that an explicit false is honored.
	AutoFollowRedirects *bool `yaml:"auto_follow_redirects,omitempty"`
	// MaxSizeDownload is in bytes.
	MaxSizeDownload int64 `yaml:"max_size_download,omitempty"`
	HistorySize     int   `yaml:"history_size,omitempty"`
	ArchivesSize    int   `yaml:"archives_size,omitempty"`
	DisableHTTP     bool  `yaml:"disable_http,omitempty"`
	UserAgent       string `yaml:"user_agent,omitempty"`
	Proxy           string `yaml:"proxy,omitempty"`
	EmbeddedTor     bool   `yaml:"embedded_tor,omitempty"`
	LogFile         string `yaml:"log_file,omitempty"`

	// Directories override the XDG locations.
	Directories Directories `yaml:"directories,omitempty"`

	// Sync holds defaults for the sync command.
	Sync SyncFile `yaml:"sync,omitempty"`
}

// Directories overrides the XDG directory locations.
type Directories struct {
	Cache  string `yaml:"cache,omitempty"`
	Data   string `yaml:"data,omitempty"`
	Config string `yaml:"config,omitempty"`
}

// SyncFile holds sync defaults.
type SyncFile struct {
	// Depth is a pointer so that an explicit 0 is honored.
	Depth *int `yaml:"depth,omitempty"`
	// CacheValidity is in seconds.
	CacheValidity int  `yaml:"cache_validity,omitempty"`
	AssumeYes     bool `yaml:"assume_yes,omitempty"`
	// Ignore lists URL patterns in path.Match syntax.
	Ignore []string `yaml:"ignore,omitempty"`
}

// LoadConfigFile loads a YAML configuration file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}
	return &cf, nil
}

// Apply copies every value set in the file onto cfg.
func (cf *File) Apply(cfg *Config) {
	if cf.Timeout > 0 {
		cfg.Timeout = time.Duration(cf.Timeout) * time.Second
	}
	if cf.ShortTimeout > 0 {
		cfg.ShortTimeout = time.Duration(cf.ShortTimeout) * time.Second
	}
	if cf.TLSMode != "" {
		cfg.TLSMode = cf.TLSMode
	}
	if cf.AutoFollowRedirects != nil {
		cfg.AutoFollowRedirects = *cf.AutoFollowRedirects
	}
	if cf.MaxSizeDownload != 0 {
		cfg.MaxSizeDownload = cf.MaxSizeDownload
	}
	if cf.HistorySize != 0 {
		cfg.HistorySize = cf.HistorySize
	}
	if cf.ArchivesSize != 0 {
		cfg.ArchivesSize = cf.ArchivesSize
	}
	if cf.DisableHTTP {
		cfg.DisableHTTP = true
	}
	if cf.UserAgent != "" {
		cfg.UserAgent = cf.UserAgent
	}
	if cf.Proxy != "" {
		cfg.ProxyAddress = cf.Proxy
	}
	if cf.EmbeddedTor {
		cfg.EmbeddedTor = true
	}
	if cf.LogFile != "" {
		cfg.LogFile = expandHome(cf.LogFile)
	}
	if cf.Directories.Cache != "" {
		cfg.CacheDir = expandHome(cf.Directories.Cache)
	}
	if cf.Directories.Data != "" {
		cfg.DataDir = expandHome(cf.Directories.Data)
	}
	if cf.Directories.Config != "" {
		cfg.ConfigDir = expandHome(cf.Directories.Config)
	}
	if cf.Sync.Depth != nil {
		cfg.SyncDepth = *cf.Sync.Depth
	}
	if cf.Sync.CacheValidity > 0 {
		cfg.CacheValidity = time.Duration(cf.Sync.CacheValidity) * time.Second
	}
	if cf.Sync.AssumeYes {
		cfg.AssumeYes = true
	}
	if len(cf.Sync.Ignore) > 0 {
		cfg.SyncIgnore = cf.Sync.Ignore
	}
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for capsule.yaml in the current directory
// 3. Look for config.yaml in the XDG config directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err == nil {
		cwdConfig := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(cwdConfig); err == nil {
			return cwdConfig
		}
	}

	xdgConfig := filepath.Join(XDGConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig
	}

	return ""
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
