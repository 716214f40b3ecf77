package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestNewConfig verifies the documented defaults.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default Timeout is 600 seconds", func(t *testing.T) {
		t.Parallel()
		if cfg.Timeout != 600*time.Second {
			t.Errorf("expected Timeout to be 600s, got %v", cfg.Timeout)
		}
	})

	t.Run("default ShortTimeout is 5 seconds", func(t *testing.T) {
		t.Parallel()
		if cfg.ShortTimeout != 5*time.Second {
			t.Errorf("expected ShortTimeout to be 5s, got %v", cfg.ShortTimeout)
		}
	})

	t.Run("default TLSMode is tofu", func(t *testing.T) {
		t.Parallel()
		if cfg.TLSMode != TLSModeTOFU {
			t.Errorf("expected TLSMode to be %q, got %q", TLSModeTOFU, cfg.TLSMode)
		}
	})

	t.Run("default MaxSizeDownload is 10MB", func(t *testing.T) {
		t.Parallel()
		if cfg.MaxSizeDownload != 10*1024*1024 {
			t.Errorf("expected MaxSizeDownload to be 10MB, got %d", cfg.MaxSizeDownload)
		}
	})

	t.Run("redirects are followed by default", func(t *testing.T) {
		t.Parallel()
		if !cfg.AutoFollowRedirects {
			t.Error("expected AutoFollowRedirects to be true")
		}
	})

	t.Run("history and archives keep 200 entries", func(t *testing.T) {
		t.Parallel()
		if cfg.HistorySize != 200 || cfg.ArchivesSize != 200 {
			t.Errorf("expected 200/200, got %d/%d", cfg.HistorySize, cfg.ArchivesSize)
		}
	})
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{name: "defaults are valid", modify: func(*Config) {}},
		{name: "zero timeout", modify: func(c *Config) { c.Timeout = 0 }, wantErr: ErrInvalidTimeout},
		{name: "zero short timeout", modify: func(c *Config) { c.ShortTimeout = 0 }, wantErr: ErrInvalidShortTimeout},
		{name: "unknown tls mode", modify: func(c *Config) { c.TLSMode = "none" }, wantErr: ErrInvalidTLSMode},
		{name: "ca tls mode", modify: func(c *Config) { c.TLSMode = TLSModeCA }},
		{name: "negative max size", modify: func(c *Config) { c.MaxSizeDownload = -1 }, wantErr: ErrInvalidMaxSize},
		{name: "zero max size disables cap", modify: func(c *Config) { c.MaxSizeDownload = 0 }},
		{name: "negative depth", modify: func(c *Config) { c.SyncDepth = -1 }, wantErr: ErrInvalidDepth},
		{name: "zero history", modify: func(c *Config) { c.HistorySize = 0 }, wantErr: ErrInvalidListSize},
		{
			name: "proxy and embedded tor",
			modify: func(c *Config) {
				c.ProxyAddress = "127.0.0.1:9050"
				c.EmbeddedTor = true
			},
			wantErr: ErrConflictingProxy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := NewConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected nil, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRequestTimeout(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	if got := cfg.RequestTimeout(true); got != cfg.ShortTimeout {
		t.Errorf("sync timeout = %v, want %v", got, cfg.ShortTimeout)
	}
	if got := cfg.RequestTimeout(false); got != cfg.Timeout {
		t.Errorf("interactive timeout = %v, want %v", got, cfg.Timeout)
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("missing file returns ErrConfigNotFound", func(t *testing.T) {
		t.Parallel()
		_, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("invalid yaml returns error", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte("timeout: [1"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfigFile(path); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("values are applied over defaults", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		path := filepath.Join(dir, "capsule.yaml")
		content := `timeout: 30
short_timeout: 2
tls_mode: ca
auto_follow_redirects: false
max_size_download: 1024
proxy: 127.0.0.1:9050
directories:
  cache: ` + filepath.Join(dir, "cache") + `
sync:
  depth: 0
  cache_validity: 3600
  assume_yes: true
  ignore:
    - "gemini://spam.example/*"
`
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}

		cf, err := LoadConfigFile(path)
		if err != nil {
			t.Fatalf("LoadConfigFile() error = %v", err)
		}
		cfg := NewConfig()
		cf.Apply(cfg)

		if cfg.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
		}
		if cfg.ShortTimeout != 2*time.Second {
			t.Errorf("ShortTimeout = %v, want 2s", cfg.ShortTimeout)
		}
		if cfg.TLSMode != TLSModeCA {
			t.Errorf("TLSMode = %q, want ca", cfg.TLSMode)
		}
		if cfg.AutoFollowRedirects {
			t.Error("AutoFollowRedirects should be false")
		}
		if cfg.MaxSizeDownload != 1024 {
			t.Errorf("MaxSizeDownload = %d, want 1024", cfg.MaxSizeDownload)
		}
		if cfg.ProxyAddress != "127.0.0.1:9050" {
			t.Errorf("ProxyAddress = %q", cfg.ProxyAddress)
		}
		if cfg.CacheDir != filepath.Join(dir, "cache") {
			t.Errorf("CacheDir = %q", cfg.CacheDir)
		}
		if cfg.SyncDepth != 0 {
			t.Errorf("SyncDepth = %d, want 0", cfg.SyncDepth)
		}
		if cfg.CacheValidity != time.Hour {
			t.Errorf("CacheValidity = %v, want 1h", cfg.CacheValidity)
		}
		if !cfg.AssumeYes {
			t.Error("AssumeYes should be true")
		}
		if len(cfg.SyncIgnore) != 1 || cfg.SyncIgnore[0] != "gemini://spam.example/*" {
			t.Errorf("SyncIgnore = %v", cfg.SyncIgnore)
		}
	})
}

func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("explicit existing path", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "c.yaml")
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			t.Fatal(err)
		}
		if got := FindConfigFile(path); got != path {
			t.Errorf("FindConfigFile() = %q, want %q", got, path)
		}
	})

	t.Run("explicit missing path", func(t *testing.T) {
		t.Parallel()
		if got := FindConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); got != "" {
			t.Errorf("FindConfigFile() = %q, want empty", got)
		}
	})
}
