package locator

import (
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// Cache path limits. Paths are clamped to maxCachePrefix characters before
// an index name is appended, which keeps the result within MaxPathLength.
const (
	maxCachePrefix = 249
	// MaxPathLength is the longest cache path that is ever read or written.
	MaxPathLength = 259
)

// IndexName returns the synthetic file name used for directory-like URLs.
func IndexName(scheme string) string {
	switch {
	case strings.HasPrefix(scheme, "http"):
		return "index.html"
	case scheme == "gopher" || scheme == "finger":
		return "index.txt"
	default:
		return "index.gmi"
	}
}

// CachePath returns where the resource lives on disk. Local resources map
// to their own path. The value is memoized and only recomputed when the
// memoized file has since become a directory.
func (l *Locator) CachePath() string {
	if l.cachePath != "" && !isDir(l.cachePath) {
		return l.cachePath
	}
	if l.Local {
		l.cachePath = l.Path
		return l.cachePath
	}

	root := ""
	if l.parser != nil {
		root = l.parser.cacheRoot
	}
	p := filepath.ToSlash(root)
	if p != "" && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	p += l.Scheme + "/" + l.Host + l.Path
	if len(p) > maxCachePrefix {
		p = p[:maxCachePrefix]
	}

	index := IndexName(l.Scheme)
	if l.Path == "" || isDir(p) {
		if !strings.HasSuffix(p, "/") {
			p += "/"
		}
		if !strings.HasSuffix(l.url, "/") {
			l.url += "/"
		}
	}
	if strings.HasSuffix(p, "/") {
		p += index
	}
	if isDir(p) {
		p += "/" + index
	}
	l.cachePath = filepath.FromSlash(p)
	return l.cachePath
}

// Mime returns the resource's mime type: the gopher item type mapping, the
// type recorded by the last fetch, or a guess from the cache file name.
// An empty string means the type is unknown.
func (l *Locator) Mime() string {
	if l.mime != "" {
		return l.mime
	}
	if l.Scheme == "mailto" {
		return "mailto"
	}
	p := l.CachePath()
	if isDir(p) {
		return "Local Folder"
	}
	switch ext := strings.ToLower(filepath.Ext(p)); ext {
	case ".gmi", ".gemini":
		return "text/gemini"
	case ".txt":
		if l.Scheme == "finger" {
			return "text/plain"
		}
		return "text/gopher"
	case "":
		return "text/gemini"
	default:
		guessed, _, _ := strings.Cut(mime.TypeByExtension(ext), ";")
		if guessed == "" {
			return "text/gemini"
		}
		return guessed
	}
}

func isDir(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}
