package locator

import "strings"

// FixIPv6URL brackets an IPv6 literal host that was written without
// brackets. A netloc is taken as IPv6 when it holds more than two colons,
// so "host:port" and "[::1]:1965" are left alone.
func FixIPv6URL(raw string) string {
	if raw == "" || strings.HasPrefix(raw, "mailto") {
		return raw
	}
	scheme, rest, hasScheme := strings.Cut(raw, "://")
	if !hasScheme {
		scheme, rest = "", raw
	}
	if netloc, tail, ok := strings.Cut(rest, "/"); ok {
		if strings.Count(netloc, ":") > 2 && !strings.ContainsAny(netloc, "[]") {
			rest = "[" + netloc + "]/" + tail
		}
	} else if strings.Count(rest, ":") > 2 && !strings.ContainsAny(rest, "[]") {
		rest = "[" + rest + "]/"
	}
	if hasScheme {
		return scheme + "://" + rest
	}
	return rest
}

// LooksLikeURL reports whether word can be navigated to: a known remote
// scheme with a dotted host, a local scheme, or a mailto with an address.
// Words without a scheme are tried as Gemini hosts.
func LooksLikeURL(word string) bool {
	word = strings.TrimSpace(word)
	if word == "" {
		return false
	}
	if strings.HasPrefix(word, "mailto:") {
		return strings.Contains(word, "@")
	}
	scheme, rest, ok := strings.Cut(FixIPv6URL(word), "://")
	if !ok {
		return LooksLikeURL("gemini://" + word)
	}
	if scheme == "file" || scheme == "list" {
		return true
	}
	if _, known := StandardPorts[scheme]; !known {
		return false
	}
	return strings.Contains(rest, ".") || strings.Contains(rest, "localhost") ||
		strings.HasPrefix(rest, "[")
}
