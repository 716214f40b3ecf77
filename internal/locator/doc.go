// Package locator parses resource URLs and maps them to cache paths.
//
// A Locator is the unit every other package works with: fetchers read its
// host, port and selector, the cache store writes to its CachePath, and
// lists persist its URLWithMode. Cache path derivation is deterministic:
// the same (scheme, host, path) always yields the same file, clamped so that
// the result never exceeds MaxPathLength characters.
package locator
