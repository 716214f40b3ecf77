// Package cache stores fetched bodies on disk at the paths derived by the
// locator package.
//
// The file modification time is the freshness clock. A failed fetch never
// destroys an existing cache entry: RecordError only touches it, or writes
// a short sentinel document when nothing was cached yet so the failure is
// not retried on every render.
package cache
