package cache

import "errors"

var (
	// ErrPathTooLong is returned when a cache path exceeds locator.MaxPathLength.
	ErrPathTooLong = errors.New("cache path is too long")

	// ErrNotCached is returned by Read when no cache exists for a resource.
	ErrNotCached = errors.New("resource is not cached")
)
