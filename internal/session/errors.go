package session

import "errors"

var (
	// ErrQueued is returned by an offline navigation to an uncached
	// resource. The resource was queued for the next sync.
	ErrQueued = errors.New("not cached, queued for the next sync")

	// ErrNotCached is returned by an offline navigation when queueing
	// was not requested.
	ErrNotCached = errors.New("not available offline")
)
