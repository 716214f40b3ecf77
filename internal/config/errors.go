package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrInvalidTimeout is returned when the interactive timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidShortTimeout is returned when the sync timeout is not positive.
	ErrInvalidShortTimeout = errors.New("invalid short timeout: must be positive")

	// ErrInvalidTLSMode is returned when tls_mode is neither "tofu" nor "ca".
	ErrInvalidTLSMode = errors.New("invalid tls mode: must be \"tofu\" or \"ca\"")

	// ErrInvalidMaxSize is returned when max_size_download is negative.
	// Zero disables the limit.
	ErrInvalidMaxSize = errors.New("invalid max download size: must be non-negative")

	// ErrInvalidDepth is returned when the sync depth is negative.
	ErrInvalidDepth = errors.New("invalid sync depth: must be non-negative")

	// ErrInvalidListSize is returned when history or archives size is not positive.
	ErrInvalidListSize = errors.New("invalid list size: must be positive")

	// ErrConflictingProxy is returned when both a SOCKS proxy and the embedded
	// Tor daemon are requested.
	ErrConflictingProxy = errors.New("conflicting transport: proxy and embedded_tor cannot be used together")

	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")
)
