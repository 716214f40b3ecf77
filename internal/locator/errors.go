package locator

import "errors"

var (
	// ErrEmptyURL is returned when parsing an empty or blank string.
	ErrEmptyURL = errors.New("empty url")

	// ErrInvalidURL is returned when a string cannot be parsed as a URL.
	ErrInvalidURL = errors.New("invalid url")
)
