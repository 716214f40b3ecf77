package redirect

import "errors"

// MaxRedirects is the number of consecutive redirects a chain may follow.
const MaxRedirects = 5

var (
	// ErrSelfRedirect is returned when a URL redirects to itself.
	ErrSelfRedirect = errors.New("URL redirects to itself")

	// ErrLoop is returned when a redirect target was already visited.
	ErrLoop = errors.New("caught in redirect loop")

	// ErrTooManyRedirects is returned after MaxRedirects consecutive hops.
	ErrTooManyRedirects = errors.New("refusing to follow more than 5 consecutive redirects")

	// ErrDeclined is returned when the user refuses to follow a redirect.
	ErrDeclined = errors.New("redirect declined")
)
