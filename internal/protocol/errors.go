package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/nao1215/capsule/internal/cache"
	"github.com/nao1215/capsule/internal/locator"
	"github.com/nao1215/capsule/internal/redirect"
)

var (
	// ErrDNS is returned when a host name cannot be resolved.
	ErrDNS = errors.New("DNS error")

	// ErrConnectionRefused is returned when the server refuses the connection.
	ErrConnectionRefused = errors.New("connection refused")

	// ErrConnectionReset is returned when the server drops the connection.
	ErrConnectionReset = errors.New("connection reset by peer")

	// ErrTimeout is returned when a request exceeds its timeout.
	ErrTimeout = errors.New("connection timeout")

	// ErrTrust is returned when a server certificate is rejected.
	ErrTrust = errors.New("certificate not trusted")

	// ErrUserAbort is returned when the user, or an unattended run, declines
	// to continue a navigation.
	ErrUserAbort = errors.New("aborted by user")

	// ErrSizeLimitExceeded is returned when a body exceeds the download cap.
	ErrSizeLimitExceeded = errors.New("size limit exceeded")

	// ErrPathTooLong is returned when the cache path of a resource is too long.
	ErrPathTooLong = cache.ErrPathTooLong

	// ErrInvalidHeader is returned for a malformed response header.
	ErrInvalidHeader = errors.New("received invalid header from server")

	// ErrUnsupportedScheme is returned when no fetcher handles a scheme.
	ErrUnsupportedScheme = errors.New("unsupported scheme")
)

// ProtocolError is a failure reported by the server itself.
type ProtocolError struct {
	// Scheme is the scheme of the request.
	Scheme string
	// Status is the status code as sent by the server.
	Status string
	// Meta is the accompanying message.
	Meta string
}

// Error implements error.
func (e *ProtocolError) Error() string {
	switch e.Scheme {
	case "spartan":
		return fmt.Sprintf("Spartan code %s: Error %s", e.Status, e.Meta)
	case "http", "https":
		return fmt.Sprintf("HTTP status %s: %s", e.Status, e.Meta)
	default:
		if e.Meta == "" {
			return "status " + e.Status
		}
		return fmt.Sprintf("status %s: %s", e.Status, e.Meta)
	}
}

// RedirectError reports an accepted redirect to a scheme the fetcher does
// not speak. Registry.Fetch follows it.
type RedirectError struct {
	// From is the resource that redirected.
	From *locator.Locator
	// Target is the accepted redirect target.
	Target *locator.Locator
	// Chain already holds the hop to Target.
	Chain *redirect.Chain
}

// Error implements error.
func (e *RedirectError) Error() string {
	return fmt.Sprintf("redirected from %s to %s", e.From.URL(), e.Target.URL())
}

// Kind classifies a fetch failure.
type Kind int

const (
	// KindNone means no error.
	KindNone Kind = iota
	// KindDNS is a name resolution failure.
	KindDNS
	// KindConnectionRefused is a refused connection.
	KindConnectionRefused
	// KindConnectionReset is a dropped connection.
	KindConnectionReset
	// KindTimeout is a timed out request.
	KindTimeout
	// KindProtocol is an error reported by the server.
	KindProtocol
	// KindTrust is a rejected certificate.
	KindTrust
	// KindUserAbort is a declined navigation.
	KindUserAbort
	// KindSizeLimit is an oversized body.
	KindSizeLimit
	// KindPathTooLong is a cache path over the length limit.
	KindPathTooLong
	// KindRedirect is a refused redirect chain.
	KindRedirect
	// KindOther is anything else.
	KindOther
)

// String returns a human readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindDNS:
		return "dns failure"
	case KindConnectionRefused:
		return "connection refused"
	case KindConnectionReset:
		return "connection reset"
	case KindTimeout:
		return "timeout"
	case KindProtocol:
		return "protocol error"
	case KindTrust:
		return "untrusted certificate"
	case KindUserAbort:
		return "user abort"
	case KindSizeLimit:
		return "size limit"
	case KindPathTooLong:
		return "path too long"
	case KindRedirect:
		return "redirect error"
	default:
		return "other error"
	}
}

// KindOf returns the Kind of err.
func KindOf(err error) Kind {
	var perr *ProtocolError
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrUserAbort):
		return KindUserAbort
	case errors.Is(err, ErrTrust):
		return KindTrust
	case errors.Is(err, ErrDNS):
		return KindDNS
	case errors.Is(err, ErrConnectionRefused):
		return KindConnectionRefused
	case errors.Is(err, ErrConnectionReset):
		return KindConnectionReset
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrSizeLimitExceeded):
		return KindSizeLimit
	case errors.Is(err, ErrPathTooLong):
		return KindPathTooLong
	case errors.Is(err, redirect.ErrLoop),
		errors.Is(err, redirect.ErrSelfRedirect),
		errors.Is(err, redirect.ErrTooManyRedirects):
		return KindRedirect
	case errors.As(err, &perr), errors.Is(err, ErrInvalidHeader):
		return KindProtocol
	default:
		return KindOther
	}
}

// ClassifyNetError wraps a low level network error with the matching
// sentinel. Errors that are already classified, or that do not come from
// the network, are returned unchanged.
func ClassifyNetError(err error) error {
	if err == nil || KindOf(err) != KindOther {
		return err
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %w", ErrDNS, err)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: %w", ErrConnectionRefused, err)
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %w", ErrConnectionReset, err)
	}
	return err
}
