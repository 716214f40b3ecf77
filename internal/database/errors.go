package database

import "errors"

var (
	// ErrDatabaseNotFound is returned by Open when the file is missing and
	// creation was not requested.
	ErrDatabaseNotFound = errors.New("database not found")

	// ErrCertNotYetValid is returned for a certificate used before its
	// not-before date.
	ErrCertNotYetValid = errors.New("certificate not valid yet")

	// ErrCertExpired is returned for a certificate used after its not-after date.
	ErrCertExpired = errors.New("certificate expired")

	// ErrHostnameMismatch is returned when neither the common name nor a
	// subject alternative name matches the host.
	ErrHostnameMismatch = errors.New("hostname does not match certificate common name or any alternative names")

	// ErrCertRejected is returned when an unrecognised certificate is refused.
	ErrCertRejected = errors.New("TOFU failure: unrecognised certificate rejected")
)
