package clientcert

import "errors"

var (
	// ErrInvalidName is returned for an empty certificate name or one that
	// contains a path separator.
	ErrInvalidName = errors.New("invalid certificate name")

	// ErrNoPersistentCerts is returned when no persistent certificate exists.
	ErrNoPersistentCerts = errors.New("there are no previously generated certificates")

	// ErrCertNotFound is returned when a certificate or key file is missing.
	ErrCertNotFound = errors.New("certificate not found")
)
