package protocol

import (
	"errors"
	"fmt"
	"io"
)

// readBody reads r honoring the download cap. declared is the announced
// length, or a negative value when unknown.
func readBody(r io.Reader, declared, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		return readAll(r)
	}
	if declared > maxSize {
		return nil, fmt.Errorf("%w: %d bytes announced, %d allowed", ErrSizeLimitExceeded, declared, maxSize)
	}

	limit := maxSize
	if declared < 0 {
		limit = maxSize / 2
	}
	body, err := readAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: stream exceeded %d bytes", ErrSizeLimitExceeded, limit)
	}
	return body, nil
}

// readAll reads until EOF. Servers that close the connection without a
// TLS close_notify end the body with io.ErrUnexpectedEOF, which still marks
// a complete body.
func readAll(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(r)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, ClassifyNetError(err)
	}
	return body, nil
}
