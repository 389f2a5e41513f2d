package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrManifestDecode is returned when the remote checksum manifest is malformed.
	ErrManifestDecode = errors.New("checksum manifest decode failure")
	// ErrInvalidFilterBinary is returned when a downloaded or cached filter file fails
	// checksum verification, or verifies but does not decode as a filter.
	ErrInvalidFilterBinary = errors.New("invalid filter binary")
	// ErrDownloadedFileNotFound is returned when a download reported success but left no file behind.
	ErrDownloadedFileNotFound = errors.New("downloaded file not found")
)

// IOError is a filesystem or transport failure during a sync, with the
// underlying cause preserved.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io failure during %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// NewIOError wraps err as an IOError unless it already carries one of the
// classified sync errors, which are returned as is.
func NewIOError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ioErr *IOError
	if errors.As(err, &ioErr) || errors.Is(err, ErrManifestDecode) || errors.Is(err, ErrInvalidFilterBinary) {
		return err
	}
	return &IOError{Op: op, Err: err}
}
