package tailer

import (
	"errors"
	"fmt"
)

// FingerprintMismatchError indicates that a file's fingerprint has changed,
// usually due to file rotation, truncation, or overwrite. The path now holds
// a different stream; the old stream can no longer be read through it.
type FingerprintMismatchError struct {
	Path                string
	ExpectedFingerprint string
	ActualFingerprint   string
}

func (e *FingerprintMismatchError) Error() string {
	return fmt.Sprintf("file fingerprint mismatch for %s: expected %s, got %s",
		e.Path, e.ExpectedFingerprint, e.ActualFingerprint)
}

// IsFingerprintMismatch checks if an error is a FingerprintMismatchError.
func IsFingerprintMismatch(err error) bool {
	var e *FingerprintMismatchError
	return errors.As(err, &e)
}

// FileTruncatedError indicates the on-disk file shrank below the committed
// offset, meaning the content at this path was replaced.
type FileTruncatedError struct {
	Path   string
	Size   int64
	Offset int64
}

func (e *FileTruncatedError) Error() string {
	return fmt.Sprintf("file truncated: %s: size %d below committed offset %d", e.Path, e.Size, e.Offset)
}

// IsFileTruncated checks if an error is a FileTruncatedError.
func IsFileTruncated(err error) bool {
	var e *FileTruncatedError
	return errors.As(err, &e)
}
