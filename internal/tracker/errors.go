package tracker

import (
	"errors"
	"fmt"
)

// NotEnoughLinesError indicates that a file does not yet contain enough lines
// for line-based fingerprinting. The caller should retry on a later scan.
type NotEnoughLinesError struct {
	Expected int
	Actual   int
}

func (e *NotEnoughLinesError) Error() string {
	return fmt.Sprintf("expected file to have at least %d lines, got %d lines", e.Expected, e.Actual)
}

// IsNotEnoughLines determines if the provided error is of type NotEnoughLinesError.
func IsNotEnoughLines(err error) bool {
	var e *NotEnoughLinesError
	return errors.As(err, &e)
}
