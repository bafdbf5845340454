package vector

import (
	"errors"
	"fmt"
)

// Sentinel errors returned (wrapped in *Error) by Index operations.
var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrLengthMismatch    = errors.New("vectors and metadata length mismatch")
	ErrInvalidVector     = errors.New("vector contains NaN or Inf")
	ErrInvalidMetadata   = errors.New("metadata is not JSON encodable")
	ErrPersistence       = errors.New("index persistence failed")
	ErrConsistency       = errors.New("index files are inconsistent")
	ErrUnknownIndexType  = errors.New("unknown index type")
	ErrUnavailable       = errors.New("index backend not available in this build")
)

// Error wraps an index error with the operation that produced it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("vector.%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ie *Error
	if errors.As(err, &ie) {
		return err
	}
	return &Error{Op: op, Err: err}
}
