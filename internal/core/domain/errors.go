package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrBatchNotFound    = errors.New("batch not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")

	// ErrConflict signals a conditional update that found the document
	// in a different state than required (lost pick race, filled report
	// slot, terminal status).
	ErrConflict = errors.New("state conflict")

	// ErrLimitExceeded signals a staff concurrency ceiling violation.
	ErrLimitExceeded = errors.New("concurrency limit exceeded")

	ErrTemporary = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
