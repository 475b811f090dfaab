package access

import (
	"errors"
	"fmt"

	"github.com/mikepea/empaccess/pkg/empaccess/metrics"
)

var (
	// ErrStoreUnavailable matches every *StoreError. Queries never turn a
	// store failure into a denial.
	ErrStoreUnavailable = errors.New("access: store unavailable")

	// ErrNotFound is returned by administrative lookups and mutations.
	ErrNotFound = errors.New("access: not found")

	// ErrConflict is returned when a mutation would duplicate an active row.
	ErrConflict = errors.New("access: conflict")

	// ErrInvalidInput is returned for malformed administrative input.
	ErrInvalidInput = errors.New("access: invalid input")
)

// StoreError wraps a backing store failure with the operation that hit it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("access: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// storeErr wraps err as a *StoreError unless it already carries a domain
// sentinel, which is passed through untouched.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrInvalidInput) {
		return err
	}
	metrics.ObserveStoreError(op)
	return &StoreError{Op: op, Err: err}
}
