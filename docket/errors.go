package docket

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFilter is returned for filter combinations that are caller
	// errors rather than valid negative filters, such as ready=false.
	ErrInvalidFilter = errors.New("docket: invalid filter")
	ErrUnknownDocket = errors.New("docket: unknown docket")
)

// PreconditionError rejects a request before any store query runs.
type PreconditionError struct {
	Field  string
	Reason string
	Err    error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Err, e.Field, e.Reason)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// Rejected reports whether err is a precondition rejection.
func Rejected(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}
