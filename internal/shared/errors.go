package shared

import "errors"

// Error classes shared by every workflow package. Package level sentinels wrap one of
// these with %w so transport code can classify them with errors.Is.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a duplicate key or an out-of-order transition.
	ErrConflict = errors.New("conflict")
	// ErrForbidden indicates ownership/role mismatch or mutation of an immutable document.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation indicates invalid input or an unsatisfied business rule.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthenticated indicates the caller could not be identified.
	ErrUnauthenticated = errors.New("unauthenticated")
)
