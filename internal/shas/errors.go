package shas

import (
	"errors"
	"fmt"
)

// Sentinel errors wrapped by ValidationError.
var (
	ErrUnknownCorpusItem = errors.New("unknown masechta")
	ErrInvalidRange      = errors.New("invalid range")
	ErrEmptySelection    = errors.New("empty selection")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrInvalidPage       = errors.New("invalid page number")
	ErrInvalidMode       = errors.New("invalid selection mode")
)

// ValidationError reports a malformed selection. It is raised before any I/O
// and is never retried.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("validation error: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("validation error: %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func invalid(field, value string, err error) error {
	return &ValidationError{Field: field, Value: value, Err: err}
}
