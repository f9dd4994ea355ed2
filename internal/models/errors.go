package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParameter marks a numeric input that violates a precondition.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrEmptyOrZeroWeight marks a weighted average with no weight mass.
	ErrEmptyOrZeroWeight = errors.New("empty or zero weight")
	// ErrDataUnavailable marks market data that could not be fetched.
	ErrDataUnavailable = errors.New("data unavailable")
)

// ParameterError identifies the offending field of an invalid input.
type ParameterError struct {
	Field  string
	Reason string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Field, e.Reason)
}

func (e *ParameterError) Unwrap() error {
	return ErrInvalidParameter
}

// InvalidParameter builds a ParameterError for field.
func InvalidParameter(field, format string, args ...any) error {
	return &ParameterError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
