// Package shared contains canonical type definitions shared across sluice.
package shared //nolint:revive // internal shared package is intentional

import (
	"errors"
	"fmt"
)

// Semantic errors for composition and materialization.
var (
	// ErrNoConnection indicates a collection was resolved without an active session.
	ErrNoConnection = errors.New("sluice: no active connection")

	// ErrAlreadyConnected indicates Connect was called on a connected session.
	ErrAlreadyConnected = errors.New("sluice: session already connected")

	// ErrConnect indicates the session could not establish a connection.
	ErrConnect = errors.New("sluice: connect failed")

	// ErrMultipleResults indicates an exactly-one materialization observed two or more results.
	ErrMultipleResults = errors.New("sluice: result set contains more than one element")

	// ErrConversion indicates a value could not be converted to a native identifier.
	ErrConversion = errors.New("sluice: identifier conversion failed")

	// ErrEmptySource indicates a single-value source completed without producing a value.
	ErrEmptySource = errors.New("sluice: single-value source completed without a value")

	// ErrMultipleValues indicates a single-value source produced more than one value.
	ErrMultipleValues = errors.New("sluice: single-value source produced more than one value")

	// ErrDecode indicates a driver document could not be decoded into the target type.
	ErrDecode = errors.New("sluice: decode failed")
)

// ConversionError describes an identifier that could not be converted.
type ConversionError struct {
	Value any
	Cause error
}

func (e *ConversionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v (%T): %v", ErrConversion, e.Value, e.Value, e.Cause)
	}
	return fmt.Sprintf("%s: %v (%T)", ErrConversion, e.Value, e.Value)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *ConversionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrConversion}
	}
	return []error{ErrConversion, e.Cause}
}
