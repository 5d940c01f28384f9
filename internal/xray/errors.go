package xray

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedDocument is returned for structurally invalid JSON or a missing required key.
	ErrMalformedDocument = errors.New("malformed document")
	// ErrUnknownDiscriminator is returned when a protocol name is outside the closed set
	// and the decode policy is PolicyReject.
	ErrUnknownDiscriminator = errors.New("unknown discriminator")
	// ErrPolymorphicValueMismatch is returned when a polymorphic field matches none of its shapes.
	ErrPolymorphicValueMismatch = errors.New("invalid polymorphic value")
)

// DecodeError represents a failure to decode a part of the document
type DecodeError struct {
	Path string // Location in the document, e.g. "inbounds[0].settings"
	Err  error  // Original error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func newDecodeError(path string, err error) error {
	return &DecodeError{
		Path: path,
		Err:  err,
	}
}

func missingKey(path, key string) error {
	return newDecodeError(path, fmt.Errorf("%w: missing required key %q", ErrMalformedDocument, key))
}
