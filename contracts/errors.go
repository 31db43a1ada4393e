package contracts

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedFrame indicates a byte stream that is not valid JSON.
	ErrMalformedFrame = errors.New("contracts: malformed frame")

	// ErrUnsupportedValue indicates a native value outside the closed
	// Value variant set.
	ErrUnsupportedValue = errors.New("contracts: unsupported value")
)

// DecodeError reports a failure to decode a frame or value. Decode errors
// are non-fatal to the connection: the offending frame is dropped and
// logged, never the session.
type DecodeError struct {
	Reason string // What was wrong with the input
	Err    error  // Underlying error, if any
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("contracts: decode failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("contracts: decode failed: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrMalformedFrame
}

// EncodeError reports a value that cannot be represented on the wire. It is
// raised synchronously at the call site, before any bytes are sent.
type EncodeError struct {
	Value any // The offending native value
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("contracts: unsupported value of type %T", e.Value)
}

func (e *EncodeError) Unwrap() error {
	return ErrUnsupportedValue
}
