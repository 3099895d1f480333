package device

import "errors"

var (
	// ErrInvalidOperation is returned when a context-only operation is
	// called off the device context, or when the device could not be
	// created.
	ErrInvalidOperation = errors.New("device: invalid operation")

	// ErrNotSupported is returned when the driver does not meet the
	// device's minimum requirements.
	ErrNotSupported = errors.New("device: not supported")

	// ErrClosed is returned for operations on a closed device.
	ErrClosed = errors.New("device: closed")

	// ErrInvalidSize is returned for non-positive or oversized resource
	// dimensions.
	ErrInvalidSize = errors.New("device: invalid size")
)
