package bindings

import "errors"

// Domain errors for the bindings package.
var (
	// ErrInvalidBinding is returned when a bind block is incomplete or names
	// an unknown kind.
	ErrInvalidBinding = errors.New("bindings: invalid binding")

	// ErrInvalidPin is returned for a GPIO pin outside 0..53.
	ErrInvalidPin = errors.New("bindings: invalid gpio pin")

	// ErrGPIOUnavailable is returned when the GPIO memory cannot be mapped,
	// usually because the host is not a Raspberry Pi.
	ErrGPIOUnavailable = errors.New("bindings: gpio unavailable")

	// ErrInvalidValue is returned when a reading or command cannot be
	// interpreted.
	ErrInvalidValue = errors.New("bindings: invalid value")
)
