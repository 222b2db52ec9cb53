package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/cloud4rpi-go/internal/device"
)

// Domain errors for the transport package.
var (
	// ErrInvalidToken is returned when a device token is not a base58 string
	// of at least 23 characters.
	ErrInvalidToken = errors.New("transport: invalid device token")

	// ErrConnectFailed is returned when every connection attempt failed.
	ErrConnectFailed = errors.New("transport: impossible to connect")

	// ErrUnexpectedStatus is returned when the HTTP API answers with a non-2xx status.
	ErrUnexpectedStatus = errors.New("transport: unexpected response status")

	// ErrInvalidCommand is returned when a command payload is not a JSON object.
	ErrInvalidCommand = errors.New("transport: command must be a JSON object")

	// ErrUnknownKind is returned when a message kind has no destination.
	ErrUnknownKind = errors.New("transport: unknown message kind")

	// ErrClosed is returned when sending through a closed connection.
	ErrClosed = errors.New("transport: connection closed")
)

// TokenError carries the rejected token.
type TokenError struct {
	Token string
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("%v: %q", ErrInvalidToken, e.Token)
}

func (e *TokenError) Unwrap() error {
	return ErrInvalidToken
}

// ErrorMessage returns the operator-facing message for err, covering both
// transport and device errors.
func ErrorMessage(err error) string {
	var te *TokenError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &te):
		return fmt.Sprintf("Device token %s is invalid. Please verify it.", te.Token)
	case errors.Is(err, ErrInvalidToken):
		return "Device token is invalid. Please verify it."
	case errors.Is(err, context.Canceled):
		return "Interrupted"
	case errors.Is(err, ErrConnectFailed):
		return "Connection failed. Please try again later."
	default:
		return device.ErrorMessage(err)
	}
}
