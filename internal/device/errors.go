package device

import (
	"errors"
	"fmt"
)

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrUnexpectedVariableValueType) {
//	    // handle a value that could not be coerced
//	}
var (
	// ErrInvalidConfig is returned when a declaration set has an invalid shape
	// (empty or duplicated variable names, malformed raw config).
	ErrInvalidConfig = errors.New("device: invalid config")

	// ErrUnexpectedVariableType is returned when a declared type is not one of
	// bool, numeric, string or location.
	ErrUnexpectedVariableType = errors.New("device: unexpected variable type")

	// ErrUnexpectedVariableValueType is returned when a value cannot be coerced
	// to its variable's declared type.
	ErrUnexpectedVariableValueType = errors.New("device: unexpected variable value type")

	// ErrNoTransport is returned by the Publish methods of a Device created
	// without a transport.
	ErrNoTransport = errors.New("device: no transport")
)

// ErrorMessage returns the operator-facing message for err.
//
// Errors from this package map to fixed sentences; anything else is reported
// as an unexpected error.
func ErrorMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidConfig):
		return "Configuration is invalid. It must be an array."
	case errors.Is(err, ErrUnexpectedVariableType):
		return fmt.Sprintf("Unexpected type for the %q variable. It must be \"bool\", \"numeric\", \"string\" or \"location\".",
			variableName(err))
	case errors.Is(err, ErrUnexpectedVariableValueType):
		return fmt.Sprintf("Unexpected value type for variable: %s", variableName(err))
	default:
		return fmt.Sprintf("Unexpected error: %v", err)
	}
}

// VariableError attaches the variable name to a validation failure.
type VariableError struct {
	Name string
	Err  error
}

func (e *VariableError) Error() string {
	return fmt.Sprintf("variable %q: %v", e.Name, e.Err)
}

func (e *VariableError) Unwrap() error {
	return e.Err
}

func variableName(err error) string {
	var ve *VariableError
	if errors.As(err, &ve) {
		return ve.Name
	}
	return "unknown"
}

func variableErr(name string, err error) error {
	return &VariableError{Name: name, Err: err}
}
