package device

import (
	"fmt"
	"reflect"
)

// Reader is a binding that produces a fresh value on demand, typically a sensor.
// The variable's current value is not passed to it.
type Reader interface {
	Read() (any, error)
}

// Func0 is a zero-argument binding.
type Func0 func() (any, error)

// Func1 is a one-argument binding. It receives the variable's current value
// on the read path and the commanded value on the command path, so an
// actuator can both apply a new state and report the state it ended up in.
type Func1 func(value any) (any, error)

// ReaderFunc adapts an ordinary function to the Reader interface.
type ReaderFunc func() (any, error)

// Read implements Reader.
func (f ReaderFunc) Read() (any, error) {
	return f()
}

// Resolve produces the next value of a binding.
//
// Resolution order:
//  1. Reader: Read() is called and its result returned.
//  2. Func0 / Func1 (or the equivalent unnamed signatures): called with no
//     argument or with current respectively.
//  3. Anything else: nothing is invoked and invoked is false; the caller
//     decides what a plain binding means on its path.
//
// Errors from the binding are returned as-is.
func Resolve(binding, current any) (next any, invoked bool, err error) {
	switch b := binding.(type) {
	case nil:
		return nil, false, nil
	case Reader:
		next, err = b.Read()
	case Func0:
		next, err = b()
	case Func1:
		next, err = b(current)
	case func() (any, error):
		next, err = b()
	case func(any) (any, error):
		next, err = b(current)
	case func() any:
		next = b()
	case func(any) any:
		next = b(current)
	default:
		return nil, false, nil
	}
	return next, true, err
}

// IsCallable reports whether binding is one of the function variants
// accepted by Resolve. Readers are not callables.
func IsCallable(binding any) bool {
	switch binding.(type) {
	case Func0, Func1, func() (any, error), func(any) (any, error), func() any, func(any) any:
		return true
	default:
		return false
	}
}

// CheckBinding rejects bindings that would misbehave when resolved: a
// function whose signature Resolve does not accept, and a nil function of
// an accepted kind. Plain values and Readers pass.
func CheckBinding(binding any) error {
	if binding == nil {
		return nil
	}
	v := reflect.ValueOf(binding)
	if v.Kind() != reflect.Func {
		return nil
	}
	if _, reader := binding.(Reader); !reader && !IsCallable(binding) {
		return fmt.Errorf("%w: unsupported binding signature %T", ErrInvalidConfig, binding)
	}
	if v.IsNil() {
		return fmt.Errorf("%w: nil %T binding", ErrInvalidConfig, binding)
	}
	return nil
}
