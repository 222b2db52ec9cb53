package bindings

import (
	"fmt"
	"strings"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
)

// Pull modes for input pins.
const (
	PullNone = "none"
	PullUp   = "up"
	PullDown = "down"
)

// Pins is the GPIO surface used by the gpio bindings. Pin numbers are BCM.
type Pins interface {
	SetInput(pin int, pull string) error
	SetOutput(pin int) error
	Read(pin int) (bool, error)
	Write(pin int, high bool) error
	Close() error
}

// RPIO drives the Raspberry Pi GPIO through /dev/gpiomem.
type RPIO struct {
	mu sync.Mutex
}

var _ Pins = (*RPIO)(nil)

// OpenRPIO maps the GPIO registers. Call Close to unmap them.
func OpenRPIO() (*RPIO, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGPIOUnavailable, err)
	}
	return &RPIO{}, nil
}

func rpioPin(pin int) (rpio.Pin, error) {
	if pin < 0 || pin > 53 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPin, pin)
	}
	return rpio.Pin(uint8(pin)), nil //nolint:gosec // G115: bounds checked above
}

// SetInput implements Pins.
func (r *RPIO) SetInput(pin int, pull string) error {
	p, err := rpioPin(pin)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p.Input()
	switch strings.ToLower(pull) {
	case PullUp:
		p.PullUp()
	case PullDown:
		p.PullDown()
	case "", PullNone:
		p.PullOff()
	default:
		return fmt.Errorf("%w: pull %q", ErrInvalidBinding, pull)
	}
	return nil
}

// SetOutput implements Pins.
func (r *RPIO) SetOutput(pin int) error {
	p, err := rpioPin(pin)
	if err != nil {
		return err
	}

	r.mu.Lock()
	p.Output()
	r.mu.Unlock()
	return nil
}

// Read implements Pins.
func (r *RPIO) Read(pin int) (bool, error) {
	p, err := rpioPin(pin)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return p.Read() == rpio.High, nil
}

// Write implements Pins.
func (r *RPIO) Write(pin int, high bool) error {
	p, err := rpioPin(pin)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if high {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

// Close unmaps the GPIO registers.
func (r *RPIO) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return rpio.Close()
}

// gpioInput reads a pin, inverted when activeLow.
func gpioInput(pins Pins, pin int, activeLow bool) func() (any, error) {
	return func() (any, error) {
		high, err := pins.Read(pin)
		if err != nil {
			return nil, err
		}
		return high != activeLow, nil
	}
}

// gpioOutput writes the requested state, then reports the pin as read
// back. A nil value only reads.
func gpioOutput(pins Pins, pin int, activeLow bool) func(any) (any, error) {
	return func(value any) (any, error) {
		if value != nil {
			on, err := truthy(value)
			if err != nil {
				return nil, err
			}
			if err := pins.Write(pin, on != activeLow); err != nil {
				return nil, err
			}
		}
		high, err := pins.Read(pin)
		if err != nil {
			return nil, err
		}
		return high != activeLow, nil
	}
}

func truthy(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "on", "high":
			return true, nil
		case "0", "false", "off", "low", "":
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: cannot drive a pin with %T %v", ErrInvalidValue, value, value)
}
