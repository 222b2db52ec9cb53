package bindings

import (
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/cloud4rpi-go/internal/device"
	"github.com/nerrad567/cloud4rpi-go/internal/infrastructure/config"
	"github.com/nerrad567/cloud4rpi-go/internal/sysinfo"
)

// Binding kinds accepted in bind blocks.
const (
	KindNone     = ""
	KindConstant = "constant"
	KindState    = "state"
	KindGPIOIn   = "gpio_in"
	KindGPIOOut  = "gpio_out"
	KindFile     = "file"
	KindCommand  = "command"
	KindSysinfo  = "sysinfo"
)

// Builder turns configured variables and diagnostics into device
// declarations. GPIO is opened on first use and released by Close.
type Builder struct {
	openPins func() (Pins, error)
	sys      *sysinfo.Collector
	run      runFunc

	mu   sync.Mutex
	pins Pins
}

// Option configures a Builder.
type Option func(*Builder)

// WithPins uses pins instead of opening the Raspberry Pi GPIO.
func WithPins(pins Pins) Option {
	return func(b *Builder) {
		b.openPins = func() (Pins, error) { return pins, nil }
	}
}

// WithSysinfo sets the collector behind sysinfo bindings.
func WithSysinfo(c *sysinfo.Collector) Option {
	return func(b *Builder) { b.sys = c }
}

func withRunner(run runFunc) Option {
	return func(b *Builder) { b.run = run }
}

// NewBuilder creates a Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		openPins: func() (Pins, error) { return OpenRPIO() },
		run:      runShell,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.sys == nil {
		b.sys = sysinfo.New()
	}
	return b
}

// Variables builds every variable, stopping at the first invalid one.
func (b *Builder) Variables(cfgs []config.VariableConfig) ([]device.Variable, error) {
	vars := make([]device.Variable, 0, len(cfgs))
	for _, vc := range cfgs {
		v, err := b.Variable(vc)
		if err != nil {
			return nil, err
		}
		vars = append(vars, v)
	}
	return vars, nil
}

// Variable builds one variable. For a state binding the bind value is the
// fallback initial value.
func (b *Builder) Variable(vc config.VariableConfig) (device.Variable, error) {
	value := vc.Value
	if vc.Bind.Kind == KindState && value == nil {
		value = vc.Bind.Value
	}

	binding, err := b.Bind(vc.Bind)
	if err != nil {
		return device.Variable{}, fmt.Errorf("variable %q: %w", vc.Name, err)
	}
	return device.Variable{
		Name:  vc.Name,
		Title: vc.Title,
		Type:  device.VariableType(vc.Type),
		Value: value,
		Bind:  binding,
	}, nil
}

// Diagnostics builds every diagnostic, stopping at the first invalid one.
func (b *Builder) Diagnostics(cfgs []config.DiagnosticConfig) ([]device.Diagnostic, error) {
	diags := make([]device.Diagnostic, 0, len(cfgs))
	for _, dc := range cfgs {
		binding, err := b.Bind(dc.Bind)
		if err != nil {
			return nil, fmt.Errorf("diagnostic %q: %w", dc.Name, err)
		}
		diags = append(diags, device.Diagnostic{Name: dc.Name, Bind: binding})
	}
	return diags, nil
}

// Bind builds the binding for one bind block. An empty kind yields nil,
// a passive holder.
func (b *Builder) Bind(bc config.BindConfig) (any, error) {
	switch bc.Kind {
	case KindNone:
		return nil, nil

	case KindConstant:
		value := bc.Value
		return device.ReaderFunc(func() (any, error) { return value, nil }), nil

	case KindState:
		return device.Func1(func(v any) (any, error) { return v, nil }), nil

	case KindGPIOIn:
		pins, err := b.gpio()
		if err != nil {
			return nil, err
		}
		if err := pins.SetInput(bc.Pin, bc.Pull); err != nil {
			return nil, err
		}
		return device.ReaderFunc(gpioInput(pins, bc.Pin, bc.ActiveLow)), nil

	case KindGPIOOut:
		pins, err := b.gpio()
		if err != nil {
			return nil, err
		}
		if err := pins.SetOutput(bc.Pin); err != nil {
			return nil, err
		}
		return device.Func1(gpioOutput(pins, bc.Pin, bc.ActiveLow)), nil

	case KindFile:
		if bc.Path == "" {
			return nil, fmt.Errorf("%w: file binding needs a path", ErrInvalidBinding)
		}
		return device.ReaderFunc(fileReader(bc.Path, bc.Scale)), nil

	case KindCommand:
		if bc.Command == "" {
			return nil, fmt.Errorf("%w: command binding needs a command", ErrInvalidBinding)
		}
		timeout := time.Duration(bc.Timeout) * time.Second
		return device.ReaderFunc(commandReader(b.run, bc.Command, bc.Scale, timeout)), nil

	case KindSysinfo:
		r, err := b.sys.Reader(bc.Source)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidBinding, err)
		}
		return r, nil

	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidBinding, bc.Kind)
	}
}

func (b *Builder) gpio() (Pins, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pins != nil {
		return b.pins, nil
	}
	pins, err := b.openPins()
	if err != nil {
		return nil, err
	}
	b.pins = pins
	return pins, nil
}

// Close releases the GPIO if it was opened.
func (b *Builder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pins == nil {
		return nil
	}
	err := b.pins.Close()
	b.pins = nil
	if err != nil {
		return fmt.Errorf("closing gpio: %w", err)
	}
	return nil
}
