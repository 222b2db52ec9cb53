package device

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// commandPublishTimeout bounds the re-publish of updates after a remote command.
const commandPublishTimeout = 10 * time.Second

// Logger defines the logging interface used by the Device.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Transport is the contract between a Device and the cloud link.
//
// Implementations deliver the payloads and call the registered handler with
// each decoded command. The handler may be invoked from any goroutine.
type Transport interface {
	PublishConfig(ctx context.Context, cfg []ConfigEntry) error
	PublishData(ctx context.Context, data map[string]any) error
	PublishDiag(ctx context.Context, diag map[string]any) error
	OnCommand(handler func(cmd map[string]any))
}

// Device holds the declared variables and diagnostics of one device and
// keeps their values consistent between sensor reads and remote commands.
//
// All public methods are thread-safe. Bindings are invoked while the registry
// lock is held, so the read path and the command path never interleave; the
// transport is always called after the lock is released.
type Device struct {
	api Transport

	mu        sync.Mutex
	vars      []*variable // declaration order
	index     map[string]*variable
	diags     []*diagnostic
	diagIndex map[string]*diagnostic

	logger Logger
}

// Option configures a Device at construction.
type Option func(*Device)

// WithLogger sets the device logger.
func WithLogger(logger Logger) Option {
	return func(d *Device) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates a Device publishing through api and registers its command
// handler on it. api may be nil for a Device that is only read locally.
func New(api Transport, opts ...Option) *Device {
	d := &Device{
		api:       api,
		index:     make(map[string]*variable),
		diagIndex: make(map[string]*diagnostic),
		logger:    noopLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if api != nil {
		api.OnCommand(d.handleCommand)
	}
	return d
}

// SetLogger sets the logger for the device.
func (d *Device) SetLogger(logger Logger) {
	d.mu.Lock()
	d.logger = logger
	d.mu.Unlock()
}

// Declare replaces the whole variable set.
//
// Every entry is validated before anything is replaced: names must be
// non-empty and unique, types must be legal and initial values must coerce
// to their type. On failure the previous declaration stays in effect.
func (d *Device) Declare(vars []Variable) error {
	d.mu.Lock()
	logger := d.logger
	d.mu.Unlock()

	next := make([]*variable, 0, len(vars))
	index := make(map[string]*variable, len(vars))

	for _, v := range vars {
		if v.Name == "" {
			return fmt.Errorf("%w: variable name is required", ErrInvalidConfig)
		}
		if _, dup := index[v.Name]; dup {
			return fmt.Errorf("%w: variable %q declared twice", ErrInvalidConfig, v.Name)
		}

		if err := CheckBinding(v.Bind); err != nil {
			return fmt.Errorf("variable %q: %w", v.Name, err)
		}

		value := v.Value
		if v.Type != "" {
			if err := ValidateType(v.Type); err != nil {
				return variableErr(v.Name, err)
			}
			coerced, err := ValidateValue(logger, v.Name, v.Type, v.Value)
			if err != nil {
				return err
			}
			value = coerced
		}

		rec := &variable{
			name:  v.Name,
			title: v.Title,
			typ:   v.Type,
			value: value,
			bind:  v.Bind,
		}
		next = append(next, rec)
		index[v.Name] = rec
	}

	d.mu.Lock()
	d.vars = next
	d.index = index
	d.mu.Unlock()

	logger.Info("variables declared", "count", len(next))
	return nil
}

// DeclareDiag replaces the whole diagnostics set.
func (d *Device) DeclareDiag(diags []Diagnostic) error {
	next := make([]*diagnostic, 0, len(diags))
	index := make(map[string]*diagnostic, len(diags))

	for _, dg := range diags {
		if dg.Name == "" {
			return fmt.Errorf("%w: diagnostic name is required", ErrInvalidConfig)
		}
		if _, dup := index[dg.Name]; dup {
			return fmt.Errorf("%w: diagnostic %q declared twice", ErrInvalidConfig, dg.Name)
		}
		if err := CheckBinding(dg.Bind); err != nil {
			return fmt.Errorf("diagnostic %q: %w", dg.Name, err)
		}
		rec := &diagnostic{name: dg.Name, bind: dg.Bind}
		next = append(next, rec)
		index[dg.Name] = rec
	}

	d.mu.Lock()
	d.diags = next
	d.diagIndex = index
	logger := d.logger
	d.mu.Unlock()

	logger.Info("diagnostics declared", "count", len(next))
	return nil
}

// ReadConfig returns the name and type of every typed variable in
// declaration order.
func (d *Device) ReadConfig() []ConfigEntry {
	d.mu.Lock()
	defer d.mu.Unlock()

	cfg := make([]ConfigEntry, 0, len(d.vars))
	for _, v := range d.vars {
		if v.typ == "" {
			continue
		}
		cfg = append(cfg, ConfigEntry{Name: v.name, Type: v.typ})
	}
	return cfg
}

// ReadData resolves every bound variable, stores the coerced result and
// returns the full set of typed variable values.
//
// Variables without an invocable binding report their stored value (nil if
// none). The first binding or coercion failure aborts the read; variables
// processed before it keep their new values.
func (d *Device) ReadData() (map[string]any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, v := range d.vars {
		if v.typ == "" {
			continue
		}
		next, invoked, err := Resolve(v.bind, v.value)
		if err != nil {
			return nil, fmt.Errorf("reading variable %q: %w", v.name, err)
		}
		if !invoked {
			continue
		}
		value, err := ValidateValue(d.logger, v.name, v.typ, next)
		if err != nil {
			return nil, err
		}
		v.value = value
	}

	return d.valuesLocked(), nil
}

// Values returns the stored value of every typed variable without invoking
// any binding.
func (d *Device) Values() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.valuesLocked()
}

func (d *Device) valuesLocked() map[string]any {
	values := make(map[string]any, len(d.vars))
	for _, v := range d.vars {
		if v.typ == "" {
			continue
		}
		values[v.name] = v.value
	}
	return values
}

// ApplyCommand applies a remote command and returns the values it set.
//
// Variables are visited in declaration order. A callable binding receives
// the commanded value and its result becomes the new value; a nil result
// means the actuator reported nothing and the variable is left alone. Any
// other binding takes the commanded value verbatim. Values are coerced to
// the declared type before being stored. Unknown names are ignored.
//
// On the first failure the updates applied so far are returned together
// with the error.
func (d *Device) ApplyCommand(cmd map[string]any) (map[string]any, error) {
	updates := make(map[string]any)
	if len(cmd) == 0 {
		return updates, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for name := range cmd {
		if _, known := d.index[name]; !known {
			d.logger.Debug("command for unknown variable ignored", "variable", name)
		}
	}

	for _, v := range d.vars {
		raw, ok := cmd[v.name]
		if !ok || v.typ == "" {
			continue
		}

		next := raw
		if IsCallable(v.bind) {
			result, _, err := Resolve(v.bind, raw)
			if err != nil {
				return updates, fmt.Errorf("applying command to %q: %w", v.name, err)
			}
			if result == nil {
				d.logger.Debug("actuator returned no value", "variable", v.name)
				continue
			}
			next = result
		}

		value, err := ValidateValue(d.logger, v.name, v.typ, next)
		if err != nil {
			return updates, err
		}
		v.value = value
		updates[v.name] = value
	}

	return updates, nil
}

// HandleCommand applies cmd and publishes the resulting updates.
// It returns the updates that were applied, even when publishing fails.
func (d *Device) HandleCommand(ctx context.Context, cmd map[string]any) (map[string]any, error) {
	updates, applyErr := d.ApplyCommand(cmd)
	if len(updates) > 0 {
		if err := d.PublishData(ctx, updates); err != nil {
			if applyErr != nil {
				return updates, applyErr
			}
			return updates, err
		}
	}
	return updates, applyErr
}

// handleCommand is the transport callback for remote commands.
func (d *Device) handleCommand(cmd map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), commandPublishTimeout)
	defer cancel()

	updates, err := d.HandleCommand(ctx, cmd)

	d.mu.Lock()
	logger := d.logger
	d.mu.Unlock()

	if err != nil {
		logger.Error("command failed", "error", err, "applied", len(updates))
		return
	}
	logger.Info("command applied", "updates", updates)
}

// PublishConfig sends the variable configuration.
//
// A nil cfg publishes ReadConfig(). An explicit cfg is filtered to declared
// variables; each kept entry must carry its declared type.
func (d *Device) PublishConfig(ctx context.Context, cfg []ConfigEntry) error {
	if d.api == nil {
		return ErrNoTransport
	}

	if cfg == nil {
		cfg = d.ReadConfig()
	} else {
		filtered, err := d.filterConfig(cfg)
		if err != nil {
			return err
		}
		cfg = filtered
	}

	return d.api.PublishConfig(ctx, cfg)
}

func (d *Device) filterConfig(cfg []ConfigEntry) ([]ConfigEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]ConfigEntry, 0, len(cfg))
	for _, entry := range cfg {
		v, known := d.index[entry.Name]
		if !known {
			continue
		}
		if err := ValidateType(entry.Type); err != nil {
			return nil, variableErr(entry.Name, err)
		}
		if entry.Type != v.typ {
			return nil, fmt.Errorf("%w: variable %q is declared as %q, not %q",
				ErrInvalidConfig, entry.Name, v.typ, entry.Type)
		}
		out = append(out, entry)
	}
	return out, nil
}

// PublishData sends variable values.
//
// A nil data publishes ReadData(). An explicit data is filtered to declared
// typed variables and coerced to their types; nothing is stored. An empty
// result is not sent.
func (d *Device) PublishData(ctx context.Context, data map[string]any) error {
	if d.api == nil {
		return ErrNoTransport
	}

	var err error
	if data == nil {
		data, err = d.ReadData()
	} else {
		data, err = d.filterData(data)
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	return d.api.PublishData(ctx, data)
}

func (d *Device) filterData(data map[string]any) (map[string]any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]any, len(data))
	for _, v := range d.vars {
		raw, ok := data[v.name]
		if !ok || v.typ == "" {
			continue
		}
		value, err := ValidateValue(d.logger, v.name, v.typ, raw)
		if err != nil {
			return nil, err
		}
		out[v.name] = value
	}
	return out, nil
}

// ReadDiag resolves every diagnostic and returns the values as-is.
// A plain binding is its own value.
func (d *Device) ReadDiag() (map[string]any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	values := make(map[string]any, len(d.diags))
	for _, dg := range d.diags {
		next, invoked, err := Resolve(dg.bind, dg.value)
		if err != nil {
			return nil, fmt.Errorf("reading diagnostic %q: %w", dg.name, err)
		}
		if invoked {
			dg.value = next
		} else {
			dg.value = dg.bind
		}
		values[dg.name] = dg.value
	}
	return values, nil
}

// PublishDiag sends diagnostics.
//
// A nil diag publishes ReadDiag(). An explicit diag is filtered to declared
// diagnostics. An empty result is not sent.
func (d *Device) PublishDiag(ctx context.Context, diag map[string]any) error {
	if d.api == nil {
		return ErrNoTransport
	}

	var err error
	if diag == nil {
		diag, err = d.ReadDiag()
		if err != nil {
			return err
		}
	} else {
		diag = d.filterDiag(diag)
	}
	if len(diag) == 0 {
		return nil
	}

	return d.api.PublishDiag(ctx, diag)
}

func (d *Device) filterDiag(diag map[string]any) map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]any, len(diag))
	for _, dg := range d.diags {
		if value, ok := diag[dg.name]; ok {
			out[dg.name] = value
		}
	}
	return out
}

// VariableCount returns the number of declared variables.
func (d *Device) VariableCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.vars)
}

// DiagnosticCount returns the number of declared diagnostics.
func (d *Device) DiagnosticCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.diags)
}
