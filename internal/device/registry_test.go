package device

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
)

// fakeTransport is a test implementation of Transport.
type fakeTransport struct {
	mu      sync.Mutex
	configs [][]ConfigEntry
	data    []map[string]any
	diags   []map[string]any
	handler func(cmd map[string]any)

	// For testing error paths
	publishErr error
}

func (f *fakeTransport) PublishConfig(_ context.Context, cfg []ConfigEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.configs = append(f.configs, cfg)
	return nil
}

func (f *fakeTransport) PublishData(_ context.Context, data map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.data = append(f.data, data)
	return nil
}

func (f *fakeTransport) PublishDiag(_ context.Context, diag map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.diags = append(f.diags, diag)
	return nil
}

func (f *fakeTransport) OnCommand(handler func(cmd map[string]any)) {
	f.handler = handler
}

func (f *fakeTransport) lastData(t *testing.T) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.data) == 0 {
		t.Fatal("no data published")
	}
	return f.data[len(f.data)-1]
}

// led is an actuator that remembers the last state it was set to.
type led struct {
	mu    sync.Mutex
	on    bool
	calls int
}

func (l *led) set(value any) (any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if b, ok := value.(bool); ok {
		l.on = b
	}
	return l.on, nil
}

// counter is a sensor whose method adds the variable's current value to its
// own state.
type counter struct {
	state float64
}

func (c *counter) next(current any) (any, error) {
	f, _ := current.(float64)
	return c.state + f, nil
}

type constReader struct{ value any }

func (r constReader) Read() (any, error) { return r.value, nil }

func newTestDevice(t *testing.T) (*Device, *fakeTransport) {
	t.Helper()
	api := &fakeTransport{}
	return New(api), api
}

func TestNewRegistersCommandHandler(t *testing.T) {
	_, api := newTestDevice(t)
	if api.handler == nil {
		t.Fatal("New() did not register a command handler")
	}
}

func TestWithLogger(t *testing.T) {
	logger := &recordingLogger{}
	dev := New(nil, WithLogger(logger))

	err := dev.Declare([]Variable{
		{Name: "Temp", Type: TypeNumeric, Value: "21.5"},
	})
	if err != nil {
		t.Fatalf("Declare() error = %v", err)
	}
	if len(logger.warnings) != 1 {
		t.Errorf("warnings = %v, want one string-to-numeric warning", logger.warnings)
	}
}

func TestDeclareAndReadConfig(t *testing.T) {
	dev, _ := newTestDevice(t)

	err := dev.Declare([]Variable{
		{Name: "RoomTemp", Type: TypeNumeric},
		{Name: "LEDOn", Type: TypeBool, Value: false},
		{Name: "Status", Type: TypeString, Value: "idle"},
		{Name: "Pos", Type: TypeLocation},
		{Name: "Scratch", Value: 5},
	})
	if err != nil {
		t.Fatalf("Declare() error = %v", err)
	}

	got := dev.ReadConfig()
	want := []ConfigEntry{
		{Name: "RoomTemp", Type: TypeNumeric},
		{Name: "LEDOn", Type: TypeBool},
		{Name: "Status", Type: TypeString},
		{Name: "Pos", Type: TypeLocation},
	}
	if len(got) != len(want) {
		t.Fatalf("ReadConfig() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ReadConfig()[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if n := dev.VariableCount(); n != 5 {
		t.Errorf("VariableCount() = %d, want 5", n)
	}
}

func TestDeclareCoercesInitialValues(t *testing.T) {
	dev, _ := newTestDevice(t)

	err := dev.Declare([]Variable{
		{Name: "Temp", Type: TypeNumeric, Value: "21.5"},
		{Name: "On", Type: TypeBool, Value: 1},
		{Name: "Label", Type: TypeString, Value: 3.0},
	})
	if err != nil {
		t.Fatalf("Declare() error = %v", err)
	}

	values := dev.Values()
	if values["Temp"] != 21.5 {
		t.Errorf("Temp = %v, want 21.5", values["Temp"])
	}
	if values["On"] != true {
		t.Errorf("On = %v, want true", values["On"])
	}
	if values["Label"] != "3.0" {
		t.Errorf("Label = %v, want %q", values["Label"], "3.0")
	}
}

func TestDeclareErrors(t *testing.T) {
	tests := []struct {
		name    string
		vars    []Variable
		wantErr error
	}{
		{
			name:    "empty name",
			vars:    []Variable{{Name: "", Type: TypeBool}},
			wantErr: ErrInvalidConfig,
		},
		{
			name: "duplicate name",
			vars: []Variable{
				{Name: "A", Type: TypeBool},
				{Name: "A", Type: TypeNumeric},
			},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "unknown type",
			vars:    []Variable{{Name: "A", Type: "integer"}},
			wantErr: ErrUnexpectedVariableType,
		},
		{
			name:    "bad initial value",
			vars:    []Variable{{Name: "A", Type: TypeBool, Value: "yes"}},
			wantErr: ErrUnexpectedVariableValueType,
		},
		{
			name:    "sensor method with a typed result",
			vars:    []Variable{{Name: "T", Type: TypeNumeric, Bind: thermometer{}.Temp}},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "nil func1",
			vars:    []Variable{{Name: "X", Type: TypeBool, Bind: Func1(nil)}},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "nil reader func",
			vars:    []Variable{{Name: "X", Type: TypeNumeric, Bind: ReaderFunc(nil)}},
			wantErr: ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, _ := newTestDevice(t)
			if err := dev.Declare([]Variable{{Name: "Keep", Type: TypeNumeric, Value: 1}}); err != nil {
				t.Fatalf("Declare() setup error = %v", err)
			}

			err := dev.Declare(tt.vars)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Declare() error = %v, want %v", err, tt.wantErr)
			}

			// The previous declaration stays in effect.
			cfg := dev.ReadConfig()
			if len(cfg) != 1 || cfg[0].Name != "Keep" {
				t.Errorf("ReadConfig() after failed Declare = %v, want [Keep]", cfg)
			}
		})
	}
}

func TestDeclareUnknownTypeMessage(t *testing.T) {
	dev, _ := newTestDevice(t)

	err := dev.Declare([]Variable{{Name: "Temp", Type: "float"}})
	want := `Unexpected type for the "Temp" variable. It must be "bool", "numeric", "string" or "location".`
	if got := ErrorMessage(err); got != want {
		t.Errorf("ErrorMessage() = %q, want %q", got, want)
	}
}

func TestReadData(t *testing.T) {
	dev, _ := newTestDevice(t)
	sensor := &counter{state: 10}

	err := dev.Declare([]Variable{
		{Name: "Reader", Type: TypeNumeric, Bind: constReader{value: 36.6}},
		{Name: "Func0", Type: TypeString, Bind: Func0(func() (any, error) { return "ok", nil })},
		{Name: "Method", Type: TypeNumeric, Value: 1, Bind: Func1(sensor.next)},
		{Name: "Plain", Type: TypeBool, Value: true, Bind: "not callable"},
		{Name: "Unbound", Type: TypeNumeric},
		{Name: "Untyped", Bind: Func0(func() (any, error) { t.Error("untyped binding invoked"); return nil, nil })},
	})
	if err != nil {
		t.Fatalf("Declare() error = %v", err)
	}

	got, err := dev.ReadData()
	if err != nil {
		t.Fatalf("ReadData() error = %v", err)
	}

	want := map[string]any{
		"Reader":  36.6,
		"Func0":   "ok",
		"Method":  11.0,
		"Plain":   true,
		"Unbound": nil,
	}
	if len(got) != len(want) {
		t.Fatalf("ReadData() = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("ReadData()[%q] = %v, want %v", k, got[k], v)
		}
	}

	// The method sees the stored value on the next read.
	got, err = dev.ReadData()
	if err != nil {
		t.Fatalf("ReadData() error = %v", err)
	}
	if got["Method"] != 21.0 {
		t.Errorf("second ReadData()[Method] = %v, want 21", got["Method"])
	}
}

func TestReadDataNonFiniteBecomesNil(t *testing.T) {
	tests := []struct {
		name  string
		value float64
	}{
		{name: "NaN", value: math.NaN()},
		{name: "+Inf", value: math.Inf(1)},
		{name: "-Inf", value: math.Inf(-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, _ := newTestDevice(t)
			err := dev.Declare([]Variable{
				{Name: "Temp", Type: TypeNumeric, Bind: constReader{value: tt.value}},
			})
			if err != nil {
				t.Fatalf("Declare() error = %v", err)
			}

			got, err := dev.ReadData()
			if err != nil {
				t.Fatalf("ReadData() error = %v", err)
			}
			if v, ok := got["Temp"]; !ok || v != nil {
				t.Errorf("ReadData()[Temp] = %v (present %v), want nil", v, ok)
			}
		})
	}
}

func TestReadDataIsIdempotentForPlainValues(t *testing.T) {
	dev, _ := newTestDevice(t)
	err := dev.Declare([]Variable{
		{Name: "A", Type: TypeNumeric, Value: 3},
		{Name: "B", Type: TypeString, Value: "x"},
	})
	if err != nil {
		t.Fatalf("Declare() error = %v", err)
	}

	first, err := dev.ReadData()
	if err != nil {
		t.Fatalf("ReadData() error = %v", err)
	}
	second, err := dev.ReadData()
	if err != nil {
		t.Fatalf("ReadData() error = %v", err)
	}
	for k, v := range first {
		if second[k] != v {
			t.Errorf("%s changed between reads: %v -> %v", k, v, second[k])
		}
	}
}

func TestReadDataBindingError(t *testing.T) {
	dev, _ := newTestDevice(t)
	sensorErr := errors.New("i2c timeout")

	err := dev.Declare([]Variable{
		{Name: "Temp", Type: TypeNumeric, Bind: Func0(func() (any, error) { return nil, sensorErr })},
	})
	if err != nil {
		t.Fatalf("Declare() error = %v", err)
	}

	_, err = dev.ReadData()
	if !errors.Is(err, sensorErr) {
		t.Errorf("ReadData() error = %v, want %v", err, sensorErr)
	}
}

func TestReadDataCoercionError(t *testing.T) {
	dev, _ := newTestDevice(t)
	err := dev.Declare([]Variable{
		{Name: "On", Type: TypeBool, Bind: constReader{value: "on"}},
	})
	if err != nil {
		t.Fatalf("Declare() error = %v", err)
	}

	_, err = dev.ReadData()
	if !errors.Is(err, ErrUnexpectedVariableValueType) {
		t.Errorf("ReadData() error = %v, want ErrUnexpectedVariableValueType", err)
	}
}

func TestApplyCommand(t *testing.T) {
	t.Run("unknown variable yields empty result", func(t *testing.T) {
		dev, _ := newTestDevice(t)
		if err := dev.Declare([]Variable{{Name: "LEDOn", Type: TypeBool}}); err != nil {
			t.Fatalf("Declare() error = %v", err)
		}

		got, err := dev.ApplyCommand(map[string]any{"Unknown": 1})
		if err != nil {
			t.Fatalf("ApplyCommand() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("ApplyCommand() = %v, want empty", got)
		}
	})

	t.Run("actuator receives commanded value", func(t *testing.T) {
		dev, _ := newTestDevice(t)
		l := &led{}
		if err := dev.Declare([]Variable{
			{Name: "LEDOn", Type: TypeBool, Value: false, Bind: Func1(l.set)},
		}); err != nil {
			t.Fatalf("Declare() error = %v", err)
		}

		got, err := dev.ApplyCommand(map[string]any{"LEDOn": true})
		if err != nil {
			t.Fatalf("ApplyCommand() error = %v", err)
		}
		if got["LEDOn"] != true {
			t.Errorf("ApplyCommand()[LEDOn] = %v, want true", got["LEDOn"])
		}
		if !l.on || l.calls != 1 {
			t.Errorf("led on=%v calls=%d, want on=true calls=1", l.on, l.calls)
		}
		if dev.Values()["LEDOn"] != true {
			t.Errorf("stored LEDOn = %v, want true", dev.Values()["LEDOn"])
		}
	})

	t.Run("plain binding takes value verbatim with coercion", func(t *testing.T) {
		dev, _ := newTestDevice(t)
		if err := dev.Declare([]Variable{{Name: "Temp", Type: TypeNumeric, Value: 20}}); err != nil {
			t.Fatalf("Declare() error = %v", err)
		}

		got, err := dev.ApplyCommand(map[string]any{"Temp": "36.6"})
		if err != nil {
			t.Fatalf("ApplyCommand() error = %v", err)
		}
		if got["Temp"] != 36.6 {
			t.Errorf("ApplyCommand()[Temp] = %v, want 36.6", got["Temp"])
		}
	})

	t.Run("nil actuator result is skipped", func(t *testing.T) {
		dev, _ := newTestDevice(t)
		if err := dev.Declare([]Variable{
			{Name: "Relay", Type: TypeBool, Value: false, Bind: func(any) any { return nil }},
		}); err != nil {
			t.Fatalf("Declare() error = %v", err)
		}

		got, err := dev.ApplyCommand(map[string]any{"Relay": true})
		if err != nil {
			t.Fatalf("ApplyCommand() error = %v", err)
		}
		if _, ok := got["Relay"]; ok {
			t.Errorf("ApplyCommand() = %v, want Relay absent", got)
		}
		if dev.Values()["Relay"] != false {
			t.Errorf("stored Relay = %v, want false", dev.Values()["Relay"])
		}
	})

	t.Run("untyped variable ignored", func(t *testing.T) {
		dev, _ := newTestDevice(t)
		if err := dev.Declare([]Variable{{Name: "Scratch", Value: 1}}); err != nil {
			t.Fatalf("Declare() error = %v", err)
		}

		got, err := dev.ApplyCommand(map[string]any{"Scratch": 2})
		if err != nil {
			t.Fatalf("ApplyCommand() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("ApplyCommand() = %v, want empty", got)
		}
	})

	t.Run("failure returns partial updates", func(t *testing.T) {
		dev, _ := newTestDevice(t)
		if err := dev.Declare([]Variable{
			{Name: "First", Type: TypeNumeric},
			{Name: "Second", Type: TypeBool},
		}); err != nil {
			t.Fatalf("Declare() error = %v", err)
		}

		got, err := dev.ApplyCommand(map[string]any{"First": 5, "Second": "on"})
		if !errors.Is(err, ErrUnexpectedVariableValueType) {
			t.Fatalf("ApplyCommand() error = %v, want ErrUnexpectedVariableValueType", err)
		}
		if got["First"] != 5.0 {
			t.Errorf("partial updates = %v, want First=5", got)
		}
		if _, ok := got["Second"]; ok {
			t.Errorf("partial updates = %v, want Second absent", got)
		}
	})

	t.Run("actuator error", func(t *testing.T) {
		dev, _ := newTestDevice(t)
		actErr := errors.New("gpio busy")
		if err := dev.Declare([]Variable{
			{Name: "LEDOn", Type: TypeBool, Bind: Func1(func(any) (any, error) { return nil, actErr })},
		}); err != nil {
			t.Fatalf("Declare() error = %v", err)
		}

		if _, err := dev.ApplyCommand(map[string]any{"LEDOn": true}); !errors.Is(err, actErr) {
			t.Errorf("ApplyCommand() error = %v, want %v", err, actErr)
		}
	})
}

func TestHandleCommandPublishesUpdates(t *testing.T) {
	dev, api := newTestDevice(t)
	if err := dev.Declare([]Variable{
		{Name: "Temp", Type: TypeNumeric},
		{Name: "Other", Type: TypeBool, Value: true},
	}); err != nil {
		t.Fatalf("Declare() error = %v", err)
	}

	updates, err := dev.HandleCommand(context.Background(), map[string]any{"Temp": "36.6"})
	if err != nil {
		t.Fatalf("HandleCommand() error = %v", err)
	}
	if updates["Temp"] != 36.6 {
		t.Errorf("updates = %v, want Temp=36.6", updates)
	}

	published := api.lastData(t)
	if len(published) != 1 || published["Temp"] != 36.6 {
		t.Errorf("published = %v, want only Temp=36.6", published)
	}
}

func TestHandleCommandNoUpdatesDoesNotPublish(t *testing.T) {
	dev, api := newTestDevice(t)
	if err := dev.Declare([]Variable{{Name: "Temp", Type: TypeNumeric}}); err != nil {
		t.Fatalf("Declare() error = %v", err)
	}

	if _, err := dev.HandleCommand(context.Background(), map[string]any{"Nope": 1}); err != nil {
		t.Fatalf("HandleCommand() error = %v", err)
	}
	if len(api.data) != 0 {
		t.Errorf("published %d data payloads, want 0", len(api.data))
	}
}

func TestTransportCommandCallback(t *testing.T) {
	dev, api := newTestDevice(t)
	l := &led{}
	if err := dev.Declare([]Variable{
		{Name: "LEDOn", Type: TypeBool, Value: false, Bind: Func1(l.set)},
	}); err != nil {
		t.Fatalf("Declare() error = %v", err)
	}

	api.handler(map[string]any{"LEDOn": true})

	if !l.on {
		t.Error("led was not switched on")
	}
	published := api.lastData(t)
	if published["LEDOn"] != true {
		t.Errorf("published = %v, want LEDOn=true", published)
	}
}

func TestPublishConfig(t *testing.T) {
	dev, api := newTestDevice(t)
	if err := dev.Declare([]Variable{
		{Name: "A", Type: TypeNumeric},
		{Name: "B", Type: TypeBool},
	}); err != nil {
		t.Fatalf("Declare() error = %v", err)
	}
	ctx := context.Background()

	if err := dev.PublishConfig(ctx, nil); err != nil {
		t.Fatalf("PublishConfig(nil) error = %v", err)
	}
	if got := api.configs[0]; len(got) != 2 {
		t.Errorf("published config = %v, want 2 entries", got)
	}

	explicit := []ConfigEntry{
		{Name: "B", Type: TypeBool},
		{Name: "Unknown", Type: TypeString},
	}
	if err := dev.PublishConfig(ctx, explicit); err != nil {
		t.Fatalf("PublishConfig(explicit) error = %v", err)
	}
	if got := api.configs[1]; len(got) != 1 || got[0].Name != "B" {
		t.Errorf("published config = %v, want [B]", got)
	}

	err := dev.PublishConfig(ctx, []ConfigEntry{{Name: "A", Type: "float"}})
	if !errors.Is(err, ErrUnexpectedVariableType) {
		t.Errorf("PublishConfig(bad type) error = %v, want ErrUnexpectedVariableType", err)
	}
}

func TestPublishConfigChecksDeclaredTypes(t *testing.T) {
	tests := []struct {
		name    string
		cfg     []ConfigEntry
		want    []ConfigEntry
		wantErr error
	}{
		{
			name: "unknown name with a bad type is dropped",
			cfg:  []ConfigEntry{{Name: "Ghost", Type: "float"}, {Name: "A", Type: TypeNumeric}},
			want: []ConfigEntry{{Name: "A", Type: TypeNumeric}},
		},
		{
			name:    "type differs from the declaration",
			cfg:     []ConfigEntry{{Name: "A", Type: TypeString}},
			wantErr: ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, api := newTestDevice(t)
			if err := dev.Declare([]Variable{{Name: "A", Type: TypeNumeric}}); err != nil {
				t.Fatalf("Declare() error = %v", err)
			}

			err := dev.PublishConfig(context.Background(), tt.cfg)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("PublishConfig() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				if len(api.configs) != 0 {
					t.Errorf("configs = %v, want nothing published", api.configs)
				}
				return
			}
			if got := api.configs[0]; len(got) != len(tt.want) || got[0] != tt.want[0] {
				t.Errorf("published config = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPublishConfigEmptyIsStillSent(t *testing.T) {
	dev, api := newTestDevice(t)

	if err := dev.PublishConfig(context.Background(), nil); err != nil {
		t.Fatalf("PublishConfig() error = %v", err)
	}
	if len(api.configs) != 1 || len(api.configs[0]) != 0 {
		t.Errorf("configs = %v, want one empty config", api.configs)
	}
}

func TestPublishData(t *testing.T) {
	t.Run("empty device publishes nothing", func(t *testing.T) {
		dev, api := newTestDevice(t)
		if err := dev.PublishData(context.Background(), nil); err != nil {
			t.Fatalf("PublishData() error = %v", err)
		}
		if len(api.data) != 0 {
			t.Errorf("published %d payloads, want 0", len(api.data))
		}
	})

	t.Run("nil reads bindings", func(t *testing.T) {
		dev, api := newTestDevice(t)
		if err := dev.Declare([]Variable{
			{Name: "Temp", Type: TypeNumeric, Bind: constReader{value: 22}},
		}); err != nil {
			t.Fatalf("Declare() error = %v", err)
		}
		if err := dev.PublishData(context.Background(), nil); err != nil {
			t.Fatalf("PublishData() error = %v", err)
		}
		if got := api.lastData(t); got["Temp"] != 22.0 {
			t.Errorf("published = %v, want Temp=22", got)
		}
	})

	t.Run("explicit data is filtered and not stored", func(t *testing.T) {
		dev, api := newTestDevice(t)
		if err := dev.Declare([]Variable{
			{Name: "Temp", Type: TypeNumeric, Value: 1},
		}); err != nil {
			t.Fatalf("Declare() error = %v", err)
		}
		err := dev.PublishData(context.Background(), map[string]any{"Temp": "5", "Unknown": 3})
		if err != nil {
			t.Fatalf("PublishData() error = %v", err)
		}
		got := api.lastData(t)
		if len(got) != 1 || got["Temp"] != 5.0 {
			t.Errorf("published = %v, want only Temp=5", got)
		}
		if dev.Values()["Temp"] != 1.0 {
			t.Errorf("stored Temp = %v, want 1", dev.Values()["Temp"])
		}
	})

	t.Run("location drops extra keys", func(t *testing.T) {
		dev, api := newTestDevice(t)
		if err := dev.Declare([]Variable{{Name: "Pos", Type: TypeLocation}}); err != nil {
			t.Fatalf("Declare() error = %v", err)
		}
		err := dev.PublishData(context.Background(), map[string]any{
			"Pos": map[string]any{"lat": 1.5, "lng": 2.5, "alt": 100},
		})
		if err != nil {
			t.Fatalf("PublishData() error = %v", err)
		}
		if got := api.lastData(t)["Pos"]; got != (Location{Lat: 1.5, Lng: 2.5}) {
			t.Errorf("published Pos = %v", got)
		}
	})

	t.Run("location missing lng", func(t *testing.T) {
		dev, _ := newTestDevice(t)
		if err := dev.Declare([]Variable{{Name: "Pos", Type: TypeLocation}}); err != nil {
			t.Fatalf("Declare() error = %v", err)
		}
		err := dev.PublishData(context.Background(), map[string]any{
			"Pos": map[string]any{"lat": 1.5},
		})
		if !errors.Is(err, ErrUnexpectedVariableValueType) {
			t.Errorf("PublishData() error = %v, want ErrUnexpectedVariableValueType", err)
		}
	})

	t.Run("transport error", func(t *testing.T) {
		dev, api := newTestDevice(t)
		api.publishErr = errors.New("broker down")
		if err := dev.Declare([]Variable{{Name: "Temp", Type: TypeNumeric, Value: 1}}); err != nil {
			t.Fatalf("Declare() error = %v", err)
		}
		if err := dev.PublishData(context.Background(), nil); !errors.Is(err, api.publishErr) {
			t.Errorf("PublishData() error = %v, want %v", err, api.publishErr)
		}
	})
}

func TestPublishDiag(t *testing.T) {
	dev, api := newTestDevice(t)
	calls := 0
	err := dev.DeclareDiag([]Diagnostic{
		{Name: "CPU Temp", Bind: 42.0},
		{Name: "IP Address", Bind: "10.0.0.2"},
		{Name: "Uptime", Bind: Func0(func() (any, error) { calls++; return calls, nil })},
	})
	if err != nil {
		t.Fatalf("DeclareDiag() error = %v", err)
	}
	ctx := context.Background()

	if err := dev.PublishDiag(ctx, nil); err != nil {
		t.Fatalf("PublishDiag(nil) error = %v", err)
	}
	got := api.diags[0]
	if got["CPU Temp"] != 42.0 || got["IP Address"] != "10.0.0.2" || got["Uptime"] != 1 {
		t.Errorf("published diag = %v", got)
	}

	if err := dev.PublishDiag(ctx, map[string]any{"CPU Temp": 50.0, "Unknown": 1}); err != nil {
		t.Fatalf("PublishDiag(explicit) error = %v", err)
	}
	if got := api.diags[1]; len(got) != 1 || got["CPU Temp"] != 50.0 {
		t.Errorf("published diag = %v, want only CPU Temp", got)
	}

	if n := dev.DiagnosticCount(); n != 3 {
		t.Errorf("DiagnosticCount() = %d, want 3", n)
	}
}

func TestPublishDiagEmptyPublishesNothing(t *testing.T) {
	dev, api := newTestDevice(t)
	if err := dev.PublishDiag(context.Background(), nil); err != nil {
		t.Fatalf("PublishDiag() error = %v", err)
	}
	if len(api.diags) != 0 {
		t.Errorf("published %d diag payloads, want 0", len(api.diags))
	}
}

func TestDeclareDiagErrors(t *testing.T) {
	dev, _ := newTestDevice(t)

	if err := dev.DeclareDiag([]Diagnostic{{Name: ""}}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("empty name error = %v, want ErrInvalidConfig", err)
	}
	if err := dev.DeclareDiag([]Diagnostic{{Name: "a"}, {Name: "a"}}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("duplicate name error = %v, want ErrInvalidConfig", err)
	}

	if err := dev.DeclareDiag([]Diagnostic{{Name: "CPU", Bind: "ok"}}); err != nil {
		t.Fatalf("DeclareDiag() error = %v", err)
	}
	for name, bind := range map[string]any{
		"typed sensor method": thermometer{}.Temp,
		"nil func0":           Func0(nil),
	} {
		if err := dev.DeclareDiag([]Diagnostic{{Name: "CPU Temp", Bind: bind}}); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: DeclareDiag() error = %v, want ErrInvalidConfig", name, err)
		}
	}

	// The rejected declarations left the previous set in place.
	diag, err := dev.ReadDiag()
	if err != nil {
		t.Fatalf("ReadDiag() error = %v", err)
	}
	if len(diag) != 1 || diag["CPU"] != "ok" {
		t.Errorf("ReadDiag() = %v, want map[CPU:ok]", diag)
	}
}

// thermometer has the method shape of a typical sensor driver.
type thermometer struct{}

func (thermometer) Temp() (float64, error) { return 42, nil }

func TestPublishWithoutTransport(t *testing.T) {
	dev := New(nil)
	ctx := context.Background()

	if err := dev.PublishConfig(ctx, nil); !errors.Is(err, ErrNoTransport) {
		t.Errorf("PublishConfig() error = %v, want ErrNoTransport", err)
	}
	if err := dev.PublishData(ctx, nil); !errors.Is(err, ErrNoTransport) {
		t.Errorf("PublishData() error = %v, want ErrNoTransport", err)
	}
	if err := dev.PublishDiag(ctx, nil); !errors.Is(err, ErrNoTransport) {
		t.Errorf("PublishDiag() error = %v, want ErrNoTransport", err)
	}
}

func TestConcurrentReadAndCommand(t *testing.T) {
	dev, _ := newTestDevice(t)
	l := &led{}
	if err := dev.Declare([]Variable{
		{Name: "LEDOn", Type: TypeBool, Value: false, Bind: Func1(l.set)},
		{Name: "Temp", Type: TypeNumeric, Bind: constReader{value: 20}},
	}); err != nil {
		t.Fatalf("Declare() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := dev.ReadData(); err != nil {
				t.Errorf("ReadData() error = %v", err)
			}
		}()
		go func(on bool) {
			defer wg.Done()
			if _, err := dev.ApplyCommand(map[string]any{"LEDOn": on}); err != nil {
				t.Errorf("ApplyCommand() error = %v", err)
			}
		}(i%2 == 0)
	}
	wg.Wait()
}
