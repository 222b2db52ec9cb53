// Package device provides the variable-binding engine of a cloud4rpi device.
//
// A Device holds the variables declared by a daemon (sensor readings and
// actuator bindings) and a parallel set of read-only diagnostics. It resolves
// live values through bindings, coerces them to the declared type system and
// applies remote commands back onto actuators.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────────┐
//	│                               Device                                  │
//	│                                                                       │
//	│  ┌──────────────────┐   ┌──────────────────┐   ┌──────────────────┐  │
//	│  │     Registry     │──▶│     Resolver     │   │    Validation    │  │
//	│  │  (registry.go)   │   │   (binding.go)   │   │ (validation.go)  │  │
//	│  │                  │   │                  │   │                  │  │
//	│  │ • Declare        │   │ • Reader         │   │ • bool           │  │
//	│  │ • ReadData       │   │ • Func0 / Func1  │   │ • numeric        │  │
//	│  │ • ApplyCommand   │   │ • plain values   │   │ • string         │  │
//	│  │ • Publish*       │   │                  │   │ • location       │  │
//	│  └──────────────────┘   └──────────────────┘   └──────────────────┘  │
//	│           │                                                           │
//	└───────────│───────────────────────────────────────────────────────────┘
//	            ▼
//	┌──────────────────────┐
//	│      Transport       │  MQTT or HTTP (internal/transport)
//	└──────────────────────┘
//
// # Value types
//
//   - bool: numbers coerce by truthiness (NaN and infinities are true);
//     strings are rejected.
//   - numeric: booleans become 0/1, strings are parsed, NaN and infinities
//     become nil.
//   - string: every value is rendered textually; booleans as "true"/"false",
//     floats as "36.6", "1.0", "nan", "inf".
//   - location: a map with lat and lng; extra keys are dropped.
//
// # Usage
//
//	dev := device.New(adapter)
//	dev.SetLogger(log)
//
//	err := dev.Declare([]device.Variable{
//	    {Name: "RoomTemp", Type: device.TypeNumeric, Bind: thermometer},
//	    {Name: "LEDOn", Type: device.TypeBool, Value: false, Bind: device.Func1(led.Set)},
//	})
//
//	// Driver loop
//	if err := dev.PublishData(ctx, nil); err != nil {
//	    log.Error("publishing data", "error", err)
//	}
//
// # Thread Safety
//
// Device is safe for concurrent use. The driver loop and the transport's
// command callback are serialised by a single mutex.
package device
