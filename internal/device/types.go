package device

// VariableType is the declared type of a variable.
// It decides how incoming and read values are coerced before publishing.
type VariableType string

// Variable type constants.
const (
	TypeBool     VariableType = "bool"
	TypeNumeric  VariableType = "numeric"
	TypeString   VariableType = "string"
	TypeLocation VariableType = "location"
)

// AllVariableTypes returns all valid variable types.
func AllVariableTypes() []VariableType {
	return []VariableType{TypeBool, TypeNumeric, TypeString, TypeLocation}
}

// Location is the canonical value of a location variable.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Variable is a single declared variable.
//
// Bind is optional and may be a Reader, a Func0, a Func1 (or one of the
// plain function signatures accepted by Resolve). Any other value, including
// nil, makes the variable a passive holder that only changes through
// commands.
type Variable struct {
	// Name is the unique key the variable is published under.
	Name string `json:"name" yaml:"name"`

	// Title is an optional human-readable label.
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// Type is the declared type. An empty type marks the variable untyped:
	// it is kept in the registry but never read, configured or published.
	Type VariableType `json:"type" yaml:"type"`

	// Value is the initial value; it becomes the last known value.
	Value any `json:"value,omitempty" yaml:"value,omitempty"`

	// Bind is the live data source or actuator.
	Bind any `json:"-" yaml:"-"`
}

// Diagnostic is a read-only, untyped telemetry entry.
type Diagnostic struct {
	Name string
	Bind any
}

// ConfigEntry is one element of the published variable configuration.
type ConfigEntry struct {
	Name string       `json:"name"`
	Type VariableType `json:"type"`
}

// variable is the registry's internal record.
type variable struct {
	name  string
	title string
	typ   VariableType
	value any
	bind  any
}

// diagnostic is the diagnostics registry's internal record.
type diagnostic struct {
	name  string
	bind  any
	value any
}
