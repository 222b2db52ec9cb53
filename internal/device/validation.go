package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Float formatting thresholds for string coercion. Values outside
// [minPlainFloat, maxPlainFloat) switch to exponent notation.
const (
	minPlainFloat = 1e-4
	maxPlainFloat = 1e16
)

// Pre-computed validation set for O(1) type lookups.
var validVariableTypes map[VariableType]struct{}

func init() {
	validVariableTypes = make(map[VariableType]struct{}, len(AllVariableTypes()))
	for _, t := range AllVariableTypes() {
		validVariableTypes[t] = struct{}{}
	}
}

// ValidateType checks that t is one of the four declared variable types.
func ValidateType(t VariableType) error {
	if _, ok := validVariableTypes[t]; !ok {
		return fmt.Errorf("%w: %q", ErrUnexpectedVariableType, t)
	}
	return nil
}

// ValidateValue coerces raw into the canonical value for a variable of type t.
//
// A nil input is passed through untouched. The returned value is one of
// bool, float64 (or nil for non-finite numerics), string or Location.
// Failures wrap ErrUnexpectedVariableValueType and carry the variable name.
//
// logger may be nil; when set it receives a warning for strings passed to
// numeric variables.
func ValidateValue(logger Logger, name string, t VariableType, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	if logger == nil {
		logger = noopLogger{}
	}

	var (
		v   any
		err error
	)
	switch t {
	case TypeBool:
		v, err = toBool(raw)
	case TypeNumeric:
		v, err = toNumeric(logger, name, raw)
	case TypeString:
		v, err = toString(raw)
	case TypeLocation:
		v, err = toLocation(raw)
	default:
		return nil, variableErr(name, fmt.Errorf("%w: %q", ErrUnexpectedVariableType, t))
	}
	if err != nil {
		return nil, variableErr(name, err)
	}
	return v, nil
}

// toBool applies truthiness to numbers. Strings are never accepted.
func toBool(raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		return nil, fmt.Errorf("%w: string %q given to a bool variable", ErrUnexpectedVariableValueType, v)
	}

	f, ok := toFloat(raw)
	if !ok {
		return nil, fmt.Errorf("%w: %T given to a bool variable", ErrUnexpectedVariableValueType, raw)
	}
	// NaN compares unequal to zero, so it is truthy like any other non-zero value.
	return f != 0, nil
}

// toNumeric returns a finite float64, or nil for NaN and infinities.
func toNumeric(logger Logger, name string, raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		if v {
			return 1.0, nil
		}
		return 0.0, nil
	case string:
		logger.Warn("string passed to a numeric variable, change the variable type or the passed value",
			"variable", name,
			"value", v,
		)
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return nil, fmt.Errorf("%w: cannot parse %q as a number", ErrUnexpectedVariableValueType, v)
		}
		return finiteOrNil(f), nil
	}

	f, ok := toFloat(raw)
	if !ok {
		return nil, fmt.Errorf("%w: %T given to a numeric variable", ErrUnexpectedVariableValueType, raw)
	}
	return finiteOrNil(f), nil
}

func finiteOrNil(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

// toString renders any value in its canonical textual form.
func toString(raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return formatFloat(float64(v), 32), nil
	case float64:
		return formatFloat(v, 64), nil
	case json.Number:
		return v.String(), nil
	case fmt.Stringer:
		return v.String(), nil
	}

	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Sprint(raw), nil
	}
	return string(b), nil
}

// formatFloat produces "nan", "inf", "-inf", a plain decimal with at least
// one fractional digit, or exponent notation for very large/small magnitudes.
func formatFloat(f float64, bitSize int) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	abs := math.Abs(f)
	if abs != 0 && (abs < minPlainFloat || abs >= maxPlainFloat) {
		return strconv.FormatFloat(f, 'e', -1, bitSize)
	}

	s := strconv.FormatFloat(f, 'f', -1, bitSize)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// toLocation accepts a Location or a map holding at least lat and lng.
// Extra keys are dropped.
func toLocation(raw any) (any, error) {
	var lat, lng any
	switch v := raw.(type) {
	case Location:
		lat, lng = v.Lat, v.Lng
	case *Location:
		if v == nil {
			return nil, nil
		}
		lat, lng = v.Lat, v.Lng
	case map[string]any:
		lat, lng = v["lat"], v["lng"]
	case map[string]float64:
		latF, okLat := v["lat"]
		lngF, okLng := v["lng"]
		if okLat {
			lat = latF
		}
		if okLng {
			lng = lngF
		}
	default:
		return nil, fmt.Errorf("%w: %T given to a location variable", ErrUnexpectedVariableValueType, raw)
	}

	latF, err := coordinate("lat", lat)
	if err != nil {
		return nil, err
	}
	lngF, err := coordinate("lng", lng)
	if err != nil {
		return nil, err
	}
	return Location{Lat: latF, Lng: lngF}, nil
}

func coordinate(key string, raw any) (float64, error) {
	if raw == nil {
		return 0, fmt.Errorf("%w: location is missing %q", ErrUnexpectedVariableValueType, key)
	}
	if _, isBool := raw.(bool); isBool {
		return 0, fmt.Errorf("%w: location %q must be a number", ErrUnexpectedVariableValueType, key)
	}
	f, ok := toFloat(raw)
	if !ok {
		return 0, fmt.Errorf("%w: location %q must be a number", ErrUnexpectedVariableValueType, key)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: location %q must be finite", ErrUnexpectedVariableValueType, key)
	}
	return f, nil
}

// toFloat converts any Go numeric kind (and json.Number) to float64.
// Booleans are not numbers here; callers handle them explicitly.
func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
