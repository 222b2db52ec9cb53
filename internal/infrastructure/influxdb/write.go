package influxdb

import (
	"encoding/json"
	"math"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/cloud4rpi-go/internal/device"
	"github.com/nerrad567/cloud4rpi-go/internal/transport"
)

// Measurement names.
const (
	MeasurementVariables   = "cloud4rpi_variables"
	MeasurementDiagnostics = "cloud4rpi_diagnostics"
)

var _ transport.Sink = (*Client)(nil)

// Record mirrors a delivered data or diagnostics message, one point per
// entry. Config messages and nil values are ignored.
//
// The write is non-blocking; points are batched and sent asynchronously.
func (c *Client) Record(msg transport.Message) {
	if c.closed.Load() {
		return
	}
	for _, p := range Points(c.device, msg) {
		c.write(p)
	}
}

// Points converts msg into InfluxDB points tagged with device and the
// entry name.
//
// Bools land in value_bool, numbers in value_num and strings in value_str.
// Locations land in "lat" and "lng". Anything else is written to value_str
// as its JSON text.
func Points(deviceTag string, msg transport.Message) []*write.Point {
	var measurement string
	switch msg.Kind {
	case transport.KindData:
		measurement = MeasurementVariables
	case transport.KindDiagnostics:
		measurement = MeasurementDiagnostics
	default:
		return nil
	}

	entries := payloadEntries(msg.Payload)
	if len(entries) == 0 {
		return nil
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	points := make([]*write.Point, 0, len(entries))
	for name, value := range entries {
		fields := fieldsFor(value)
		if fields == nil {
			continue
		}
		points = append(points, write.NewPoint(
			measurement,
			map[string]string{
				"device": deviceTag,
				"name":   name,
			},
			fields,
			ts,
		))
	}
	return points
}

// payloadEntries accepts the live map form and the spooled raw JSON form.
func payloadEntries(payload any) map[string]any {
	switch p := payload.(type) {
	case map[string]any:
		return p
	case json.RawMessage:
		var m map[string]any
		if err := json.Unmarshal(p, &m); err != nil {
			return nil
		}
		return m
	default:
		return nil
	}
}

// Field names. InfluxDB fixes a field's type per measurement, so each value
// type gets its own field and all numbers are written as floats.
const (
	FieldBool   = "value_bool"
	FieldNumber = "value_num"
	FieldString = "value_str"
)

func fieldsFor(value any) map[string]any {
	switch v := value.(type) {
	case nil:
		return nil
	case bool:
		return map[string]any{FieldBool: v}
	case string:
		return map[string]any{FieldString: v}
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return map[string]any{FieldNumber: v}
	case float32:
		return fieldsFor(float64(v))
	case int:
		return map[string]any{FieldNumber: float64(v)}
	case int32:
		return map[string]any{FieldNumber: float64(v)}
	case int64:
		return map[string]any{FieldNumber: float64(v)}
	case uint:
		return map[string]any{FieldNumber: float64(v)}
	case uint32:
		return map[string]any{FieldNumber: float64(v)}
	case uint64:
		return map[string]any{FieldNumber: float64(v)}
	case device.Location:
		return map[string]any{"lat": v.Lat, "lng": v.Lng}
	case map[string]any:
		lat, latOK := v["lat"].(float64)
		lng, lngOK := v["lng"].(float64)
		if latOK && lngOK {
			return map[string]any{"lat": lat, "lng": lng}
		}
	}

	b, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	return map[string]any{FieldString: string(b)}
}
