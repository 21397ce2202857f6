package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/berfenger/statesync2mqtt/internal/core/domain"
)

const (
	MAX_STATE_LENGTH = 255
	LIST_SEPARATOR   = " | "
	ATTR_ALERT_TIME  = "alert time"
	UNIT_CELSIUS     = "°C"
	CELSIUS_MARKER   = "C"

	RAW_TIMESTAMP_LAYOUT = "20060102150405"
	ISO_TIMESTAMP_LAYOUT = "2006-01-02T15:04:05"

	DIAGNOSTIC_TRUNCATED     = "truncated"
	DIAGNOSTIC_MISSING_VALUE = "missing_value"
	DIAGNOSTIC_UNKNOWN_CLASS = "unknown_device_class"
)

// sensor types always reported in Celsius whatever unit the source sends
var temperatureSensorTypes = map[string]struct{}{
	"wind_chill": {},
	"humidex":    {},
}

// enumerated text categories rendered capitalised
var capitalizedSensorTypes = map[string]struct{}{
	"tendency": {},
}

// Diagnostic is a recovered data-shape anomaly. It is informational only.
type Diagnostic struct {
	SensorType string
	Kind       string
	Message    string
}

// Normalize converts a raw value and unit into a NormalizedReading.
// It performs no I/O and keeps no state.
func Normalize(sensorType string, rawValue any, rawUnit string) (domain.NormalizedReading, []Diagnostic) {
	var diags []Diagnostic
	reading := domain.NormalizedReading{
		SensorType: sensorType,
		Attributes: map[string]string{},
	}

	if subs, ok := domain.AsSubRecords(rawValue); ok {
		titles := make([]string, 0, len(subs))
		dates := make([]string, 0, len(subs))
		for _, sub := range subs {
			title, _ := sub.String(domain.FIELD_TITLE)
			date, _ := sub.String(domain.FIELD_DATE)
			titles = append(titles, title)
			dates = append(dates, date)
		}
		value, truncated := truncate(strings.Join(titles, LIST_SEPARATOR))
		if truncated {
			diags = append(diags, truncatedDiagnostic(sensorType))
		}
		reading.Value = value
		reading.Attributes[ATTR_ALERT_TIME] = strings.Join(dates, LIST_SEPARATOR)
	} else if _, ok := capitalizedSensorTypes[sensorType]; ok && rawValue != nil {
		value, truncated := truncate(capitalize(toText(rawValue)))
		if truncated {
			diags = append(diags, truncatedDiagnostic(sensorType))
		}
		reading.Value = value
	} else if text, ok := rawValue.(string); ok {
		value, truncated := truncate(text)
		if truncated {
			diags = append(diags, truncatedDiagnostic(sensorType))
		}
		reading.Value = value
	} else {
		reading.Value = canonicalScalar(rawValue)
	}

	if _, forced := temperatureSensorTypes[sensorType]; forced || rawUnit == CELSIUS_MARKER {
		reading.Unit = UNIT_CELSIUS
		reading.DeviceClass = domain.DEVICE_CLASS_TEMPERATURE
	} else {
		reading.Unit = rawUnit
	}

	return reading, diags
}

// NormalizeRecord normalises the "value" and "unit" fields of a record and
// applies an explicit "device_class" field when no class was forced.
func NormalizeRecord(sensorType string, record domain.RawRecord) (domain.NormalizedReading, []Diagnostic) {
	reading, diags := Normalize(sensorType, record.Value(), record.Unit())
	if record.Value() == nil {
		diags = append(diags, Diagnostic{
			SensorType: sensorType,
			Kind:       DIAGNOSTIC_MISSING_VALUE,
			Message:    fmt.Sprintf("no value for %s", sensorType),
		})
	}
	if reading.DeviceClass == domain.DEVICE_CLASS_NONE {
		if raw, ok := record.String(domain.FIELD_DEVICE_CLASS); ok {
			if dc, known := domain.ParseDeviceClass(raw); known {
				reading.DeviceClass = dc
			} else {
				diags = append(diags, Diagnostic{
					SensorType: sensorType,
					Kind:       DIAGNOSTIC_UNKNOWN_CLASS,
					Message:    fmt.Sprintf("unknown device class %q for %s", raw, sensorType),
				})
			}
		}
	}
	return reading, diags
}

// FormatTimestamp converts a YYYYMMDDHHMMSS timestamp into ISO-8601.
// Anything else yields nil.
func FormatTimestamp(raw string) *string {
	if len(raw) != len(RAW_TIMESTAMP_LAYOUT) {
		return nil
	}
	t, err := time.Parse(RAW_TIMESTAMP_LAYOUT, raw)
	if err != nil {
		return nil
	}
	iso := t.Format(ISO_TIMESTAMP_LAYOUT)
	return &iso
}

func truncate(s string) (string, bool) {
	if utf8.RuneCountInString(s) <= MAX_STATE_LENGTH {
		return s, false
	}
	runes := []rune(s)
	return string(runes[:MAX_STATE_LENGTH]), true
}

func truncatedDiagnostic(sensorType string) Diagnostic {
	return Diagnostic{
		SensorType: sensorType,
		Kind:       DIAGNOSTIC_TRUNCATED,
		Message:    fmt.Sprintf("value for %s truncated to %d characters", sensorType, MAX_STATE_LENGTH),
	}
}

// capitalize upper-cases the first rune and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

func toText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// canonicalScalar keeps numbers as float64 and renders anything else as text.
func canonicalScalar(v any) any {
	switch n := v.(type) {
	case nil:
		return nil
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case bool:
		return strconv.FormatBool(n)
	default:
		text, _ := truncate(fmt.Sprint(v))
		return text
	}
}
