package domain

import (
	"fmt"
	"strconv"
)

// Well known fields of a RawRecord.
const (
	FIELD_LABEL        = "label"
	FIELD_VALUE        = "value"
	FIELD_UNIT         = "unit"
	FIELD_TITLE        = "title"
	FIELD_DATE         = "date"
	FIELD_DEVICE_CLASS = "device_class"

	META_TIMESTAMP = "timestamp"
	META_LOCATION  = "location"
	META_STATION   = "station"
)

// RawRecord is the unprocessed field-to-value mapping produced by a remote
// client for one sensor type. Values are strings, numbers, nil or an ordered
// []RawRecord of sub-records. Records are never mutated after a fetch.
type RawRecord map[string]any

// Get is the optional-field accessor. Missing keys and nil values both
// report ok=false; it never panics, including on a nil record.
func (r RawRecord) Get(field string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r[field]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// String returns the field rendered as text.
func (r RawRecord) String(field string) (string, bool) {
	v, ok := r.Get(field)
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	default:
		return fmt.Sprint(v), true
	}
}

// Value returns the record's "value" field, nil when absent.
func (r RawRecord) Value() any {
	v, _ := r.Get(FIELD_VALUE)
	return v
}

// Unit returns the record's "unit" field, "" when absent.
func (r RawRecord) Unit() string {
	u, _ := r.String(FIELD_UNIT)
	return u
}

// SubRecords interprets the field as an ordered sequence of sub-records.
// Sequences decoded from JSON ([]any of map[string]any) are accepted too.
func (r RawRecord) SubRecords(field string) ([]RawRecord, bool) {
	v, ok := r.Get(field)
	if !ok {
		return nil, false
	}
	return AsSubRecords(v)
}

// AsSubRecords converts v to []RawRecord when it is a sequence of records.
func AsSubRecords(v any) ([]RawRecord, bool) {
	switch seq := v.(type) {
	case []RawRecord:
		return seq, true
	case []map[string]any:
		out := make([]RawRecord, 0, len(seq))
		for _, m := range seq {
			out = append(out, RawRecord(m))
		}
		return out, true
	case []any:
		out := make([]RawRecord, 0, len(seq))
		for _, elem := range seq {
			switch m := elem.(type) {
			case RawRecord:
				out = append(out, m)
			case map[string]any:
				out = append(out, RawRecord(m))
			default:
				return nil, false
			}
		}
		return out, true
	}
	return nil, false
}

// Snapshot is the result of one fetch: two logical record groups keyed by
// sensor type plus a metadata record.
type Snapshot struct {
	Conditions map[string]RawRecord
	Alerts     map[string]RawRecord
	Metadata   RawRecord
}

// DeviceMetadata is exposed by a connected remote client.
type DeviceMetadata struct {
	Host    string
	Port    uint
	Mac     string
	Brand   string
	Product string
	Version string
	Serial  string
}

// ControllerConnection is the connection handle owned by one integration
// instance's lifecycle manager.
type ControllerConnection struct {
	Host     string
	Port     uint
	Mac      string
	Metadata DeviceMetadata
}
