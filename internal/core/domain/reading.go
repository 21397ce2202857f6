package domain

import "time"

// DeviceClass follows the Home Assistant sensor device classes.
type DeviceClass string

const (
	DEVICE_CLASS_NONE        DeviceClass = ""
	DEVICE_CLASS_BATTERY     DeviceClass = "battery"
	DEVICE_CLASS_CURRENT     DeviceClass = "current"
	DEVICE_CLASS_ENERGY      DeviceClass = "energy"
	DEVICE_CLASS_FREQUENCY   DeviceClass = "frequency"
	DEVICE_CLASS_HUMIDITY    DeviceClass = "humidity"
	DEVICE_CLASS_POWER       DeviceClass = "power"
	DEVICE_CLASS_PRESSURE    DeviceClass = "pressure"
	DEVICE_CLASS_TEMPERATURE DeviceClass = "temperature"
	DEVICE_CLASS_TIMESTAMP   DeviceClass = "timestamp"
	DEVICE_CLASS_VOLTAGE     DeviceClass = "voltage"
)

var knownDeviceClasses = map[DeviceClass]struct{}{
	DEVICE_CLASS_BATTERY:     {},
	DEVICE_CLASS_CURRENT:     {},
	DEVICE_CLASS_ENERGY:      {},
	DEVICE_CLASS_FREQUENCY:   {},
	DEVICE_CLASS_HUMIDITY:    {},
	DEVICE_CLASS_POWER:       {},
	DEVICE_CLASS_PRESSURE:    {},
	DEVICE_CLASS_TEMPERATURE: {},
	DEVICE_CLASS_TIMESTAMP:   {},
	DEVICE_CLASS_VOLTAGE:     {},
}

// ParseDeviceClass returns the class and whether it is a known one.
func ParseDeviceClass(s string) (DeviceClass, bool) {
	dc := DeviceClass(s)
	_, ok := knownDeviceClasses[dc]
	return dc, ok
}

// NormalizedReading is the canonical, display-ready value of one sensor type.
type NormalizedReading struct {
	SensorType  string
	Value       any // nil, string (at most 255 runes) or a number
	Unit        string
	DeviceClass DeviceClass
	Attributes  map[string]string
	// Updated is the ISO-8601 source timestamp, nil when absent or malformed.
	Updated *string
	Stale   bool
}

// SensorIdentity is stable for the lifetime of an integration instance;
// only DisplayName follows the configured title.
type SensorIdentity struct {
	SensorType  string
	UniqueId    string
	DisplayName string
}

const (
	INTEGRATION_KIND_WEATHER    = "weather"
	INTEGRATION_KIND_CONTROLLER = "controller"
)

// IntegrationInstance identifies one configured connection.
type IntegrationInstance struct {
	Id    string
	Name  string
	Title string
	Kind  string
}

// PublishedReading pairs a reading with the identity it was published under.
type PublishedReading struct {
	Identity SensorIdentity
	Reading  NormalizedReading
}

// ReadingPublishedEvent is emitted on the event stream for every reading an
// integration publishes.
type ReadingPublishedEvent struct {
	Instance  IntegrationInstance
	Published PublishedReading
	At        time.Time
}
