package domain

type Device struct {
	Id           string
	Identifiers  []string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
}

type GenericSensor struct {
	Device            Device
	Id                string
	SensorType        string
	Name              string
	UniqueId          string
	UnitOfMeasurement string
	StateClass        string // measurement, total_increasing
	DeviceClass       string // temperature, battery, ...
	EntityCategory    string // diagnostic, config, nil
	EnabledByDefault  *bool
	Icon              string
	// AvailabilityId is the integration instance whose availability gates the entity.
	AvailabilityId string
	HasAttributes  bool
}
