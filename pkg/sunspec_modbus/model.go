package sunspec_modbus

type PointKind string

const (
	POINT_KIND_UINT16 PointKind = "uint16"
	POINT_KIND_INT16  PointKind = "int16"
	POINT_KIND_UINT32 PointKind = "uint32"
	POINT_KIND_STRING PointKind = "string"
)

// unimplemented markers from the SunSpec information model
const (
	UNIMPLEMENTED_UINT16 = 0xFFFF
	UNIMPLEMENTED_INT16  = 0x8000
	UNIMPLEMENTED_UINT32 = 0xFFFFFFFF
)

// DeviceInfo is read from the SunSpec common model.
type DeviceInfo struct {
	Manufacturer string
	Model        string
	Options      string
	Version      string
	Serial       string
}

// Point is one value read from the device. Address is absolute unless Model
// is set, in which case it is an offset from that model's id register.
// ScaleFactorAddress follows the same rule and wins over ScaleFactor.
type Point struct {
	Sensor             string
	Model              uint16
	Address            uint16
	Kind               PointKind
	Length             uint16 // registers, strings only
	ScaleFactor        int16
	ScaleFactorAddress *uint16
	Unit               string
	DeviceClass        string
}

// PointValue is nil when the device reports the point as unimplemented.
type PointValue struct {
	Point Point
	Value any
}
