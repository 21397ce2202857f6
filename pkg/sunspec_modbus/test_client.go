package sunspec_modbus

// TestControllerModbusReader is a fixed in-memory controller.
type TestControllerModbusReader struct {
	OpenErr error
	ReadErr error
	Info    DeviceInfo
	Values  map[string]any
}

func CreateTestControllerModbusReader() *TestControllerModbusReader {
	return &TestControllerModbusReader{
		Info: DeviceInfo{
			Manufacturer: "CyberPower",
			Model:        "CP1500PFCLCD",
			Version:      "1.2",
			Serial:       "CRMLX2000234",
		},
		Values: map[string]any{
			"battery.charge": 100.0,
			"ups.load":       12.0,
			"ups.status":     "OL",
		},
	}
}

func (reader *TestControllerModbusReader) Open() error {
	return reader.OpenErr
}

func (reader *TestControllerModbusReader) Close() error {
	return nil
}

func (reader *TestControllerModbusReader) GetInfo() (*DeviceInfo, error) {
	info := reader.Info
	return &info, nil
}

func (reader *TestControllerModbusReader) ReadPoints(points []Point) ([]PointValue, error) {
	if reader.ReadErr != nil {
		return nil, reader.ReadErr
	}
	values := make([]PointValue, 0, len(points))
	for _, p := range points {
		values = append(values, PointValue{Point: p, Value: reader.Values[p.Sensor]})
	}
	return values, nil
}
