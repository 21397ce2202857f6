package sunspec_modbus

import (
	"errors"
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

type ControllerModbusReader interface {
	Open() error
	Close() error
	GetInfo() (*DeviceInfo, error)
	ReadPoints(points []Point) ([]PointValue, error)
}

type ControllerIntSFModbusReader struct {
	ModbusClient

	logger   *zap.Logger
	baseAddr uint16
	blocks   Blocks
}

func (ctl *ControllerIntSFModbusReader) Open() error {
	if err := ctl.client.Open(); err != nil {
		return err
	}
	blocks, err := ctl.survey(ctl.baseAddr)
	if err != nil {
		_ = ctl.client.Close()
		return err
	}
	ctl.blocks = blocks
	ctl.logger.Debug("sunspec: survey done", zap.Int("models", len(blocks)))
	return nil
}

func (ctl *ControllerIntSFModbusReader) Close() error {
	return ctl.client.Close()
}

func (ctl *ControllerIntSFModbusReader) GetInfo() (*DeviceInfo, error) {
	common, ok := ctl.blocks[SUNSPEC_WK_COMMON]
	if !ok {
		return nil, ErrNoCommonModel
	}
	manufacturer, err := ctl.readString(common+2, 32)
	if err != nil {
		return nil, err
	}
	model, err := ctl.readString(common+18, 32)
	if err != nil {
		return nil, err
	}
	options, err := ctl.readString(common+34, 16)
	if err != nil {
		return nil, err
	}
	version, err := ctl.readString(common+42, 16)
	if err != nil {
		return nil, err
	}
	serial, err := ctl.readString(common+50, 32)
	if err != nil {
		return nil, err
	}
	return &DeviceInfo{
		Manufacturer: manufacturer,
		Model:        model,
		Options:      options,
		Version:      version,
		Serial:       serial,
	}, nil
}

// ReadPoints reads every point. A point whose model is missing is reported
// as unimplemented; transport errors abort the whole read.
func (ctl *ControllerIntSFModbusReader) ReadPoints(points []Point) ([]PointValue, error) {
	values := make([]PointValue, 0, len(points))
	for _, p := range points {
		v, err := ctl.readPoint(p)
		if errors.Is(err, ErrModelNotPresent) {
			ctl.logger.Debug("sunspec: point model not present", zap.String("sensor", p.Sensor), zap.Uint16("model", p.Model))
			values = append(values, PointValue{Point: p})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p.Sensor, err)
		}
		values = append(values, PointValue{Point: p, Value: v})
	}
	return values, nil
}

func (ctl *ControllerIntSFModbusReader) resolve(model, offset uint16) (uint16, error) {
	if model == 0 {
		return offset, nil
	}
	base, ok := ctl.blocks[model]
	if !ok {
		return 0, ErrModelNotPresent
	}
	return base + offset, nil
}

func (ctl *ControllerIntSFModbusReader) scaleFactor(p Point) (int16, bool, error) {
	if p.ScaleFactorAddress == nil {
		return p.ScaleFactor, true, nil
	}
	addr, err := ctl.resolve(p.Model, *p.ScaleFactorAddress)
	if err != nil {
		return 0, false, err
	}
	sf, err := ctl.readRegister(addr, modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, false, err
	}
	if sf == UNIMPLEMENTED_INT16 {
		return 0, false, nil
	}
	return int16(sf), true, nil
}

func (ctl *ControllerIntSFModbusReader) readPoint(p Point) (any, error) {
	addr, err := ctl.resolve(p.Model, p.Address)
	if err != nil {
		return nil, err
	}

	var raw float64
	switch p.Kind {
	case POINT_KIND_STRING:
		return ctl.readString(addr, p.Length*2)
	case POINT_KIND_UINT32:
		v, err := ctl.readUint32(addr, modbus.HOLDING_REGISTER)
		if err != nil {
			return nil, err
		}
		if v == UNIMPLEMENTED_UINT32 {
			return nil, nil
		}
		raw = float64(v)
	case POINT_KIND_INT16:
		v, err := ctl.readRegister(addr, modbus.HOLDING_REGISTER)
		if err != nil {
			return nil, err
		}
		if v == UNIMPLEMENTED_INT16 {
			return nil, nil
		}
		raw = float64(int16(v))
	default:
		v, err := ctl.readRegister(addr, modbus.HOLDING_REGISTER)
		if err != nil {
			return nil, err
		}
		if v == UNIMPLEMENTED_UINT16 {
			return nil, nil
		}
		raw = float64(v)
	}

	sf, ok, err := ctl.scaleFactor(p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return applySF(raw, sf), nil
}

func traceLoggerInstrumentation(logger *zap.Logger) *ModbusInstrument {
	return &ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			logger.Debug(fmt.Sprintf("modbus [%s]: %d millis", fnName, readTime.Milliseconds()))
		},
	}
}

func CreateControllerIntSFModbusReader(ip string, port uint, unitId uint8, timeout time.Duration,
	logger *zap.Logger, instrumentation *ModbusInstrument) (ControllerModbusReader, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", ip, port),
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}

	// instrumentation
	var inst []ModbusInstrument
	logInst := traceLoggerInstrumentation(logger.With(zap.String("target", "controller"), zap.Uint8("unit", unitId)))
	if logInst != nil {
		inst = append(inst, *logInst)
	}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}

	// set unit address
	if unitId > 0 {
		err = client.SetUnitId(unitId)
		if err != nil {
			return nil, err
		}
	}

	return &ControllerIntSFModbusReader{
		ModbusClient: ModbusClient{
			client:     client,
			instrument: inst,
		},
		logger:   logger,
		baseAddr: SUNSPEC_BASE_ADDRESS,
	}, nil
}
