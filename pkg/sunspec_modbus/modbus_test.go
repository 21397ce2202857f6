package sunspec_modbus

import (
	"sync"
	"testing"
	"time"

	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	TEST_SERVER_HOST = "localhost"
	TEST_SERVER_PORT = 15502
	UPS_MODEL_ID     = 64900
)

// sunspecHandler serves a holding register map for the simonvetter server.
type sunspecHandler struct {
	lock sync.Mutex
	regs map[uint16]uint16
}

func (h *sunspecHandler) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (h *sunspecHandler) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (h *sunspecHandler) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	return nil, modbus.ErrIllegalFunction
}

func (h *sunspecHandler) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if req.IsWrite {
		return nil, modbus.ErrIllegalFunction
	}
	res := make([]uint16, 0, req.Quantity)
	for i := uint16(0); i < req.Quantity; i++ {
		v, ok := h.regs[req.Addr+i]
		if !ok {
			return nil, modbus.ErrIllegalDataAddress
		}
		res = append(res, v)
	}
	return res, nil
}

func (h *sunspecHandler) putString(addr uint16, registers int, s string) {
	b := make([]byte, registers*2)
	copy(b, s)
	for i := 0; i < registers; i++ {
		h.regs[addr+uint16(i)] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
}

// upsRegisterMap lays out: marker, common model, a vendor model, end block.
func upsRegisterMap() *sunspecHandler {
	h := &sunspecHandler{regs: map[uint16]uint16{}}
	h.putString(40000, 2, "SunS")
	// common model
	h.regs[40002] = SUNSPEC_WK_COMMON
	h.regs[40003] = 66
	h.putString(40004, 16, "CyberPower")
	h.putString(40020, 16, "CP1500PFCLCD")
	h.putString(40036, 8, "")
	h.putString(40044, 8, "1.2")
	h.putString(40052, 16, "CRMLX2000234")
	h.regs[40068] = 1
	// vendor model: charge, charge sf, load, temperature, runtime (uint32), unimplemented
	h.regs[40070] = UPS_MODEL_ID
	h.regs[40071] = 7
	h.regs[40072] = 1000
	h.regs[40073] = uint16(0xFFFF) // sf -1
	h.regs[40074] = 12
	h.regs[40075] = uint16(0xFF38) // -200
	h.regs[40076] = 0
	h.regs[40077] = 3600
	h.regs[40078] = UNIMPLEMENTED_UINT16
	// end
	h.regs[40079] = SUNSPEC_END_BLOCK
	h.regs[40080] = 0
	return h
}

func startServer(t *testing.T, h *sunspecHandler) {
	server, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        "tcp://localhost:15502",
		Timeout:    10 * time.Second,
		MaxClients: 5,
	}, h)
	require.NoError(t, err)
	require.NoError(t, server.Start())
	t.Cleanup(func() { _ = server.Stop() })
}

func controllerReader(t *testing.T) ControllerModbusReader {
	reader, err := CreateControllerIntSFModbusReader(TEST_SERVER_HOST, TEST_SERVER_PORT, 1, time.Second, zap.NewNop(), nil)
	require.NoError(t, err)
	return reader
}

func TestSurveyAndInfo(t *testing.T) {

	require := require.New(t)

	startServer(t, upsRegisterMap())
	reader := controllerReader(t)
	require.NoError(reader.Open())
	defer reader.Close()

	info, err := reader.GetInfo()
	require.NoError(err)
	require.Equal("CyberPower", info.Manufacturer)
	require.Equal("CP1500PFCLCD", info.Model)
	require.Equal("1.2", info.Version)
	require.Equal("CRMLX2000234", info.Serial)
	require.Empty(info.Options)
}

func TestReadPoints(t *testing.T) {

	require := require.New(t)

	startServer(t, upsRegisterMap())
	reader := controllerReader(t)
	require.NoError(reader.Open())
	defer reader.Close()

	chargeSF := uint16(3)
	values, err := reader.ReadPoints([]Point{
		{Sensor: "battery.charge", Model: UPS_MODEL_ID, Address: 2, Kind: POINT_KIND_UINT16, ScaleFactorAddress: &chargeSF, Unit: "%", DeviceClass: "battery"},
		{Sensor: "ups.load", Model: UPS_MODEL_ID, Address: 4, Kind: POINT_KIND_UINT16, Unit: "%"},
		{Sensor: "ups.temperature", Model: UPS_MODEL_ID, Address: 5, Kind: POINT_KIND_INT16, ScaleFactor: -1, Unit: "C"},
		{Sensor: "battery.runtime", Model: UPS_MODEL_ID, Address: 6, Kind: POINT_KIND_UINT32, Unit: "s"},
		{Sensor: "ups.realpower", Model: UPS_MODEL_ID, Address: 8, Kind: POINT_KIND_UINT16, Unit: "W"},
		{Sensor: "ups.model", Address: 40020, Kind: POINT_KIND_STRING, Length: 16},
		{Sensor: "input.voltage", Model: 201, Address: 10, Kind: POINT_KIND_UINT16},
	})
	require.NoError(err)
	require.Len(values, 7)

	assert.InDelta(t, 100.0, values[0].Value, 1e-9)
	assert.InDelta(t, 12.0, values[1].Value, 1e-9)
	assert.InDelta(t, -20.0, values[2].Value, 1e-9)
	assert.InDelta(t, 3600.0, values[3].Value, 1e-9)
	assert.Nil(t, values[4].Value, "unimplemented register")
	assert.Equal(t, "CP1500PFCLCD", values[5].Value)
	assert.Nil(t, values[6].Value, "model not present on device")
	assert.Equal(t, "battery", values[0].Point.DeviceClass)
}

func TestNotSunSpec(t *testing.T) {

	h := upsRegisterMap()
	h.putString(40000, 2, "ABCD")
	startServer(t, h)

	reader := controllerReader(t)
	assert.ErrorIs(t, reader.Open(), ErrNotSunSpec)
}

func TestOpenUnreachable(t *testing.T) {

	reader, err := CreateControllerIntSFModbusReader("127.0.0.1", 1, 1, 200*time.Millisecond, zap.NewNop(), nil)
	require.NoError(t, err)
	assert.Error(t, reader.Open())
}

func TestTestReader(t *testing.T) {

	reader := CreateTestControllerModbusReader()
	values, err := reader.ReadPoints([]Point{{Sensor: "battery.charge"}, {Sensor: "missing"}})
	require.NoError(t, err)
	assert.Equal(t, 100.0, values[0].Value)
	assert.Nil(t, values[1].Value)
}
