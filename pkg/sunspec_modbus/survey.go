package sunspec_modbus

import (
	"errors"

	"github.com/simonvetter/modbus"
)

const (
	SUNSPEC_BASE_ADDRESS = 40000
	SUNSPEC_MARKER       = "SunS"
	SUNSPEC_WK_COMMON    = 1
	SUNSPEC_END_BLOCK    = 0xFFFF
	// bound on the number of models walked by a survey
	maxSurveyBlocks = 32
)

var (
	ErrNotSunSpec      = errors.New("could not find a SunSpec device")
	ErrNoCommonModel   = errors.New("could not find the sunspec common model")
	ErrModelNotPresent = errors.New("sunspec model not present on device")
)

// Blocks maps SunSpec model ids to the address of their id register.
type Blocks map[uint16]uint16

func (reader ModbusClient) survey(baseAddr uint16) (Blocks, error) {

	// check SunSpec
	str, err := reader.readString(baseAddr, 4)
	if err != nil {
		return nil, err
	}
	if str != SUNSPEC_MARKER {
		return nil, ErrNotSunSpec
	}

	// survey blocks
	blocks := Blocks{}
	addr := baseAddr + 2
	for n := 0; n < maxSurveyBlocks; n++ {
		block, err := reader.surveyModbusBlock(addr)
		if err != nil {
			return nil, err
		}
		if block.isEndBlock() {
			break
		}
		// first occurrence wins for repeated models
		if _, seen := blocks[block.id]; !seen {
			blocks[block.id] = block.baseAddr
		}
		addr = addr + block.length + 2
	}
	if _, ok := blocks[SUNSPEC_WK_COMMON]; !ok {
		return nil, ErrNoCommonModel
	}
	return blocks, nil
}

type modbusBlock struct {
	id       uint16
	baseAddr uint16
	length   uint16
}

func (block *modbusBlock) isEndBlock() bool {
	return block.id == SUNSPEC_END_BLOCK
}

func (reader ModbusClient) surveyModbusBlock(baseAddr uint16) (*modbusBlock, error) {
	regs, err := reader.readRegisters(baseAddr, 2, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	return &modbusBlock{
		id:       regs[0],
		length:   regs[1],
		baseAddr: baseAddr,
	}, nil
}
