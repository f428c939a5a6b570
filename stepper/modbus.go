package stepper

import (
	"fmt"
	"log"
	"sync"

	"github.com/w1xm/derot/internal/modbus"
)

// Holding registers of an integrated Modbus stepper drive.
const (
	RegJog      = 0 // write: signed steps to move
	RegPosition = 1 // read/write: int32 absolute position, two registers
	RegSpeed    = 3 // read/write: signed steps per second
	RegStatus   = 4 // read: status bits
)

// Status bits in RegStatus.
const (
	StatusMoving = 0
	StatusLimit  = 1
	StatusFault  = 2
)

// Registers is the subset of a Modbus client used by the drive.
type Registers interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	WriteSingleRegister(address, value uint16) ([]byte, error)
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
}

// Modbus drives an integrated stepper over Modbus. The last polled position
// is cached so Position never touches the bus. Jogs the drive has not yet
// applied are carried on top of the polled register.
type Modbus struct {
	r Registers

	mu       sync.Mutex
	drivePos int64 // register value at the last poll
	inFlight int64
	status   []bool
}

func NewModbus(r Registers) *Modbus {
	return &Modbus{r: r}
}

// Poll refreshes the cached position and status. It is meant to be used as
// the Poll callback of a modbus.Client.
func (m *Modbus) Poll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.r.ReadHoldingRegisters(RegPosition, 4)
	if err != nil {
		return fmt.Errorf("reading position: %w", err)
	}
	if len(b) < 8 {
		return fmt.Errorf("reading position: short response (%d bytes)", len(b))
	}
	pos := int64(modbus.RegistersToInt32(b[0:4]))
	applied := pos - m.drivePos
	switch {
	case m.inFlight > 0 && applied > 0:
		m.inFlight -= min64(applied, m.inFlight)
	case m.inFlight < 0 && applied < 0:
		m.inFlight -= max64(applied, m.inFlight)
	}
	m.drivePos = pos
	m.status = modbus.BytesToBits(b[7:8])
	return nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func (m *Modbus) flag(bit int) bool {
	return bit < len(m.status) && m.status[bit]
}

func (m *Modbus) Step(dir Direction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flag(StatusLimit) {
		return ErrLimit
	}
	if m.flag(StatusFault) {
		return ErrFault
	}
	if _, err := m.r.WriteSingleRegister(RegJog, uint16(int16(dir))); err != nil {
		return fmt.Errorf("jog %v: %w", dir, err)
	}
	m.inFlight += int64(dir)
	return nil
}

func (m *Modbus) Position() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drivePos + m.inFlight
}

func (m *Modbus) SetPosition(pos int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.r.WriteMultipleRegisters(RegPosition, 2, modbus.Int32ToRegisters(int32(pos))); err != nil {
		// The next poll restores the drive's view of the position.
		log.Printf("setting position %d: %v", pos, err)
		return
	}
	m.drivePos = pos
	m.inFlight = 0
}

func (m *Modbus) SetSpeed(stepsPerSec float64) {
	if _, err := m.r.WriteSingleRegister(RegSpeed, uint16(int16(stepsPerSec))); err != nil {
		log.Printf("setting speed %v: %v", stepsPerSec, err)
	}
}
