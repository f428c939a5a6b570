// Package gpio abstracts the Raspberry Pi pins used for the stepper driver
// and the hall sensor, so the daemon can run against a mock on a PC.
package gpio

import (
	"fmt"
	"sync"
)

// Level is the logical state of a pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

type PinMode int

const (
	Input PinMode = iota
	Output
)

// Driver controls GPIO pins.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	// DetectFalling arms falling-edge detection on an input pin.
	DetectFalling(pin int) error
	// EdgeDetected reports and clears a pending edge.
	EdgeDetected(pin int) (bool, error)
	Close() error
}

// NewDriver returns a MockDriver if mock is set, otherwise the go-rpio
// driver.
func NewDriver(mock bool) (Driver, error) {
	if mock {
		return NewMockDriver(), nil
	}
	return NewRPiDriver()
}

// MockDriver keeps pin state in memory.
type MockDriver struct {
	mu     sync.Mutex
	modes  map[int]PinMode
	levels map[int]Level
	rises  map[int]int
	armed  map[int]bool
	edges  map[int]bool
}

func NewMockDriver() *MockDriver {
	return &MockDriver{
		modes:  make(map[int]PinMode),
		levels: make(map[int]Level),
		rises:  make(map[int]int),
		armed:  make(map[int]bool),
		edges:  make(map[int]bool),
	}
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mode != Input && mode != Output {
		return fmt.Errorf("unknown pin mode: %d", mode)
	}
	m.modes[pin] = mode
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if level == High && m.levels[pin] == Low {
		m.rises[pin]++
	}
	m.levels[pin] = level
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin], nil
}

func (m *MockDriver) DetectFalling(pin int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed[pin] = true
	return nil
}

func (m *MockDriver) EdgeDetected(pin int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.edges[pin]
	m.edges[pin] = false
	return e, nil
}

func (m *MockDriver) Close() error {
	return nil
}

// Fall simulates a falling edge on an armed input pin.
func (m *MockDriver) Fall(pin int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels[pin] = Low
	if m.armed[pin] {
		m.edges[pin] = true
	}
}

// Rises returns how many Low to High transitions were written to pin.
func (m *MockDriver) Rises(pin int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rises[pin]
}

// Level returns the last level written to pin.
func (m *MockDriver) Level(pin int) Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin]
}
