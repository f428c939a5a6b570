package gpio

import (
	"fmt"
	"log"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
)

// RPiDriver drives the Raspberry Pi header through go-rpio.
type RPiDriver struct {
	mu   sync.Mutex
	pins map[int]rpio.Pin
}

// NewRPiDriver memory-maps the GPIO registers. It needs /dev/gpiomem or root.
func NewRPiDriver() (*RPiDriver, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("opening gpio: %w", err)
	}
	log.Print("opened gpio")
	return &RPiDriver{pins: make(map[int]rpio.Pin)}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setup(pin, mode)
}

func (r *RPiDriver) setup(pin int, mode PinMode) error {
	p := rpio.Pin(pin)
	switch mode {
	case Input:
		p.Input()
		p.PullUp()
	case Output:
		p.Output()
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}
	r.pins[pin] = p
	return nil
}

func (r *RPiDriver) pin(pin int, mode PinMode) (rpio.Pin, error) {
	p, ok := r.pins[pin]
	if !ok {
		if err := r.setup(pin, mode); err != nil {
			return 0, err
		}
		p = r.pins[pin]
	}
	return p, nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.pin(pin, Output)
	if err != nil {
		return err
	}
	if level == High {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.pin(pin, Input)
	if err != nil {
		return Low, err
	}
	if p.Read() == rpio.High {
		return High, nil
	}
	return Low, nil
}

func (r *RPiDriver) DetectFalling(pin int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.pin(pin, Input)
	if err != nil {
		return err
	}
	p.Detect(rpio.FallEdge)
	return nil
}

func (r *RPiDriver) EdgeDetected(pin int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pins[pin]
	if !ok {
		return false, fmt.Errorf("pin %d not armed", pin)
	}
	return p.EdgeDetected(), nil
}

// Close returns every pin to input and unmaps the registers.
func (r *RPiDriver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pins {
		p.Detect(rpio.NoEdge)
		p.Input()
	}
	return rpio.Close()
}
