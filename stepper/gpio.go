package stepper

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/w1xm/derot/internal/gpio"
)

// GPIOConfig holds the pins of a step/dir driver such as the A4988.
type GPIOConfig struct {
	StepPin int
	DirPin  int
	// EnablePin is active low. 0 means not connected.
	EnablePin int
	// PulseWidth is the high time of a step pulse. Defaults to 5µs.
	PulseWidth time.Duration
}

// GPIO drives a step/dir stepper driver. The position is counted in
// software.
type GPIO struct {
	g   gpio.Driver
	cfg GPIOConfig

	mu    sync.Mutex
	pos   int64
	speed float64
}

func NewGPIO(g gpio.Driver, cfg GPIOConfig) (*GPIO, error) {
	if cfg.PulseWidth <= 0 {
		cfg.PulseWidth = 5 * time.Microsecond
	}
	for _, pin := range []int{cfg.StepPin, cfg.DirPin} {
		if err := g.SetupPin(pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("pin %d: %w", pin, err)
		}
	}
	if cfg.EnablePin > 0 {
		if err := g.SetupPin(cfg.EnablePin, gpio.Output); err != nil {
			return nil, fmt.Errorf("pin %d: %w", cfg.EnablePin, err)
		}
		if err := g.WritePin(cfg.EnablePin, gpio.Low); err != nil {
			return nil, err
		}
	}
	return &GPIO{g: g, cfg: cfg}, nil
}

func (s *GPIO) Step(dir Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	level := gpio.Low
	if dir == CW {
		level = gpio.High
	}
	if err := s.g.WritePin(s.cfg.DirPin, level); err != nil {
		return err
	}
	if err := s.g.WritePin(s.cfg.StepPin, gpio.High); err != nil {
		return err
	}
	time.Sleep(s.cfg.PulseWidth)
	if err := s.g.WritePin(s.cfg.StepPin, gpio.Low); err != nil {
		return err
	}
	s.pos += int64(dir)
	return nil
}

func (s *GPIO) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *GPIO) SetPosition(pos int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = pos
}

// SetSpeed only records the speed; pulses are paced by the caller.
func (s *GPIO) SetSpeed(stepsPerSec float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speed = stepsPerSec
}

// Disable releases holding torque.
func (s *GPIO) Disable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.g.WritePin(s.cfg.EnablePin, gpio.High)
}

// HallSensor watches the hall-effect home switch for falling edges.
type HallSensor struct {
	g        gpio.Driver
	pin      int
	interval time.Duration
}

func NewHallSensor(g gpio.Driver, pin int, interval time.Duration) (*HallSensor, error) {
	if interval <= 0 {
		interval = time.Millisecond
	}
	if err := g.SetupPin(pin, gpio.Input); err != nil {
		return nil, err
	}
	if err := g.DetectFalling(pin); err != nil {
		return nil, err
	}
	return &HallSensor{g: g, pin: pin, interval: interval}, nil
}

// Watch calls onEdge for every falling edge until ctx is done.
func (h *HallSensor) Watch(ctx context.Context, onEdge func()) error {
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		edge, err := h.g.EdgeDetected(h.pin)
		if err != nil {
			return fmt.Errorf("hall sensor pin %d: %w", h.pin, err)
		}
		if edge {
			log.Printf("hall sensor edge on pin %d", h.pin)
			onEdge()
		}
	}
}
