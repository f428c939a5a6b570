// Package stepper provides the actuators that turn the derotator.
//
// Positions are absolute step counts from an actuator-owned zero. Clockwise
// is always the motor's clockwise: +1 step and positive speed.
package stepper

import (
	"errors"
	"sync"
)

// Direction of a single pulse.
type Direction int

const (
	CCW Direction = -1
	CW  Direction = 1
)

func (d Direction) String() string {
	if d == CW {
		return "cw"
	}
	return "ccw"
}

// Reverse returns the opposite direction.
func (d Direction) Reverse() Direction {
	return -d
}

// ErrLimit is returned when a pulse would leave the allowed travel.
var ErrLimit = errors.New("stepper: travel limit reached")

// ErrFault is returned when the drive reports a fault.
var ErrFault = errors.New("stepper: drive fault")

// Actuator is a stepper motor with an absolute position counter.
type Actuator interface {
	// Step issues exactly one pulse. The position changes only on success.
	Step(dir Direction) error
	Position() int64
	SetPosition(pos int64)
	// SetSpeed sets the signed drive speed in steps per second.
	SetSpeed(stepsPerSec float64)
}

// Sim is an in-memory actuator. With Bounded set, pulses that would leave
// [Min, Max] fail with ErrLimit.
type Sim struct {
	Bounded  bool
	Min, Max int64

	mu     sync.Mutex
	pos    int64
	speed  float64
	pulses int
	speeds []float64
}

func (s *Sim) Step(dir Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.pos + int64(dir)
	if s.Bounded && (next < s.Min || next > s.Max) {
		return ErrLimit
	}
	s.pos = next
	s.pulses++
	return nil
}

func (s *Sim) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *Sim) SetPosition(pos int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = pos
}

func (s *Sim) SetSpeed(stepsPerSec float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speed = stepsPerSec
	s.speeds = append(s.speeds, stepsPerSec)
}

// Speed returns the last speed set.
func (s *Sim) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

// Speeds returns every speed set, oldest first.
func (s *Sim) Speeds() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.speeds...)
}

// Pulses returns the number of successful pulses.
func (s *Sim) Pulses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pulses
}
