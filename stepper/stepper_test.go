package stepper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/w1xm/derot/internal/gpio"
)

func TestSimBounds(t *testing.T) {
	s := &Sim{Bounded: true, Min: -1, Max: 1}
	if err := s.Step(CW); err != nil {
		t.Fatal(err)
	}
	if err := s.Step(CW); !errors.Is(err, ErrLimit) {
		t.Errorf("Step past Max = %v, want ErrLimit", err)
	}
	if got := s.Position(); got != 1 {
		t.Errorf("Position() = %d, want 1", got)
	}
	if got := s.Pulses(); got != 1 {
		t.Errorf("Pulses() = %d, want 1", got)
	}
	s.SetSpeed(-100)
	s.SetSpeed(100)
	if diff := cmp.Diff(s.Speeds(), []float64{-100, 100}); diff != "" {
		t.Errorf("unexpected speeds: got(-)/want(+):\n%s", diff)
	}
}

func TestGPIOStep(t *testing.T) {
	g := gpio.NewMockDriver()
	s, err := NewGPIO(g, GPIOConfig{StepPin: 6, DirPin: 7, EnablePin: 8, PulseWidth: time.Nanosecond})
	if err != nil {
		t.Fatal(err)
	}
	if g.Level(8) != gpio.Low {
		t.Error("driver not enabled")
	}
	for _, dir := range []Direction{CW, CW, CCW} {
		if err := s.Step(dir); err != nil {
			t.Fatal(err)
		}
	}
	if got := s.Position(); got != 1 {
		t.Errorf("Position() = %d, want 1", got)
	}
	if got := g.Rises(6); got != 3 {
		t.Errorf("step pulses = %d, want 3", got)
	}
	if g.Level(7) != gpio.Low {
		t.Error("dir pin not low after a ccw pulse")
	}
	if g.Level(6) != gpio.Low {
		t.Error("step pin left high")
	}
}

func TestHallSensor(t *testing.T) {
	g := gpio.NewMockDriver()
	h, err := NewHallSensor(g, 18, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	edges := make(chan struct{}, 1)
	done := make(chan error)
	go func() {
		done <- h.Watch(ctx, func() { edges <- struct{}{} })
	}()
	g.Fall(18)
	select {
	case <-edges:
	case <-time.After(time.Second):
		t.Fatal("edge not delivered")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Watch() = %v, want context.Canceled", err)
	}
}

// fakeRegisters is a drive register file. With lag set, jogs are applied
// to the position registers only after the next read has returned.
type fakeRegisters struct {
	regs    [8]uint16
	jogs    []int16
	fails   bool
	lag     bool
	pending int32
}

func (f *fakeRegisters) position() int32 {
	return int32(uint32(f.regs[RegPosition])<<16 | uint32(f.regs[RegPosition+1]))
}

func (f *fakeRegisters) setPosition(pos int32) {
	f.regs[RegPosition] = uint16(uint32(pos) >> 16)
	f.regs[RegPosition+1] = uint16(uint32(pos))
}

func (f *fakeRegisters) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	var out []byte
	for i := address; i < address+quantity; i++ {
		out = append(out, byte(f.regs[i]>>8), byte(f.regs[i]))
	}
	if f.pending != 0 {
		f.setPosition(f.position() + f.pending)
		f.pending = 0
	}
	return out, nil
}

func (f *fakeRegisters) WriteSingleRegister(address, value uint16) ([]byte, error) {
	if f.fails {
		return nil, errors.New("timeout")
	}
	if address == RegJog {
		f.jogs = append(f.jogs, int16(value))
		if f.lag {
			f.pending += int32(int16(value))
		} else {
			f.setPosition(f.position() + int32(int16(value)))
		}
	}
	f.regs[address] = value
	return nil, nil
}

func (f *fakeRegisters) WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error) {
	for i := uint16(0); i < quantity; i++ {
		f.regs[address+i] = uint16(value[2*i])<<8 | uint16(value[2*i+1])
	}
	return nil, nil
}

func TestModbus(t *testing.T) {
	r := &fakeRegisters{}
	r.regs[RegPosition] = 0xffff
	r.regs[RegPosition+1] = 0xfffe // -2
	m := NewModbus(r)
	if err := m.Poll(); err != nil {
		t.Fatal(err)
	}
	if got := m.Position(); got != -2 {
		t.Errorf("Position() = %d, want -2", got)
	}
	if err := m.Step(CCW); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(r.jogs, []int16{-1}); diff != "" {
		t.Errorf("unexpected jogs: got(-)/want(+):\n%s", diff)
	}
	if got := m.Position(); got != -3 {
		t.Errorf("Position() = %d, want -3", got)
	}

	m.SetPosition(0)
	if r.regs[RegPosition] != 0 || r.regs[RegPosition+1] != 0 {
		t.Errorf("position registers = %v", r.regs[RegPosition:RegPosition+2])
	}

	r.regs[RegStatus] = 1 << StatusLimit
	if err := m.Poll(); err != nil {
		t.Fatal(err)
	}
	if err := m.Step(CW); !errors.Is(err, ErrLimit) {
		t.Errorf("Step with limit switch = %v, want ErrLimit", err)
	}

	r.regs[RegStatus] = 0
	m.Poll()
	r.fails = true
	before := m.Position()
	if err := m.Step(CW); err == nil {
		t.Error("Step succeeded on a failing bus")
	}
	if m.Position() != before {
		t.Error("position changed on a failed pulse")
	}
}

func TestModbusLaggingDrive(t *testing.T) {
	r := &fakeRegisters{lag: true}
	m := NewModbus(r)
	for i := 0; i < 20 && m.Position() < 5; i++ {
		if err := m.Step(CW); err != nil {
			t.Fatal(err)
		}
		if err := m.Poll(); err != nil {
			t.Fatal(err)
		}
	}
	if got := len(r.jogs); got != 5 {
		t.Errorf("jogs issued = %d, want 5", got)
	}
	m.Poll()
	if got, drive := m.Position(), r.position(); got != 5 || drive != 5 {
		t.Errorf("Position() = %d, drive at %d, want 5", got, drive)
	}

	// A jog still in flight when the position is zeroed lands after it.
	if err := m.Step(CCW); err != nil {
		t.Fatal(err)
	}
	m.SetPosition(0)
	m.Poll()
	if got := m.Position(); got != 0 {
		t.Errorf("Position() after zeroing = %d, want 0", got)
	}
	m.Poll()
	if got, drive := m.Position(), int64(r.position()); got != drive {
		t.Errorf("Position() = %d, drive at %d", got, drive)
	}
}
