// Package client talks to a derotator over TCP or a serial port.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"github.com/tarm/serial"
	"github.com/w1xm/derot/derotator"
	"github.com/w1xm/derot/server"
	"github.com/w1xm/derot/wire"
)

var (
	ErrCadence  = errors.New("derotator cannot keep up with the rotation")
	ErrLimit    = errors.New("derotator travel limit reached")
	ErrRejected = errors.New("derotator rejected the request")
	ErrStalled  = errors.New("derotator stopped short of the target")
)

// ReplyError converts a reply code into an error.
func ReplyError(code int16) error {
	switch code {
	case wire.ReplyOK:
		return nil
	case wire.ReplyCadence:
		return ErrCadence
	case wire.ReplyLimit:
		return ErrLimit
	case wire.ReplyRejected:
		return ErrRejected
	}
	return fmt.Errorf("unknown reply code %d", code)
}

type Conn struct {
	mu sync.Mutex
	rw io.ReadWriteCloser
	// StepDeg is the tolerance used by WaitUntil. Defaults to
	// derotator.StepDeg.
	StepDeg float64
	// PollInterval is how often WaitUntil reads the angle. Defaults to
	// 200ms.
	PollInterval time.Duration
	// WaitUntil gives up once the angle has not changed for StallTimeout.
	// Defaults to 1s.
	StallTimeout time.Duration
}

func New(rw io.ReadWriteCloser) *Conn {
	return &Conn{
		rw:           rw,
		StepDeg:      derotator.StepDeg,
		PollInterval: 200 * time.Millisecond,
		StallTimeout: time.Second,
	}
}

// Dial connects over TCP. addr defaults to port 5001.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "5001")
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// OpenSerial connects over a serial port. Reads time out after 5s.
func OpenSerial(port string, baud int) (*Conn, error) {
	if baud == 0 {
		baud = 115200
	}
	s, err := serial.OpenPort(&serial.Config{Name: port, Baud: baud, ReadTimeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", port, err)
	}
	return New(s), nil
}

func (c *Conn) Close() error {
	return c.rw.Close()
}

func (c *Conn) roundTrip(rq *wire.RequestPacket) ([]byte, error) {
	b, err := rq.MarshalBinary()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := server.WriteFull(c.rw, b); err != nil {
		return nil, fmt.Errorf("sending %v: %w", rq.Command, err)
	}
	reply := make([]byte, rq.Command.ReplySize())
	if _, err := io.ReadFull(c.rw, reply); err != nil {
		return nil, fmt.Errorf("reading %v reply: %w", rq.Command, err)
	}
	return reply, nil
}

// Do sends rq and returns the reply. A reply code other than ReplyOK is
// returned as an error along with the reply. Use QueryState for
// wire.QueryState.
func (c *Conn) Do(rq *wire.RequestPacket) (*wire.ReplyPacket, error) {
	if rq.Command == wire.QueryState {
		return nil, fmt.Errorf("%v: use QueryState", rq.Command)
	}
	b, err := c.roundTrip(rq)
	if err != nil {
		return nil, err
	}
	rp := &wire.ReplyPacket{}
	if err := rp.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	if err := ReplyError(rp.Reply); err != nil {
		return rp, fmt.Errorf("%v: %w", rq.Command, err)
	}
	return rp, nil
}

// Command sends cmd with a single integer and float argument.
func (c *Conn) Command(cmd wire.Command, ivalue int16, fvalue float32) (*wire.ReplyPacket, error) {
	rq := &wire.RequestPacket{Command: cmd, IValue: ivalue}
	rq.FValue[0] = fvalue
	return c.Do(rq)
}

// SetString sends cmd with s in the string buffer.
func (c *Conn) SetString(cmd wire.Command, s string) error {
	rq := &wire.RequestPacket{Command: cmd}
	rq.SetBuf(s)
	_, err := c.Do(rq)
	return err
}

func (c *Conn) QueryState() (*wire.StatusPacket, error) {
	b, err := c.roundTrip(&wire.RequestPacket{Command: wire.QueryState})
	if err != nil {
		return nil, err
	}
	sp := &wire.StatusPacket{}
	if err := sp.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	if err := ReplyError(sp.Reply); err != nil {
		return sp, fmt.Errorf("%v: %w", wire.QueryState, err)
	}
	return sp, nil
}

// Theta returns the rotator angle from user home in degrees.
func (c *Conn) Theta() (float64, error) {
	rp, err := c.Command(wire.GetTheta, 0, 0)
	if err != nil {
		return 0, err
	}
	return float64(rp.FValue[0]), nil
}

// Goto turns the rotator to deg degrees from user home and waits until it
// gets there.
func (c *Conn) Goto(ctx context.Context, deg float64) error {
	if _, err := c.Command(wire.GotoTheta, 0, float32(deg)); err != nil {
		return err
	}
	return c.WaitUntil(ctx, deg)
}

// WaitUntil polls the angle until it is within a step of deg. It returns
// ErrStalled if the rotator stops short of it.
func (c *Conn) WaitUntil(ctx context.Context, deg float64) error {
	last := math.NaN()
	var since time.Time
	for {
		theta, err := c.Theta()
		if err != nil {
			return err
		}
		if math.Abs(theta-deg) <= c.StepDeg {
			return nil
		}
		now := time.Now()
		if theta != last {
			last, since = theta, now
		} else if now.Sub(since) >= c.StallTimeout {
			return fmt.Errorf("%w: at %.4f, target %.4f", ErrStalled, theta, deg)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.PollInterval):
		}
	}
}

// Sweep goes to from, then steps to to over d, one step at a time.
func (c *Conn) Sweep(ctx context.Context, from, to float64, d time.Duration) error {
	if err := c.Goto(ctx, from); err != nil {
		return err
	}
	steps := int(math.Abs(to-from) / c.StepDeg)
	if steps == 0 {
		return c.Goto(ctx, to)
	}
	per := d / time.Duration(steps)
	if per < 10*time.Millisecond {
		return fmt.Errorf("sweep needs %v per step, faster than the drive's 10ms", per)
	}
	dangle := (to - from) / float64(steps)
	for i := 1; i <= steps; i++ {
		if _, err := c.Command(wire.GotoTheta, 0, float32(from+dangle*float64(i))); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(per):
		}
	}
	return nil
}

// SetOmega overrides the Earth rotation rate used by the derotator.
func (c *Conn) SetOmega(omega float64) error {
	if err := derotator.CheckOmega(omega); err != nil {
		return err
	}
	_, err := c.Command(wire.SetEarthOmega, 0, float32(omega))
	return err
}
