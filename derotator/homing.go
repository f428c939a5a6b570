package derotator

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/w1xm/derot/stepper"
)

// HallTriggered records a falling edge of the hall sensor. It is safe to
// call from any goroutine and only has an effect during a hall home seek.
func (c *Controller) HallTriggered() {
	if atomic.LoadInt32(&c.hallArmed) == 1 {
		atomic.CompareAndSwapInt32(&c.stopCause, stopNone, stopHall)
	}
}

// StartHallHome begins turning clockwise toward the hall sensor.
func (c *Controller) StartHallHome() {
	c.hallStart = c.act.Position()
	c.act.SetSpeed(c.speed)
	atomic.StoreInt32(&c.stopCause, stopNone)
	atomic.StoreInt32(&c.hallArmed, 1)
	c.state = SeekingHallHome
	log.Printf("seeking hall home from %d", c.hallStart)
}

// ContinueHallHome advances a hall home seek by at most one pulse. It
// returns false once the seek is over. On success the position counter is
// zeroed at the sensor.
func (c *Controller) ContinueHallHome() (bool, error) {
	if c.state != SeekingHallHome {
		return false, nil
	}
	if atomic.LoadInt32(&c.stopCause) == stopHall {
		c.endHallSeek()
		travelled := c.act.Position() - c.hallStart
		c.act.SetPosition(0)
		// The drive only turns clockwise again after its speed changes sign.
		c.act.SetSpeed(-c.speed)
		c.act.SetSpeed(c.speed)
		log.Printf("found hall home %d steps from start", travelled)
		return false, nil
	}
	now := c.now()
	if now.Sub(c.lastStep) < c.minPulse {
		return true, nil
	}
	d := c.act.Position() + int64(stepper.CW) - c.hallStart
	if d > c.hallWindow || d < -c.hallWindow {
		c.endHallSeek()
		return false, fmt.Errorf("%w: %d steps travelled", ErrHallNotFound, d-1)
	}
	if err := c.pulse(stepper.CW); err != nil {
		c.endHallSeek()
		return false, err
	}
	c.lastStep = now
	return true, nil
}

func (c *Controller) endHallSeek() {
	atomic.StoreInt32(&c.hallArmed, 0)
	c.state = Idle
}

// StartUserHome begins turning toward user home.
func (c *Controller) StartUserHome() {
	c.startSeek(SeekingUserHome, c.home)
}

// StartUserAngle begins turning to angleDeg degrees from user home.
func (c *Controller) StartUserAngle(angleDeg float64) {
	c.startSeek(SeekingUserAngle, c.DegToSteps(angleDeg)+c.home)
}

func (c *Controller) startSeek(state State, target int64) {
	atomic.StoreInt32(&c.stopCause, stopNone)
	atomic.StoreInt32(&c.hallArmed, 0)
	c.target = target
	if c.act.Position() == target {
		c.state = Idle
		return
	}
	c.act.SetSpeed(float64(c.seekDirection()) * c.speed)
	c.state = state
	log.Printf("%v: from %d to %d", state, c.act.Position(), target)
}

func (c *Controller) seekDirection() stepper.Direction {
	if c.target > c.act.Position() {
		return stepper.CW
	}
	return stepper.CCW
}

// ContinueUserHome advances a user home seek by at most one pulse. It
// returns false once the seek is over. Stop ends the seek where it is.
func (c *Controller) ContinueUserHome() (bool, error) {
	return c.continueSeek(SeekingUserHome)
}

// ContinueUserAngle advances a user angle seek by at most one pulse. It
// returns false once the seek is over. A step that would leave the enabled
// limits ends the seek with stepper.ErrLimit.
func (c *Controller) ContinueUserAngle() (bool, error) {
	return c.continueSeek(SeekingUserAngle)
}

func (c *Controller) continueSeek(state State) (bool, error) {
	if c.state != state {
		return false, nil
	}
	if c.act.Position() == c.target {
		c.state = Idle
		return false, nil
	}
	now := c.now()
	if now.Sub(c.lastStep) < c.minPulse {
		return true, nil
	}
	if err := c.pulse(c.seekDirection()); err != nil {
		c.state = Idle
		return false, err
	}
	c.lastStep = now
	if c.act.Position() == c.target {
		c.state = Idle
		return false, nil
	}
	return true, nil
}
