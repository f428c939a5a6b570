// Package derotator schedules the stepper pulses that cancel field rotation
// on an alt-az telescope.
//
// A Controller is driven from a single polling loop: none of its methods
// block and none of them lock, except HallTriggered which may be called from
// any goroutine.
package derotator

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync/atomic"
	"time"

	"github.com/w1xm/derot/stepper"
	"github.com/w1xm/derot/telescope"
)

const (
	// StepDeg is the rotation of the camera per motor step through the
	// gear train.
	StepDeg = 0.05970731707
	// DriveSpeed is the constant motor speed in steps per second.
	DriveSpeed = 100
	// MinSampleInterval is the shortest correction interval the loop can
	// keep up with.
	MinSampleInterval = 100 * time.Millisecond
	// SampleFraction of a step is the rotation between two pointing
	// samples.
	SampleFraction = 0.25
	// HallWindowDeg bounds the hall home search.
	HallWindowDeg = 10

	DefaultMaxCWDeg  = 90
	DefaultMaxCCWDeg = -90
)

var (
	ErrCadence      = errors.New("derotator: unreachable cadence")
	ErrHallNotFound = errors.New("derotator: hall sensor not found within safety window")
	ErrOmegaRange   = errors.New("derotator: earth rotation rate out of range")
	ErrBusy         = errors.New("derotator: busy")
)

// State is what the controller is currently doing.
type State int

const (
	Idle State = iota
	Tracking
	SeekingHallHome
	SeekingUserHome
	SeekingUserAngle
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Tracking:
		return "tracking"
	case SeekingHallHome:
		return "seeking hall home"
	case SeekingUserHome:
		return "seeking user home"
	case SeekingUserAngle:
		return "seeking user angle"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Result of a Continue call.
type Result int

const (
	// Waiting means no pulse was issued.
	Waiting Result = iota
	// Stepped means one correction pulse was issued.
	Stepped
	// CadenceTooSmall means the rotation is now too fast to track. The
	// caller must stop.
	CadenceTooSmall
	// LimitReached means the pulse was refused by a travel limit. The
	// caller must stop.
	LimitReached
	// ActuatorFault means the actuator failed to pulse for another reason.
	ActuatorFault
)

func (r Result) String() string {
	switch r {
	case Waiting:
		return "waiting"
	case Stepped:
		return "stepped"
	case CadenceTooSmall:
		return "cadence too small"
	case LimitReached:
		return "limit reached"
	case ActuatorFault:
		return "actuator fault"
	}
	return fmt.Sprintf("result(%d)", int(r))
}

// Stop causes, stored atomically.
const (
	stopNone int32 = iota
	stopUser
	stopHall
)

type Config struct {
	// StepDeg defaults to StepDeg.
	StepDeg float64
	// DriveSpeed in steps per second defaults to DriveSpeed.
	DriveSpeed float64
	// Now defaults to time.Now.
	Now func() time.Time
}

type Controller struct {
	act stepper.Actuator
	src telescope.Source
	now func() time.Time

	stepRad    float64
	hallWindow int64 // steps
	speed      float64
	minPulse   time.Duration
	omega      float64
	state      State

	latRad      float64
	angle       float64 // rad not yet corrected
	accumulated float64 // rad corrected since Start
	alt, az     float64
	interval    float64 // seconds until the next sample
	lastSample  time.Time
	lastStep    time.Time

	home          int64
	maxCW, maxCCW int64
	limitsEnabled bool
	clockwise     bool

	stopCause int32
	hallArmed int32
	hallStart int64
	target    int64
}

func New(act stepper.Actuator, src telescope.Source, cfg Config) *Controller {
	if cfg.StepDeg <= 0 {
		cfg.StepDeg = StepDeg
	}
	if cfg.DriveSpeed <= 0 {
		cfg.DriveSpeed = DriveSpeed
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	c := &Controller{
		act:        act,
		src:        src,
		now:        cfg.Now,
		stepRad:    deg2rad(cfg.StepDeg),
		hallWindow: int64(HallWindowDeg / cfg.StepDeg),
		speed:      cfg.DriveSpeed,
		minPulse:   time.Duration(float64(time.Second) / cfg.DriveSpeed),
		omega:      Omega,
		clockwise:  true,
	}
	c.LoadLimits(0, DefaultMaxCWDeg, DefaultMaxCCWDeg, false)
	act.SetSpeed(c.speed)
	return c
}

func (c *Controller) State() State {
	return c.state
}

// Start begins tracking a star at alt/az degrees.
func (c *Controller) Start(alt, az float64) error {
	now := c.now()
	c.latRad = deg2rad(c.src.Latitude())
	c.angle = 0
	c.accumulated = 0
	c.alt, c.az = alt, az
	c.lastSample = now
	c.lastStep = now
	c.interval = c.predict()
	atomic.StoreInt32(&c.stopCause, stopNone)
	atomic.StoreInt32(&c.hallArmed, 0)
	if c.interval < MinSampleInterval.Seconds() {
		c.state = Idle
		return fmt.Errorf("%w: next sample due in %.3fs", ErrCadence, c.interval)
	}
	c.state = Tracking
	log.Printf("tracking from alt %.4f az %.4f, latitude %.4f, sampling every %.3fs", alt, az, rad2deg(c.latRad), c.interval)
	return nil
}

// Track starts tracking at the telescope's current pointing.
func (c *Controller) Track() error {
	alt, az, err := c.src.AltAz(c.now())
	if err != nil {
		return fmt.Errorf("reading telescope: %w", err)
	}
	return c.Start(alt, az)
}

func (c *Controller) predict() float64 {
	return Predict(c.omega, c.latRad, c.alt, c.az, c.stepRad*SampleFraction)
}

// Continue advances tracking. It must be called at least every
// MinSampleInterval while tracking.
func (c *Controller) Continue() Result {
	if c.state != Tracking {
		return Waiting
	}
	now := c.now()
	elapsed := now.Sub(c.lastSample).Seconds()
	if elapsed < c.interval || now.Sub(c.lastStep) < c.minPulse {
		return Waiting
	}
	delta := ZetaDot(c.omega, c.latRad, c.alt, c.az) * elapsed
	next := c.angle + delta
	result := Waiting
	if math.Abs(next) >= c.stepRad {
		if err := c.pulse(c.correction(next > 0)); err != nil {
			if errors.Is(err, stepper.ErrLimit) {
				return LimitReached
			}
			log.Printf("correction pulse: %v", err)
			return ActuatorFault
		}
		c.lastStep = now
		if next > 0 {
			c.angle = next - c.stepRad
			c.accumulated += c.stepRad
		} else {
			c.angle = next + c.stepRad
			c.accumulated -= c.stepRad
		}
		result = Stepped
	} else {
		c.angle = next
	}
	c.sample(now)
	if c.interval < MinSampleInterval.Seconds() {
		return CadenceTooSmall
	}
	return result
}

// sample refreshes the pointing and the time of the next sample. The last
// pointing is kept if the telescope cannot be read.
func (c *Controller) sample(now time.Time) {
	c.lastSample = now
	if alt, az, err := c.src.AltAz(now); err != nil {
		log.Printf("reading telescope: %v", err)
	} else {
		c.alt, c.az = alt, az
	}
	c.interval = c.predict()
}

// correction maps a camera correction direction to a motor direction.
func (c *Controller) correction(clockwise bool) stepper.Direction {
	if clockwise == c.clockwise {
		return stepper.CW
	}
	return stepper.CCW
}

// pulse issues one motor pulse, refusing it if it would move further out of
// the enabled limits.
func (c *Controller) pulse(dir stepper.Direction) error {
	if c.limitsEnabled {
		rel := c.act.Position() + int64(dir) - c.home
		if (dir == stepper.CW && rel > c.maxCW) || (dir == stepper.CCW && rel < c.maxCCW) {
			return fmt.Errorf("%w: %d steps from home", stepper.ErrLimit, rel)
		}
	}
	return c.act.Step(dir)
}

// Stop ends tracking or any seek. A pulse already issued completes.
func (c *Controller) Stop() {
	atomic.StoreInt32(&c.stopCause, stopUser)
	atomic.StoreInt32(&c.hallArmed, 0)
	if c.state != Idle {
		log.Printf("stopped while %v", c.state)
	}
	c.state = Idle
}

// Turn jogs the motor by one step. dir is the motor's direction.
func (c *Controller) Turn(dir stepper.Direction) error {
	if c.state != Idle {
		return fmt.Errorf("%w: %v", ErrBusy, c.state)
	}
	if err := c.pulse(dir); err != nil {
		return err
	}
	c.lastStep = c.now()
	return nil
}

// SetOmega overrides the Earth rotation rate used in the rotation rate.
func (c *Controller) SetOmega(omega float64) error {
	if err := CheckOmega(omega); err != nil {
		return err
	}
	c.omega = omega
	return nil
}

func (c *Controller) Omega() float64 {
	return c.omega
}

// ZetaDot returns the rotation rate at the last pointing.
func (c *Controller) ZetaDot() float64 {
	return ZetaDot(c.omega, c.latRad, c.alt, c.az)
}

// Interval returns the time until the next pointing sample.
func (c *Controller) Interval() time.Duration {
	if c.interval > math.MaxInt64/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(c.interval * float64(time.Second))
}

// Latitude returns the latitude latched by Start, in degrees.
func (c *Controller) Latitude() float64 {
	return rad2deg(c.latRad)
}

// AltAz returns the last pointing sampled.
func (c *Controller) AltAz() (float64, float64) {
	return c.alt, c.az
}

// AccumulatedAngle returns the correction applied since Start in degrees.
func (c *Controller) AccumulatedAngle() float64 {
	return rad2deg(c.accumulated)
}

// Angle returns the rotator angle from user home in degrees.
func (c *Controller) Angle() float64 {
	return rad2deg(float64(c.act.Position()-c.home) * c.stepRad)
}

func (c *Controller) Position() int64 {
	return c.act.Position()
}

// StepDeg returns the rotation per step in degrees.
func (c *Controller) StepDeg() float64 {
	return rad2deg(c.stepRad)
}

// DegToSteps converts degrees to whole steps, truncating toward zero.
func (c *Controller) DegToSteps(deg float64) int64 {
	return int64(deg2rad(deg) / c.stepRad)
}

func (c *Controller) SetUserHome(steps int64) {
	c.home = steps
}

// SetUserHomeHere makes the current position user home.
func (c *Controller) SetUserHomeHere() {
	c.home = c.act.Position()
}

func (c *Controller) UserHome() int64 {
	return c.home
}

// SetMaxCW sets the clockwise limit in steps from user home.
func (c *Controller) SetMaxCW(steps int64) {
	c.maxCW = steps
}

func (c *Controller) SetMaxCWHere() {
	c.maxCW = c.act.Position() - c.home
}

func (c *Controller) MaxCW() int64 {
	return c.maxCW
}

// SetMaxCCW sets the counter-clockwise limit in steps from user home.
func (c *Controller) SetMaxCCW(steps int64) {
	c.maxCCW = steps
}

func (c *Controller) SetMaxCCWHere() {
	c.maxCCW = c.act.Position() - c.home
}

func (c *Controller) MaxCCW() int64 {
	return c.maxCCW
}

func (c *Controller) EnableLimits(enabled bool) {
	c.limitsEnabled = enabled
}

func (c *Controller) LimitsEnabled() bool {
	return c.limitsEnabled
}

// SetClockwise sets whether a clockwise correction turns the motor
// clockwise.
func (c *Controller) SetClockwise(clockwise bool) {
	c.clockwise = clockwise
}

func (c *Controller) Clockwise() bool {
	return c.clockwise
}

// LoadLimits sets user home in steps and the limits in degrees from user
// home.
func (c *Controller) LoadLimits(home int64, cwDeg, ccwDeg float64, enabled bool) {
	c.home = home
	c.maxCW = c.DegToSteps(cwDeg)
	c.maxCCW = c.DegToSteps(ccwDeg)
	c.limitsEnabled = enabled
}

// Status is a snapshot of the controller for display.
type Status struct {
	State          string
	Position       int64
	UserHome       int64
	MaxCW, MaxCCW  int64
	LimitsEnabled  bool
	Clockwise      bool
	AngleDeg       float64
	AccumulatedDeg float64
	Alt, Az        float64
	Latitude       float64
	ZetaDot        float64
	Interval       float64
	Omega          float64
}

func (c *Controller) Status() Status {
	return Status{
		State:          c.state.String(),
		Position:       c.act.Position(),
		UserHome:       c.home,
		MaxCW:          c.maxCW,
		MaxCCW:         c.maxCCW,
		LimitsEnabled:  c.limitsEnabled,
		Clockwise:      c.clockwise,
		AngleDeg:       c.Angle(),
		AccumulatedDeg: c.AccumulatedAngle(),
		Alt:            c.alt,
		Az:             c.az,
		Latitude:       c.Latitude(),
		ZetaDot:        finite(c.ZetaDot()),
		Interval:       finite(c.interval),
		Omega:          c.omega,
	}
}

// finite maps NaN and ±Inf to 0 so a Status always encodes as JSON.
func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
