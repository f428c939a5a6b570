// Package dispatch maps protocol requests onto the derotator controller.
package dispatch

import (
	"errors"
	"log"
	"math"

	"github.com/w1xm/derot/derotator"
	"github.com/w1xm/derot/settings"
	"github.com/w1xm/derot/wire"
)

// Controller is the part of derotator.Controller driven by requests.
type Controller interface {
	Track() error
	Stop()
	StartHallHome()
	StartUserHome()
	StartUserAngle(angleDeg float64)

	DegToSteps(deg float64) int64
	SetUserHome(steps int64)
	SetMaxCW(steps int64)
	SetMaxCCW(steps int64)
	EnableLimits(enabled bool)
	SetClockwise(clockwise bool)
	SetOmega(omega float64) error

	UserHome() int64
	MaxCW() int64
	MaxCCW() int64
	LimitsEnabled() bool
	Clockwise() bool
	AltAz() (alt, az float64)
	AccumulatedAngle() float64
	Angle() float64
	Omega() float64
}

// Store persists settings.
type Store interface {
	Load() (settings.Settings, error)
	Save(settings.Settings) error
}

// Dispatcher executes requests. Like the controller it must only be used
// from the host loop.
type Dispatcher struct {
	c        Controller
	store    Store
	defaults settings.Settings
	wlan     settings.WLAN
}

func New(c Controller, store Store, defaults settings.Settings) *Dispatcher {
	return &Dispatcher{c: c, store: store, defaults: defaults}
}

// Apply loads s into the controller.
func (d *Dispatcher) Apply(s settings.Settings) {
	d.c.SetUserHome(s.HomePos)
	d.c.SetMaxCW(s.MaxCW)
	d.c.SetMaxCCW(s.MaxCCW)
	d.c.EnableLimits(s.LimitsEnabled)
	d.c.SetClockwise(s.Clockwise)
	d.wlan = s.WLAN
}

// Settings returns the current setup.
func (d *Dispatcher) Settings() settings.Settings {
	return settings.Settings{
		HomePos:       d.c.UserHome(),
		MaxCW:         d.c.MaxCW(),
		MaxCCW:        d.c.MaxCCW(),
		Clockwise:     d.c.Clockwise(),
		LimitsEnabled: d.c.LimitsEnabled(),
		WLAN:          d.wlan,
	}
}

// Boot loads the saved settings, falling back to the defaults.
func (d *Dispatcher) Boot() error {
	s, err := d.store.Load()
	if errors.Is(err, settings.ErrNoSettings) {
		d.Apply(d.defaults)
		return nil
	}
	if err != nil {
		d.Apply(d.defaults)
		return err
	}
	d.Apply(s)
	return nil
}

// Dispatch executes rq, filling in rp or, for QueryState, sp. Unknown
// commands leave both untouched.
func (d *Dispatcher) Dispatch(rq *wire.RequestPacket, rp *wire.ReplyPacket, sp *wire.StatusPacket) {
	switch rq.Command.Band() {
	case wire.BandControl:
		d.control(rq, rp)
	case wire.BandSetup:
		d.setup(rq, rp)
	case wire.BandQuery:
		d.query(rq, rp, sp)
	}
}

func (d *Dispatcher) control(rq *wire.RequestPacket, rp *wire.ReplyPacket) {
	switch rq.Command {
	case wire.Start:
		if err := d.c.Track(); err != nil {
			log.Printf("%v: %v", rq.Command, err)
			if errors.Is(err, derotator.ErrCadence) {
				rp.Reply = wire.ReplyCadence
			} else {
				rp.Reply = wire.ReplyRejected
			}
		}
	case wire.Stop:
		d.c.Stop()
	case wire.GotoHallHome:
		d.c.StartHallHome()
	case wire.GotoUserHome:
		d.c.StartUserHome()
	}
}

func (d *Dispatcher) setup(rq *wire.RequestPacket, rp *wire.ReplyPacket) {
	f := float64(rq.FValue[0])
	switch rq.Command {
	case wire.SetUserHome:
		d.c.SetUserHome(d.c.DegToSteps(f))
		log.Printf("user home %d steps", d.c.UserHome())
	case wire.SetMaxCW:
		d.c.SetMaxCW(d.c.DegToSteps(f))
		log.Printf("max cw %d steps", d.c.MaxCW())
	case wire.SetMaxCCW:
		d.c.SetMaxCCW(d.c.DegToSteps(f))
		log.Printf("max ccw %d steps", d.c.MaxCCW())
	case wire.EnableLimits:
		d.c.EnableLimits(rq.IValue != 0)
	case wire.SetClockwise:
		d.c.SetClockwise(rq.IValue != 0)
	case wire.SaveSettings:
		if err := d.store.Save(d.Settings()); err != nil {
			log.Printf("%v: %v", rq.Command, err)
			rp.Reply = wire.ReplyRejected
		}
	case wire.LoadSettings:
		s, err := d.store.Load()
		if err != nil {
			log.Printf("%v: %v", rq.Command, err)
			rp.Reply = wire.ReplyRejected
			return
		}
		d.Apply(s)
	case wire.LoadDefaults:
		wlan := d.wlan
		d.Apply(d.defaults)
		d.wlan = wlan
	}
}

func (d *Dispatcher) query(rq *wire.RequestPacket, rp *wire.ReplyPacket, sp *wire.StatusPacket) {
	switch rq.Command {
	case wire.GetAltAzZeta:
		alt, az := d.c.AltAz()
		rp.FValue = [4]float32{float32(alt), float32(az), float32(d.c.AccumulatedAngle()), float32(d.c.Angle())}
	case wire.GetTheta:
		rp.FValue[0] = float32(d.c.Angle())
	case wire.GotoTheta:
		f := float64(rq.FValue[0])
		// Same inclusive bounds as the per-pulse check.
		if steps := d.c.DegToSteps(f); d.c.LimitsEnabled() && (steps > d.c.MaxCW() || steps < d.c.MaxCCW()) {
			log.Printf("%v %.3f: outside limits", rq.Command, f)
			rp.Reply = wire.ReplyLimit
			return
		}
		d.c.StartUserAngle(f)
	case wire.QueryState:
		d.status(sp)
	case wire.GetUserHome:
		rp.FValue[0] = float32(d.c.UserHome())
	case wire.GetMaxCW:
		rp.FValue[0] = float32(d.c.MaxCW())
	case wire.GetMaxCCW:
		rp.FValue[0] = float32(d.c.MaxCCW())
	case wire.SetWLANSSID:
		d.wlan.SSID = rq.BufString()
	case wire.SetWLANPassword:
		d.wlan.Password = rq.BufString()
	case wire.SetWLANSecurity:
		if rq.IValue < wire.SecurityUnsecured || rq.IValue > wire.SecurityWPA2 {
			rp.Reply = wire.ReplyRejected
			return
		}
		d.wlan.Security = rq.IValue
	case wire.SetEarthOmega:
		if err := d.c.SetOmega(float64(rq.FValue[0])); err != nil {
			log.Printf("%v: %v", rq.Command, err)
			rp.Reply = wire.ReplyRejected
		}
	}
}

func (d *Dispatcher) status(sp *wire.StatusPacket) {
	*sp = wire.StatusPacket{
		Reply:               wire.ReplyOK,
		CorrectionClockwise: boolInt(d.c.Clockwise()),
		HomePos:             clamp16(d.c.UserHome()),
		MaxCW:               clamp16(d.c.MaxCW()),
		MaxCCW:              clamp16(d.c.MaxCCW()),
		LimitsEnabled:       boolInt(d.c.LimitsEnabled()),
		AngleDeg:            float32(d.c.Angle()),
		AccumulatedAngleDeg: float32(d.c.AccumulatedAngle()),
		WLANSecurity:        d.wlan.Security,
		EarthOmega:          float32(d.c.Omega()),
	}
	sp.SetSSID(d.wlan.SSID)
}

// Respond executes rq and returns the encoded answer.
func (d *Dispatcher) Respond(rq *wire.RequestPacket) []byte {
	var rp wire.ReplyPacket
	var sp wire.StatusPacket
	d.Dispatch(rq, &rp, &sp)
	var b []byte
	if rq.Command == wire.QueryState {
		b, _ = sp.MarshalBinary()
	} else {
		b, _ = rp.MarshalBinary()
	}
	return b
}

func boolInt(b bool) int16 {
	if b {
		return 1
	}
	return 0
}

func clamp16(v int64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
