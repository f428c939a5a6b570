// Package telescope supplies the pointing of the mount the derotator sits
// on.
package telescope

import (
	"errors"
	"math"
	"time"
)

// Source reports the site latitude and the current pointing, all in
// degrees. Azimuth is measured from north through east.
type Source interface {
	AltAz(t time.Time) (alt, az float64, err error)
	Latitude() float64
}

// ErrNoPosition is returned before the first pointing has been read.
var ErrNoPosition = errors.New("telescope: no position available")

// SiderealRate is the apparent rotation rate of the sky in degrees per
// second.
const SiderealRate = 4.178e-3

// DefaultLatitude is used when no site latitude is configured.
const DefaultLatitude = 41.8369

// equhor converts between azimuth/altitude and hour-angle/declination.
// Phi is the observer's latitude. Azimuth is measured from north through east.
// Arguments are in radians.
// Algorithm from https://metacpan.org/dist/Astro-Montenbruck/source/lib/Astro/Montenbruck/CoCo.pm
func equhor(x, y, phi float64) (float64, float64) {
	sx, sy, sphi := math.Sin(x), math.Sin(y), math.Sin(phi)
	cx, cy, cphi := math.Cos(x), math.Cos(y), math.Cos(phi)

	sq := (sy * sphi) + (cy * cphi * cx)
	q := math.Asin(sq)

	cp := (sy - (sphi * sq)) / (cphi * math.Cos(q))
	p := math.Acos(math.Max(-1, math.Min(1, cp)))
	if sx > 0 {
		p = 2*math.Pi - p
	}
	return p, q
}

func deg2rad(x float64) float64 {
	return x * math.Pi / 180
}

func rad2deg(x float64) float64 {
	return x * 180 / math.Pi
}

func wrap360(x float64) float64 {
	x = math.Mod(x, 360)
	if x < 0 {
		x += 360
	}
	return x
}

// Simulator tracks a fixed star across the sky. It is used when no
// telescope is connected.
type Simulator struct {
	latitude float64
	start    time.Time
	// ha and dec of the star at start, in radians.
	ha, dec float64
}

// NewSimulator starts a star at alt/az at time start.
func NewSimulator(latitude, alt, az float64, start time.Time) *Simulator {
	phi := deg2rad(latitude)
	ha, dec := equhor(deg2rad(az), deg2rad(alt), phi)
	return &Simulator{latitude: latitude, start: start, ha: ha, dec: dec}
}

func (s *Simulator) Latitude() float64 {
	return s.latitude
}

func (s *Simulator) AltAz(t time.Time) (float64, float64, error) {
	ha := s.ha + deg2rad(SiderealRate*t.Sub(s.start).Seconds())
	az, alt := equhor(ha, s.dec, deg2rad(s.latitude))
	return rad2deg(alt), wrap360(rad2deg(az)), nil
}
