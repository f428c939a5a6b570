package derotator

import (
	"fmt"
	"math"
)

// Omega is the nominal rotation rate of the Earth in rad/s.
const Omega = 7.2921150e-5

// OmegaTolerance is the largest accepted relative deviation of an Omega
// override.
const OmegaTolerance = 0.10

func deg2rad(x float64) float64 {
	return x * math.Pi / 180
}

func rad2deg(x float64) float64 {
	return x * 180 / math.Pi
}

// ZetaDot returns the field rotation rate in rad/s at latitude latRad for a
// telescope pointed at alt/az degrees. The sign gives the direction of
// rotation.
func ZetaDot(omega, latRad, alt, az float64) float64 {
	return omega * math.Cos(deg2rad(az)) * math.Cos(latRad) / math.Cos(deg2rad(alt))
}

// Predict returns the time in seconds for the field to rotate by angleRad.
// It is +Inf where the field does not rotate.
func Predict(omega, latRad, alt, az, angleRad float64) float64 {
	return math.Abs(angleRad / ZetaDot(omega, latRad, alt, az))
}

// CheckOmega rejects rotation rates more than OmegaTolerance away from
// Omega.
func CheckOmega(omega float64) error {
	if math.IsNaN(omega) || math.Abs(omega/Omega-1) > OmegaTolerance {
		return fmt.Errorf("%w: %g rad/s", ErrOmegaRange, omega)
	}
	return nil
}
