// Package units provides shared constants and conversions for angle units
package units

import "math"

// Unit constants
const (
	DEG = "deg"
	RAD = "rad"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{DEG, RAD}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "deg, rad"
}

const degreesPerRadian = 180.0 / math.Pi

// DegreesToRadians converts an angle in degrees to radians.
func DegreesToRadians(angleDeg float64) float64 {
	return angleDeg / degreesPerRadian
}

// RadiansToDegrees converts an angle in radians to degrees.
func RadiansToDegrees(angleRad float64) float64 {
	return angleRad * degreesPerRadian
}

// ConvertAngle converts an angle from degrees to the target units.
// Configuration, calibration and the database all store angles in degrees.
func ConvertAngle(angleDeg float64, targetUnits string) float64 {
	switch targetUnits {
	case RAD:
		return DegreesToRadians(angleDeg)
	case DEG:
		return angleDeg
	default:
		return angleDeg // default to degrees if unknown unit
	}
}

// NormalizeDegrees wraps an angle into the (-180, 180] interval.
func NormalizeDegrees(angleDeg float64) float64 {
	wrapped := math.Mod(angleDeg, 360)
	switch {
	case wrapped > 180:
		wrapped -= 360
	case wrapped <= -180:
		wrapped += 360
	}
	return wrapped
}
