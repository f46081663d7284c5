package units

import (
	"math"
	"testing"
)

func TestConvertAngle(t *testing.T) {
	tests := []struct {
		name     string
		angleDeg float64
		units    string
		expected float64
	}{
		{"180 deg to rad", 180.0, RAD, math.Pi},
		{"90 deg to rad", 90.0, RAD, math.Pi / 2},
		{"45 deg to rad", 45.0, RAD, math.Pi / 4},
		{"180 deg to deg", 180.0, DEG, 180.0},
		{"unknown units default to deg", 90.0, "unknown", 90.0},
		{"0 deg to rad", 0.0, RAD, 0.0},
		{"negative angle -90 deg to rad", -90.0, RAD, -math.Pi / 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertAngle(tt.angleDeg, tt.units)
			if math.Abs(result-tt.expected) > 1e-12 {
				t.Errorf("ConvertAngle(%f, %s) = %f, want %f", tt.angleDeg, tt.units, result, tt.expected)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		expected bool
	}{
		{"valid deg", DEG, true},
		{"valid rad", RAD, true},
		{"invalid unit", "grad", false},
		{"empty string", "", false},
		{"case sensitive", "DEG", false},
		{"case sensitive", "Rad", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValid(tt.unit)
			if result != tt.expected {
				t.Errorf("IsValid(%s) = %v, want %v", tt.unit, result, tt.expected)
			}
		})
	}
}

func TestGetValidUnitsString(t *testing.T) {
	expected := "deg, rad"
	result := GetValidUnitsString()
	if result != expected {
		t.Errorf("GetValidUnitsString() = %s, want %s", result, expected)
	}
}

// Round-trip and known-value checks for the degree/radian boundary.
func TestConversionAccuracy(t *testing.T) {
	tests := []struct {
		name     string
		angleDeg float64
	}{
		{"zero", 0},
		{"right angle", 90},
		{"straight angle", 180},
		{"negative", -135},
		{"beyond full turn", 540},
		{"fractional", 36.87},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rad := DegreesToRadians(tt.angleDeg)
			back := RadiansToDegrees(rad)
			if math.Abs(back-tt.angleDeg) > 1e-9 {
				t.Errorf("round trip %f deg -> %f rad -> %f deg", tt.angleDeg, rad, back)
			}
		})
	}

	// Spot-check against math constants rather than the helper's own factor.
	if got := DegreesToRadians(60); math.Abs(got-math.Pi/3) > 1e-12 {
		t.Errorf("DegreesToRadians(60) = %v, want %v", got, math.Pi/3)
	}
	if got := RadiansToDegrees(math.Pi / 6); math.Abs(got-30) > 1e-12 {
		t.Errorf("RadiansToDegrees(pi/6) = %v, want 30", got)
	}
}

func TestNormalizeDegrees(t *testing.T) {
	tests := []struct {
		name     string
		angleDeg float64
		expected float64
	}{
		{"already in range", 45, 45},
		{"upper bound stays", 180, 180},
		{"just past upper bound", 181, -179},
		{"lower bound wraps", -180, 180},
		{"full turn", 360, 0},
		{"multiple turns", 725, 5},
		{"negative multiple turns", -725, -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeDegrees(tt.angleDeg)
			if math.Abs(result-tt.expected) > 1e-9 {
				t.Errorf("NormalizeDegrees(%f) = %f, want %f", tt.angleDeg, result, tt.expected)
			}
		})
	}
}
