package calibration

import (
	"fmt"

	"github.com/banshee-data/bearing.report/internal/camera"
	"github.com/banshee-data/bearing.report/internal/units"
)

// PixelToAngle converts one live pixel reading into a sight angle using the
// camera's fitted coefficients.
//
// The calibration itself maps pixels to DEGREES; the return value is
// normalized to RADIANS. This is the one place in the system where the unit
// changes, so callers feeding the degree-based geometry convert back with
// units.RadiansToDegrees.
func PixelToAngle(cam camera.Camera, pixel float64) (float64, error) {
	if !cam.Calibrated() {
		return 0, fmt.Errorf("%w: %q", ErrUncalibratedCamera, cam.Name)
	}
	angleDeg := cam.Calibration.Slope*pixel + cam.Calibration.Intercept
	return units.DegreesToRadians(angleDeg), nil
}
